// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, entry, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeEntryNotFound    = "ENTRY_NOT_FOUND"
	ErrCodeEntryOverlap     = "ENTRY_OVERLAP"
	ErrCodeInvalidTimeRange = "INVALID_TIME_RANGE"
	ErrCodeInvalidDate      = "INVALID_DATE"
	ErrCodeInvalidMonth     = "INVALID_MONTH"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeSSMUpstream      = "SSM_UPSTREAM_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "自分のエントリに対してのみ操作できます。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewEntryNotFoundError はエントリ未検出エラーを生成する。
func NewEntryNotFoundError(entryID string) *APIError {
	return &APIError{
		Code:     ErrCodeEntryNotFound,
		Message:  fmt.Sprintf("指定されたタイムエントリが見つかりません: %s", entryID),
		Category: "entry",
		Action:   "エントリIDを確認してください。",
	}
}

// NewEntryOverlapError は既存エントリとの時間帯重複エラーを生成する。
func NewEntryOverlapError() *APIError {
	return &APIError{
		Code:     ErrCodeEntryOverlap,
		Message:  "指定された時間帯は既存のタイムエントリと重複しています。",
		Category: "validation",
		Action:   "同じ日の既存エントリと重ならない時間帯を指定してください。",
	}
}

// NewInvalidTimeRangeError は時刻形式が不正な場合のエラーを生成する。
func NewInvalidTimeRangeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTimeRange,
		Message:  fmt.Sprintf("無効な時刻指定です: %s", reason),
		Category: "validation",
		Action:   "開始・終了時刻は HH:MM 形式で指定してください。",
	}
}

// NewInvalidDateError は日付形式が不正な場合のエラーを生成する。
func NewInvalidDateError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("無効な日付です: %s", raw),
		Category: "validation",
		Action:   "日付は YYYY-MM-DD 形式で指定してください。",
	}
}

// NewInvalidMonthError は月指定が不正な場合のエラーを生成する。
func NewInvalidMonthError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMonth,
		Message:  fmt.Sprintf("無効な月指定です: %s", raw),
		Category: "validation",
		Action:   "月は YYYY-MM 形式で指定してください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です（%s）: %s", field, reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}
