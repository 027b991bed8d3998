// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// SSMAPITokenはScreenshotMonitor連携用のAPIトークンで、
// 空文字列は「連携未設定」という正常な状態を表す。
type User struct {
	ID          string
	Email       string
	Name        string
	IsAdmin     bool
	SSMAPIToken string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SSMConfigured はScreenshotMonitor連携が設定済みかどうかを返す。
func (u *User) SSMConfigured() bool {
	return u.SSMAPIToken != ""
}

// Session はユーザーのログインセッションを表す。
// セッションの発行（ログインフロー）は本サービスのスコープ外であり、
// ミドルウェアは有効なセッションの検証のみを行う。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
