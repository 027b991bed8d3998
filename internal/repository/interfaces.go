// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/worklog/internal/model"
)

// EntryFilter はタイムエントリの検索条件。
// UserIDが空の場合は全ユーザーを対象にする。
// Yearが0でない場合は指定年月で絞り込む（DateFrom/DateToより優先）。
type EntryFilter struct {
	UserID   string
	Year     int
	Month    time.Month
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CountAll は全ユーザー数を返す。
	CountAll(ctx context.Context) (int, error)

	// ListAll は全ユーザーを名前順で返す。
	ListAll(ctx context.Context) ([]*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// TimeEntryRepository はオフライン作業時間エントリの永続化インターフェース。
type TimeEntryRepository interface {
	// FindByID は指定IDのエントリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.TimeEntry, error)

	// Create はエントリを作成する。
	Create(ctx context.Context, entry *model.TimeEntry) error

	// Update はエントリを上書き更新する。
	Update(ctx context.Context, entry *model.TimeEntry) error

	// Delete は指定IDのエントリを削除する。
	Delete(ctx context.Context, id string) error

	// List は条件に一致するエントリを日付・開始時刻の降順で返す。
	List(ctx context.Context, filter EntryFilter) ([]*model.TimeEntry, error)

	// SumDuration は条件に一致するエントリの作業時間合計（分）を返す。
	SumDuration(ctx context.Context, filter EntryFilter) (int, error)

	// SumPerDay は[from, to]の範囲の日別作業時間合計を返す。
	// キーはISO形式（YYYY-MM-DD）。エントリのない日付はマップに含まれない。
	// userIDが空の場合は全ユーザーを対象にする。
	SumPerDay(ctx context.Context, userID string, from, to time.Time) (map[string]int, error)

	// SumPerUser は条件に一致するエントリのユーザー別作業時間合計を返す。
	SumPerUser(ctx context.Context, filter EntryFilter) (map[string]int, error)

	// ListRecent は直近のエントリを日付・開始時刻の降順で最大limit件返す。
	// userIDが空の場合は全ユーザーを対象にする。
	ListRecent(ctx context.Context, userID string, limit int) ([]*model.TimeEntry, error)

	// HasOverlap は同一ユーザー・同一日付で指定時間帯と重複するエントリの有無を返す。
	// excludeIDが空でない場合はそのエントリを判定から除外する（更新時の自己重複対策）。
	HasOverlap(ctx context.Context, userID string, date time.Time, startTime, endTime, excludeID string) (bool, error)

	// CountActiveUsersOn は指定日にエントリを持つユーザー数を返す。
	CountActiveUsersOn(ctx context.Context, date time.Time) (int, error)
}
