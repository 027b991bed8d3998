// Package timeentry はオフライン作業時間エントリのドメインロジックを提供する。
// エントリのCRUD、重複検証、月次集計を含む。
package timeentry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/worklog/internal/model"
	"github.com/hitoshi/worklog/internal/pace"
	"github.com/hitoshi/worklog/internal/repository"
	"github.com/hitoshi/worklog/internal/security"
)

// maxPurposeLength は目的フィールドの最大文字数。
const maxPurposeLength = 255

// dateLayout はエントリ日付の入力形式。
const dateLayout = "2006-01-02"

// monthLayout は月指定の入力形式。
const monthLayout = "2006-01"

// EntryInput はエントリ作成・更新の入力値。
type EntryInput struct {
	Date        string // YYYY-MM-DD
	StartTime   string // HH:MM
	EndTime     string // HH:MM
	Purpose     string
	Description string
}

// ListQuery はエントリ一覧の検索条件。
type ListQuery struct {
	UserID   string // 管理者のみ他ユーザーを指定可能
	Month    string // YYYY-MM
	DateFrom string // YYYY-MM-DD
	DateTo   string // YYYY-MM-DD
	Limit    int
	Offset   int
}

// ListResult はエントリ一覧と作業時間合計。
type ListResult struct {
	Entries      []*model.TimeEntry
	TotalMinutes int
}

// UserMonthlySummary はユーザー1人の月次集計。
type UserMonthlySummary struct {
	UserID       string
	UserName     string
	Month        string
	TotalMinutes int
	TotalHours   float64
	Formatted    string
}

// Service はタイムエントリ管理のサービス層。
type Service struct {
	entryRepo repository.TimeEntryRepository
	userRepo  repository.UserRepository
	sanitizer security.TextSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	entryRepo repository.TimeEntryRepository,
	userRepo repository.UserRepository,
	sanitizer security.TextSanitizerService,
) *Service {
	return &Service{
		entryRepo: entryRepo,
		userRepo:  userRepo,
		sanitizer: sanitizer,
	}
}

// CreateEntry は新規エントリを作成する。
// 作業時間は開始・終了時刻から導出し、同一日の既存エントリとの重複を拒否する。
func (s *Service) CreateEntry(ctx context.Context, userID string, in EntryInput) (*model.TimeEntry, error) {
	entry, err := s.buildEntry(ctx, userID, "", in)
	if err != nil {
		return nil, err
	}

	if err := s.entryRepo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("タイムエントリの作成に失敗しました: %w", err)
	}

	return entry, nil
}

// UpdateEntry は既存エントリを更新する。
// 所有者本人または管理者のみが更新できる。重複判定では自分自身を除外する。
func (s *Service) UpdateEntry(ctx context.Context, userID string, isAdmin bool, entryID string, in EntryInput) (*model.TimeEntry, error) {
	existing, err := s.entryRepo.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, model.NewEntryNotFoundError(entryID)
	}
	if !isAdmin && existing.UserID != userID {
		return nil, model.NewForbiddenError()
	}

	// エントリの所有者は変更しない
	updated, err := s.buildEntry(ctx, existing.UserID, entryID, in)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt

	if err := s.entryRepo.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("タイムエントリの更新に失敗しました: %w", err)
	}

	return updated, nil
}

// DeleteEntry はエントリを削除する。所有者本人または管理者のみが削除できる。
func (s *Service) DeleteEntry(ctx context.Context, userID string, isAdmin bool, entryID string) error {
	existing, err := s.entryRepo.FindByID(ctx, entryID)
	if err != nil {
		return err
	}
	if existing == nil {
		return model.NewEntryNotFoundError(entryID)
	}
	if !isAdmin && existing.UserID != userID {
		return model.NewForbiddenError()
	}

	if err := s.entryRepo.Delete(ctx, entryID); err != nil {
		return fmt.Errorf("タイムエントリの削除に失敗しました: %w", err)
	}
	return nil
}

// GetEntry はエントリ詳細を返す。所有者本人または管理者のみが閲覧できる。
func (s *Service) GetEntry(ctx context.Context, userID string, isAdmin bool, entryID string) (*model.TimeEntry, error) {
	entry, err := s.entryRepo.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, model.NewEntryNotFoundError(entryID)
	}
	if !isAdmin && entry.UserID != userID {
		return nil, model.NewForbiddenError()
	}
	return entry, nil
}

// ListEntries は条件に一致するエントリと作業時間合計を返す。
// 管理者以外は自分のエントリに強制的にスコープされる。
func (s *Service) ListEntries(ctx context.Context, userID string, isAdmin bool, q ListQuery) (*ListResult, error) {
	filter := repository.EntryFilter{
		UserID: userID,
		Limit:  q.Limit,
		Offset: q.Offset,
	}

	if isAdmin {
		// 管理者は全ユーザーまたは指定ユーザーを閲覧できる
		filter.UserID = q.UserID
	}

	if q.Month != "" {
		monthStart, err := time.Parse(monthLayout, q.Month)
		if err != nil {
			return nil, model.NewInvalidMonthError(q.Month)
		}
		filter.Year = monthStart.Year()
		filter.Month = monthStart.Month()
	} else {
		if q.DateFrom != "" {
			from, err := time.Parse(dateLayout, q.DateFrom)
			if err != nil {
				return nil, model.NewInvalidDateError(q.DateFrom)
			}
			filter.DateFrom = &from
		}
		if q.DateTo != "" {
			to, err := time.Parse(dateLayout, q.DateTo)
			if err != nil {
				return nil, model.NewInvalidDateError(q.DateTo)
			}
			filter.DateTo = &to
		}
	}

	entries, err := s.entryRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	total, err := s.entryRepo.SumDuration(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &ListResult{Entries: entries, TotalMinutes: total}, nil
}

// MonthlySummary は指定ユーザーの月次集計を返す。
func (s *Service) MonthlySummary(ctx context.Context, userID, month string) (*UserMonthlySummary, error) {
	monthStart, err := time.Parse(monthLayout, month)
	if err != nil {
		return nil, model.NewInvalidMonthError(month)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	total, err := s.entryRepo.SumDuration(ctx, repository.EntryFilter{
		UserID: userID,
		Year:   monthStart.Year(),
		Month:  monthStart.Month(),
	})
	if err != nil {
		return nil, err
	}

	return newUserMonthlySummary(user, month, total), nil
}

// AllUsersMonthlySummary は全ユーザーの月次集計を返す（管理者向け）。
// エントリのないユーザーも合計0で含まれる。
func (s *Service) AllUsersMonthlySummary(ctx context.Context, month string) ([]*UserMonthlySummary, error) {
	monthStart, err := time.Parse(monthLayout, month)
	if err != nil {
		return nil, model.NewInvalidMonthError(month)
	}

	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	totals, err := s.entryRepo.SumPerUser(ctx, repository.EntryFilter{
		Year:  monthStart.Year(),
		Month: monthStart.Month(),
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]*UserMonthlySummary, 0, len(users))
	for _, user := range users {
		summaries = append(summaries, newUserMonthlySummary(user, month, totals[user.ID]))
	}

	return summaries, nil
}

// buildEntry は入力値を検証してTimeEntryを組み立てる。
// excludeIDが空でない場合、重複判定からそのエントリを除外する。
func (s *Service) buildEntry(ctx context.Context, userID, excludeID string, in EntryInput) (*model.TimeEntry, error) {
	date, err := time.Parse(dateLayout, in.Date)
	if err != nil {
		return nil, model.NewInvalidDateError(in.Date)
	}

	duration, err := model.CalculateDuration(in.StartTime, in.EndTime)
	if err != nil {
		return nil, model.NewInvalidTimeRangeError(err.Error())
	}

	purpose := s.sanitizer.Sanitize(in.Purpose)
	if purpose == "" {
		return nil, model.NewValidationError("purpose", "目的は必須です")
	}
	if len([]rune(purpose)) > maxPurposeLength {
		return nil, model.NewValidationError("purpose", fmt.Sprintf("目的は%d文字以内で指定してください", maxPurposeLength))
	}
	description := s.sanitizer.Sanitize(in.Description)

	overlap, err := s.entryRepo.HasOverlap(ctx, userID, date, in.StartTime, in.EndTime, excludeID)
	if err != nil {
		return nil, err
	}
	if overlap {
		return nil, model.NewEntryOverlapError()
	}

	now := time.Now().UTC()
	return &model.TimeEntry{
		ID:              uuid.New().String(),
		UserID:          userID,
		Date:            date,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		DurationMinutes: duration,
		Purpose:         purpose,
		Description:     description,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// newUserMonthlySummary は月次集計の値オブジェクトを組み立てる。
func newUserMonthlySummary(user *model.User, month string, totalMinutes int) *UserMonthlySummary {
	return &UserMonthlySummary{
		UserID:       user.ID,
		UserName:     user.Name,
		Month:        month,
		TotalMinutes: totalMinutes,
		TotalHours:   math.Round(float64(totalMinutes)/60*100) / 100,
		Formatted:    pace.FormatDuration(totalMinutes),
	}
}
