package timeentry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/worklog/internal/model"
	"github.com/hitoshi/worklog/internal/repository"
	"github.com/hitoshi/worklog/internal/security"
)

// --- モック ---

type mockEntryRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.TimeEntry, error)
	createFn     func(ctx context.Context, entry *model.TimeEntry) error
	updateFn     func(ctx context.Context, entry *model.TimeEntry) error
	deleteFn     func(ctx context.Context, id string) error
	listFn       func(ctx context.Context, filter repository.EntryFilter) ([]*model.TimeEntry, error)
	sumFn        func(ctx context.Context, filter repository.EntryFilter) (int, error)
	sumPerUserFn func(ctx context.Context, filter repository.EntryFilter) (map[string]int, error)
	hasOverlapFn func(ctx context.Context, userID string, date time.Time, startTime, endTime, excludeID string) (bool, error)
}

func (m *mockEntryRepo) FindByID(ctx context.Context, id string) (*model.TimeEntry, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockEntryRepo) Create(ctx context.Context, entry *model.TimeEntry) error {
	if m.createFn != nil {
		return m.createFn(ctx, entry)
	}
	return nil
}
func (m *mockEntryRepo) Update(ctx context.Context, entry *model.TimeEntry) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, entry)
	}
	return nil
}
func (m *mockEntryRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}
func (m *mockEntryRepo) List(ctx context.Context, filter repository.EntryFilter) ([]*model.TimeEntry, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, nil
}
func (m *mockEntryRepo) SumDuration(ctx context.Context, filter repository.EntryFilter) (int, error) {
	if m.sumFn != nil {
		return m.sumFn(ctx, filter)
	}
	return 0, nil
}
func (m *mockEntryRepo) SumPerDay(ctx context.Context, userID string, from, to time.Time) (map[string]int, error) {
	return nil, nil
}
func (m *mockEntryRepo) SumPerUser(ctx context.Context, filter repository.EntryFilter) (map[string]int, error) {
	if m.sumPerUserFn != nil {
		return m.sumPerUserFn(ctx, filter)
	}
	return nil, nil
}
func (m *mockEntryRepo) ListRecent(ctx context.Context, userID string, limit int) ([]*model.TimeEntry, error) {
	return nil, nil
}
func (m *mockEntryRepo) HasOverlap(ctx context.Context, userID string, date time.Time, startTime, endTime, excludeID string) (bool, error) {
	if m.hasOverlapFn != nil {
		return m.hasOverlapFn(ctx, userID, date, startTime, endTime, excludeID)
	}
	return false, nil
}
func (m *mockEntryRepo) CountActiveUsersOn(ctx context.Context, date time.Time) (int, error) {
	return 0, nil
}

type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
	listAllFn  func(ctx context.Context) ([]*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) CountAll(ctx context.Context) (int, error) { return 0, nil }
func (m *mockUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func newTestService(entryRepo *mockEntryRepo, userRepo *mockUserRepo) *Service {
	return NewService(entryRepo, userRepo, security.NewTextSanitizer())
}

// --- テスト ---

// TestService_CreateEntry は正常系のエントリ作成を検証する。
func TestService_CreateEntry(t *testing.T) {
	var created *model.TimeEntry
	repo := &mockEntryRepo{
		createFn: func(ctx context.Context, entry *model.TimeEntry) error {
			created = entry
			return nil
		},
	}
	svc := newTestService(repo, &mockUserRepo{})

	entry, err := svc.CreateEntry(context.Background(), "user-1", EntryInput{
		Date:      "2026-08-10",
		StartTime: "09:00",
		EndTime:   "11:30",
		Purpose:   "設計レビュー",
	})
	if err != nil {
		t.Fatalf("CreateEntry returned error: %v", err)
	}
	if created == nil {
		t.Fatal("expected Create to be called")
	}
	if entry.DurationMinutes != 150 {
		t.Errorf("DurationMinutes = %d, want 150", entry.DurationMinutes)
	}
	if entry.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", entry.UserID, "user-1")
	}
	if entry.ID == "" {
		t.Error("expected generated entry ID")
	}
}

// TestService_CreateEntry_Overnight は日跨ぎエントリの作業時間導出を検証する。
func TestService_CreateEntry_Overnight(t *testing.T) {
	svc := newTestService(&mockEntryRepo{}, &mockUserRepo{})

	entry, err := svc.CreateEntry(context.Background(), "user-1", EntryInput{
		Date:      "2026-08-10",
		StartTime: "23:00",
		EndTime:   "01:00",
		Purpose:   "深夜メンテナンス",
	})
	if err != nil {
		t.Fatalf("CreateEntry returned error: %v", err)
	}
	if entry.DurationMinutes != 120 {
		t.Errorf("DurationMinutes = %d, want 120", entry.DurationMinutes)
	}
}

// TestService_CreateEntry_Overlap_ReturnsError は重複時間帯のエントリ作成拒否を検証する。
func TestService_CreateEntry_Overlap_ReturnsError(t *testing.T) {
	repo := &mockEntryRepo{
		hasOverlapFn: func(ctx context.Context, userID string, date time.Time, startTime, endTime, excludeID string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(repo, &mockUserRepo{})

	_, err := svc.CreateEntry(context.Background(), "user-1", EntryInput{
		Date:      "2026-08-10",
		StartTime: "09:00",
		EndTime:   "10:00",
		Purpose:   "会議",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeEntryOverlap {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeEntryOverlap)
	}
}

// TestService_CreateEntry_SanitizesPurpose は目的フィールドのHTML除去を検証する。
func TestService_CreateEntry_SanitizesPurpose(t *testing.T) {
	var created *model.TimeEntry
	repo := &mockEntryRepo{
		createFn: func(ctx context.Context, entry *model.TimeEntry) error {
			created = entry
			return nil
		},
	}
	svc := newTestService(repo, &mockUserRepo{})

	_, err := svc.CreateEntry(context.Background(), "user-1", EntryInput{
		Date:        "2026-08-10",
		StartTime:   "09:00",
		EndTime:     "10:00",
		Purpose:     "<script>alert(1)</script>資料作成",
		Description: "<b>太字</b>メモ",
	})
	if err != nil {
		t.Fatalf("CreateEntry returned error: %v", err)
	}
	if strings.Contains(created.Purpose, "<script>") {
		t.Errorf("Purpose にスクリプトタグが残っている: %q", created.Purpose)
	}
	if strings.Contains(created.Description, "<b>") {
		t.Errorf("Description にHTMLタグが残っている: %q", created.Description)
	}
}

// TestService_CreateEntry_EmptyPurpose_ReturnsError は目的未指定の拒否を検証する。
func TestService_CreateEntry_EmptyPurpose_ReturnsError(t *testing.T) {
	svc := newTestService(&mockEntryRepo{}, &mockUserRepo{})

	_, err := svc.CreateEntry(context.Background(), "user-1", EntryInput{
		Date:      "2026-08-10",
		StartTime: "09:00",
		EndTime:   "10:00",
		Purpose:   "   ",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidationFailed)
	}
}

// TestService_CreateEntry_InvalidDate_ReturnsError は不正な日付形式の拒否を検証する。
func TestService_CreateEntry_InvalidDate_ReturnsError(t *testing.T) {
	svc := newTestService(&mockEntryRepo{}, &mockUserRepo{})

	_, err := svc.CreateEntry(context.Background(), "user-1", EntryInput{
		Date:      "08/10/2026",
		StartTime: "09:00",
		EndTime:   "10:00",
		Purpose:   "会議",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidDate {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidDate)
	}
}

// TestService_UpdateEntry_ExcludesSelfFromOverlap は更新時の自己重複除外を検証する。
func TestService_UpdateEntry_ExcludesSelfFromOverlap(t *testing.T) {
	var gotExcludeID string
	repo := &mockEntryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.TimeEntry, error) {
			return &model.TimeEntry{ID: "entry-1", UserID: "user-1"}, nil
		},
		hasOverlapFn: func(ctx context.Context, userID string, date time.Time, startTime, endTime, excludeID string) (bool, error) {
			gotExcludeID = excludeID
			return false, nil
		},
	}
	svc := newTestService(repo, &mockUserRepo{})

	entry, err := svc.UpdateEntry(context.Background(), "user-1", false, "entry-1", EntryInput{
		Date:      "2026-08-10",
		StartTime: "13:00",
		EndTime:   "14:00",
		Purpose:   "打ち合わせ",
	})
	if err != nil {
		t.Fatalf("UpdateEntry returned error: %v", err)
	}
	if gotExcludeID != "entry-1" {
		t.Errorf("excludeID = %q, want %q", gotExcludeID, "entry-1")
	}
	if entry.ID != "entry-1" {
		t.Errorf("ID = %q, want %q", entry.ID, "entry-1")
	}
}

// TestService_UpdateEntry_WrongUser_ReturnsForbidden は他ユーザーのエントリ更新拒否を検証する。
func TestService_UpdateEntry_WrongUser_ReturnsForbidden(t *testing.T) {
	repo := &mockEntryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.TimeEntry, error) {
			return &model.TimeEntry{ID: "entry-1", UserID: "user-other"}, nil
		},
	}
	svc := newTestService(repo, &mockUserRepo{})

	_, err := svc.UpdateEntry(context.Background(), "user-1", false, "entry-1", EntryInput{
		Date:      "2026-08-10",
		StartTime: "13:00",
		EndTime:   "14:00",
		Purpose:   "打ち合わせ",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeForbidden {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeForbidden)
	}
}

// TestService_UpdateEntry_AdminCanUpdateOthers は管理者による他ユーザーエントリ更新を検証する。
func TestService_UpdateEntry_AdminCanUpdateOthers(t *testing.T) {
	var updated *model.TimeEntry
	repo := &mockEntryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.TimeEntry, error) {
			return &model.TimeEntry{ID: "entry-1", UserID: "user-other"}, nil
		},
		updateFn: func(ctx context.Context, entry *model.TimeEntry) error {
			updated = entry
			return nil
		},
	}
	svc := newTestService(repo, &mockUserRepo{})

	_, err := svc.UpdateEntry(context.Background(), "admin-1", true, "entry-1", EntryInput{
		Date:      "2026-08-10",
		StartTime: "13:00",
		EndTime:   "14:00",
		Purpose:   "打ち合わせ",
	})
	if err != nil {
		t.Fatalf("UpdateEntry returned error: %v", err)
	}
	if updated == nil {
		t.Fatal("expected Update to be called")
	}
	if updated.UserID != "user-other" {
		t.Errorf("UserID = %q, want %q (所有者は変わらない)", updated.UserID, "user-other")
	}
}

// TestService_DeleteEntry_NotFound_ReturnsError は存在しないエントリ削除の拒否を検証する。
func TestService_DeleteEntry_NotFound_ReturnsError(t *testing.T) {
	svc := newTestService(&mockEntryRepo{}, &mockUserRepo{})

	err := svc.DeleteEntry(context.Background(), "user-1", false, "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeEntryNotFound {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeEntryNotFound)
	}
}

// TestService_ListEntries_NonAdminScopedToSelf は一般ユーザーの一覧が自分に限定されることを検証する。
func TestService_ListEntries_NonAdminScopedToSelf(t *testing.T) {
	var gotFilter repository.EntryFilter
	repo := &mockEntryRepo{
		listFn: func(ctx context.Context, filter repository.EntryFilter) ([]*model.TimeEntry, error) {
			gotFilter = filter
			return []*model.TimeEntry{{ID: "entry-1", UserID: "user-1", DurationMinutes: 60}}, nil
		},
		sumFn: func(ctx context.Context, filter repository.EntryFilter) (int, error) {
			return 60, nil
		},
	}
	svc := newTestService(repo, &mockUserRepo{})

	// 管理者でないユーザーが他人のIDを指定しても無視される
	result, err := svc.ListEntries(context.Background(), "user-1", false, ListQuery{UserID: "user-other"})
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if gotFilter.UserID != "user-1" {
		t.Errorf("filter.UserID = %q, want %q", gotFilter.UserID, "user-1")
	}
	if result.TotalMinutes != 60 {
		t.Errorf("TotalMinutes = %d, want 60", result.TotalMinutes)
	}
}

// TestService_ListEntries_MonthFilter は月指定フィルタの変換を検証する。
func TestService_ListEntries_MonthFilter(t *testing.T) {
	var gotFilter repository.EntryFilter
	repo := &mockEntryRepo{
		listFn: func(ctx context.Context, filter repository.EntryFilter) ([]*model.TimeEntry, error) {
			gotFilter = filter
			return nil, nil
		},
	}
	svc := newTestService(repo, &mockUserRepo{})

	_, err := svc.ListEntries(context.Background(), "user-1", false, ListQuery{Month: "2026-08"})
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if gotFilter.Year != 2026 || gotFilter.Month != time.August {
		t.Errorf("filter = %d/%v, want 2026/August", gotFilter.Year, gotFilter.Month)
	}
}

// TestService_ListEntries_InvalidMonth_ReturnsError は不正な月指定の拒否を検証する。
func TestService_ListEntries_InvalidMonth_ReturnsError(t *testing.T) {
	svc := newTestService(&mockEntryRepo{}, &mockUserRepo{})

	_, err := svc.ListEntries(context.Background(), "user-1", false, ListQuery{Month: "2026/08"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidMonth {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidMonth)
	}
}

// TestService_AllUsersMonthlySummary はエントリのないユーザーが合計0で含まれることを検証する。
func TestService_AllUsersMonthlySummary(t *testing.T) {
	repo := &mockEntryRepo{
		sumPerUserFn: func(ctx context.Context, filter repository.EntryFilter) (map[string]int, error) {
			return map[string]int{"user-1": 150}, nil
		},
	}
	userRepo := &mockUserRepo{
		listAllFn: func(ctx context.Context) ([]*model.User, error) {
			return []*model.User{
				{ID: "user-1", Name: "市川"},
				{ID: "user-2", Name: "佐藤"},
			}, nil
		},
	}
	svc := newTestService(repo, userRepo)

	summaries, err := svc.AllUsersMonthlySummary(context.Background(), "2026-08")
	if err != nil {
		t.Fatalf("AllUsersMonthlySummary returned error: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].TotalMinutes != 150 {
		t.Errorf("user-1 TotalMinutes = %d, want 150", summaries[0].TotalMinutes)
	}
	if summaries[0].Formatted != "2h 30m" {
		t.Errorf("user-1 Formatted = %q, want %q", summaries[0].Formatted, "2h 30m")
	}
	if summaries[1].TotalMinutes != 0 {
		t.Errorf("user-2 TotalMinutes = %d, want 0", summaries[1].TotalMinutes)
	}
	if summaries[1].TotalHours != 0 {
		t.Errorf("user-2 TotalHours = %v, want 0", summaries[1].TotalHours)
	}
}
