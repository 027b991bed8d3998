package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/worklog/internal/middleware"
	"github.com/hitoshi/worklog/internal/model"
	"github.com/hitoshi/worklog/internal/timeentry"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// TimeEntryServiceInterface はタイムエントリハンドラーが必要とするサービスインターフェース。
type TimeEntryServiceInterface interface {
	CreateEntry(ctx context.Context, userID string, in timeentry.EntryInput) (*model.TimeEntry, error)
	UpdateEntry(ctx context.Context, userID string, isAdmin bool, entryID string, in timeentry.EntryInput) (*model.TimeEntry, error)
	DeleteEntry(ctx context.Context, userID string, isAdmin bool, entryID string) error
	GetEntry(ctx context.Context, userID string, isAdmin bool, entryID string) (*model.TimeEntry, error)
	ListEntries(ctx context.Context, userID string, isAdmin bool, q timeentry.ListQuery) (*timeentry.ListResult, error)
	MonthlySummary(ctx context.Context, userID, month string) (*timeentry.UserMonthlySummary, error)
	AllUsersMonthlySummary(ctx context.Context, month string) ([]*timeentry.UserMonthlySummary, error)
}

// TimeEntryHandler はタイムエントリ管理のHTTPハンドラー。
type TimeEntryHandler struct {
	service TimeEntryServiceInterface
}

// NewTimeEntryHandler はTimeEntryHandlerを生成する。
func NewTimeEntryHandler(service TimeEntryServiceInterface) *TimeEntryHandler {
	return &TimeEntryHandler{
		service: service,
	}
}

// entryRequest はエントリ作成・更新リクエストのボディ。
type entryRequest struct {
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Purpose     string `json:"purpose"`
	Description string `json:"description"`
}

// entryResponse はタイムエントリのAPIレスポンス。
type entryResponse struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Purpose         string    `json:"purpose"`
	Description     string    `json:"description,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// entryListResponse はエントリ一覧のAPIレスポンス。
type entryListResponse struct {
	Entries      []entryResponse `json:"entries"`
	TotalMinutes int             `json:"total_minutes"`
}

// summaryResponse は月次集計のAPIレスポンス。
type summaryResponse struct {
	UserID       string  `json:"user_id"`
	UserName     string  `json:"user_name"`
	Month        string  `json:"month"`
	TotalMinutes int     `json:"total_minutes"`
	TotalHours   float64 `json:"total_hours"`
	Formatted    string  `json:"formatted"`
}

// ListEntries はエントリ一覧を取得する。
// GET /api/time-entries?month=YYYY-MM&from=YYYY-MM-DD&to=YYYY-MM-DD&user_id=...&limit=&offset=
func (h *TimeEntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	query := r.URL.Query()
	q := timeentry.ListQuery{
		UserID:   query.Get("user_id"),
		Month:    query.Get("month"),
		DateFrom: query.Get("from"),
		DateTo:   query.Get("to"),
		Limit:    parseIntParam(query.Get("limit"), defaultListLimit, maxListLimit),
		Offset:   parseIntParam(query.Get("offset"), 0, 1<<30),
	}

	result, err := h.service.ListEntries(r.Context(), user.ID, user.IsAdmin, q)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	entries := make([]entryResponse, len(result.Entries))
	for i, e := range result.Entries {
		entries[i] = toEntryResponse(e)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entryListResponse{
		Entries:      entries,
		TotalMinutes: result.TotalMinutes,
	})
}

// CreateEntry は新規エントリを作成する。
// POST /api/time-entries
func (h *TimeEntryHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidBodyError())
		return
	}

	entry, err := h.service.CreateEntry(r.Context(), user.ID, toEntryInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toEntryResponse(entry))
}

// GetEntry はエントリ詳細を取得する。
// GET /api/time-entries/:id
func (h *TimeEntryHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	entryID := chi.URLParam(r, "id")

	entry, err := h.service.GetEntry(r.Context(), user.ID, user.IsAdmin, entryID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toEntryResponse(entry))
}

// UpdateEntry はエントリを更新する。
// PATCH /api/time-entries/:id
func (h *TimeEntryHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	entryID := chi.URLParam(r, "id")

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidBodyError())
		return
	}

	entry, err := h.service.UpdateEntry(r.Context(), user.ID, user.IsAdmin, entryID, toEntryInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toEntryResponse(entry))
}

// DeleteEntry はエントリを削除する。
// DELETE /api/time-entries/:id
func (h *TimeEntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	entryID := chi.URLParam(r, "id")

	if err := h.service.DeleteEntry(r.Context(), user.ID, user.IsAdmin, entryID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MonthlySummary は月次集計を取得する。
// GET /api/time-entries/summary?month=YYYY-MM
// 管理者はall=trueで全ユーザーの集計を取得できる。
func (h *TimeEntryHandler) MonthlySummary(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	month := r.URL.Query().Get("month")
	if month == "" {
		month = time.Now().Format("2006-01")
	}

	if user.IsAdmin && r.URL.Query().Get("all") == "true" {
		summaries, err := h.service.AllUsersMonthlySummary(r.Context(), month)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		results := make([]summaryResponse, len(summaries))
		for i, s := range summaries {
			results[i] = toSummaryResponse(s)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(results)
		return
	}

	summary, err := h.service.MonthlySummary(r.Context(), user.ID, month)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSummaryResponse(summary))
}

// toEntryInput はリクエストボディをサービス入力に変換する。
func toEntryInput(req entryRequest) timeentry.EntryInput {
	return timeentry.EntryInput{
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Purpose:     req.Purpose,
		Description: req.Description,
	}
}

// toEntryResponse はドメインのTimeEntryをレスポンス型に変換する。
func toEntryResponse(e *model.TimeEntry) entryResponse {
	return entryResponse{
		ID:              e.ID,
		UserID:          e.UserID,
		Date:            e.Date.Format("2006-01-02"),
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		DurationMinutes: e.DurationMinutes,
		Purpose:         e.Purpose,
		Description:     e.Description,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

// toSummaryResponse は月次集計をレスポンス型に変換する。
func toSummaryResponse(s *timeentry.UserMonthlySummary) summaryResponse {
	return summaryResponse{
		UserID:       s.UserID,
		UserName:     s.UserName,
		Month:        s.Month,
		TotalMinutes: s.TotalMinutes,
		TotalHours:   s.TotalHours,
		Formatted:    s.Formatted,
	}
}

// invalidBodyError はリクエストボディ解析失敗のエラーを生成する。
func invalidBodyError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// parseIntParam はクエリパラメータを整数に変換する。不正値はデフォルトにフォールバックする。
func parseIntParam(raw string, defaultVal, max int) int {
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return defaultVal
	}
	if v > max {
		return max
	}
	return v
}
