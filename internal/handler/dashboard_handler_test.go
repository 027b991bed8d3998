package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/worklog/internal/dashboard"
	"github.com/hitoshi/worklog/internal/middleware"
	"github.com/hitoshi/worklog/internal/model"
)

// --- モック ---

type mockDashboardService struct {
	buildFn func(ctx context.Context, user *model.User) (*dashboard.View, error)
}

func (m *mockDashboardService) BuildDashboard(ctx context.Context, user *model.User) (*dashboard.View, error) {
	return m.buildFn(ctx, user)
}

type mockSSMStatsService struct {
	dailyFn func(ctx context.Context, user *model.User, refresh bool) dashboard.DailyStats
}

func (m *mockSSMStatsService) DailyOnlineMinutes(ctx context.Context, user *model.User, refresh bool) dashboard.DailyStats {
	if m.dailyFn != nil {
		return m.dailyFn(ctx, user, refresh)
	}
	return dashboard.DailyStats{}
}

func authedRequest(method, target string, user *model.User) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(middleware.ContextWithUser(req.Context(), user))
}

// --- テスト ---

// TestDashboardHandler_GetDashboard はダッシュボード取得の正常系を検証する。
func TestDashboardHandler_GetDashboard(t *testing.T) {
	svc := &mockDashboardService{
		buildFn: func(ctx context.Context, user *model.User) (*dashboard.View, error) {
			return &dashboard.View{
				Stats: dashboard.Stats{
					Today: dashboard.StatCard{Minutes: 150, Formatted: "2h 30m"},
				},
				MonthlyPace: dashboard.MonthlyPace{Status: "on_track"},
			}, nil
		},
	}
	h := NewDashboardHandler(svc, &mockSSMStatsService{})

	req := authedRequest(http.MethodGet, "/api/dashboard", &model.User{ID: "user-1"})
	w := httptest.NewRecorder()

	h.GetDashboard(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var view dashboard.View
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Stats.Today.Formatted != "2h 30m" {
		t.Errorf("Today.Formatted = %q, want %q", view.Stats.Today.Formatted, "2h 30m")
	}
	if view.MonthlyPace.Status != "on_track" {
		t.Errorf("MonthlyPace.Status = %q, want %q", view.MonthlyPace.Status, "on_track")
	}
}

// TestDashboardHandler_GetDashboard_Unauthenticated は未認証リクエストの拒否を検証する。
func TestDashboardHandler_GetDashboard_Unauthenticated(t *testing.T) {
	h := NewDashboardHandler(&mockDashboardService{}, &mockSSMStatsService{})

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	w := httptest.NewRecorder()

	h.GetDashboard(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// TestDashboardHandler_GetDailySSMStats_PassesRefreshFlag はrefreshクエリの伝播を検証する。
func TestDashboardHandler_GetDailySSMStats_PassesRefreshFlag(t *testing.T) {
	var gotRefresh bool
	svc := &mockSSMStatsService{
		dailyFn: func(ctx context.Context, user *model.User, refresh bool) dashboard.DailyStats {
			gotRefresh = refresh
			return dashboard.DailyStats{Configured: true, OnlineMinutes: 60}
		},
	}
	h := NewDashboardHandler(&mockDashboardService{}, svc)

	req := authedRequest(http.MethodGet, "/api/ssm/daily?refresh=true", &model.User{ID: "user-1"})
	w := httptest.NewRecorder()

	h.GetDailySSMStats(w, req)

	if !gotRefresh {
		t.Error("refresh = false, want true")
	}

	var stats dashboard.DailyStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.OnlineMinutes != 60 {
		t.Errorf("OnlineMinutes = %d, want 60", stats.OnlineMinutes)
	}
}

// TestDashboardHandler_GetDailySSMStats_UpstreamError は上流失敗がエラーフィールド付きの
// 200レスポンスになることを検証する（ダッシュボードは落とさない）。
func TestDashboardHandler_GetDailySSMStats_UpstreamError(t *testing.T) {
	svc := &mockSSMStatsService{
		dailyFn: func(ctx context.Context, user *model.User, refresh bool) dashboard.DailyStats {
			return dashboard.DailyStats{Configured: true, Error: "オンライン作業時間の取得に失敗しました"}
		},
	}
	h := NewDashboardHandler(&mockDashboardService{}, svc)

	req := authedRequest(http.MethodGet, "/api/ssm/daily", &model.User{ID: "user-1"})
	w := httptest.NewRecorder()

	h.GetDailySSMStats(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var stats dashboard.DailyStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.Error == "" {
		t.Error("Error フィールドが空")
	}
	if stats.OnlineMinutes != 0 {
		t.Errorf("OnlineMinutes = %d, want 0", stats.OnlineMinutes)
	}
}
