// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/worklog/internal/dashboard"
	"github.com/hitoshi/worklog/internal/middleware"
	"github.com/hitoshi/worklog/internal/model"
)

// DashboardServiceInterface はダッシュボードハンドラーが必要とするサービスインターフェース。
type DashboardServiceInterface interface {
	// BuildDashboard はダッシュボード表示用データを一括で組み立てる。
	BuildDashboard(ctx context.Context, user *model.User) (*dashboard.View, error)
}

// SSMStatsServiceInterface はSSM統計ハンドラーが必要とするサービスインターフェース。
type SSMStatsServiceInterface interface {
	// DailyOnlineMinutes は当日のオンライン作業時間を返す。
	DailyOnlineMinutes(ctx context.Context, user *model.User, refresh bool) dashboard.DailyStats
}

// DashboardHandler はダッシュボードAPIのHTTPハンドラー。
type DashboardHandler struct {
	dashboardService DashboardServiceInterface
	ssmService       SSMStatsServiceInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(dashboardService DashboardServiceInterface, ssmService SSMStatsServiceInterface) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		ssmService:       ssmService,
	}
}

// GetDashboard はダッシュボード表示用データを返す。
// GET /api/dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	view, err := h.dashboardService.BuildDashboard(r.Context(), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// GetDailySSMStats は当日のSSMオンライン作業時間を返す。
// GET /api/ssm/daily?refresh=true でキャッシュをバイパスする。
func (h *DashboardHandler) GetDailySSMStats(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	refresh := r.URL.Query().Get("refresh") == "true"
	stats := h.ssmService.DailyOnlineMinutes(r.Context(), user, refresh)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
