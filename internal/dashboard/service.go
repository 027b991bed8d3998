package dashboard

import (
	"context"
	"math"
	"time"

	"github.com/hitoshi/worklog/internal/model"
	"github.com/hitoshi/worklog/internal/pace"
	"github.com/hitoshi/worklog/internal/repository"
)

const recentEntryLimit = 5

// OnlineTimeSource はSSM由来のオンライン作業時間の取得インターフェース。
// 実装はSSMService。テストではモックに差し替える。
type OnlineTimeSource interface {
	DailyOnlineMinutes(ctx context.Context, user *model.User, refresh bool) DailyStats
	MonthlyOnlineMinutes(ctx context.Context, user *model.User) int
	WeeklySeries(ctx context.Context, user *model.User) map[string]int
}

// StatCard は集計値1件の表示用データ。
type StatCard struct {
	Minutes   int    `json:"minutes"`
	Formatted string `json:"formatted"`
}

// Stats はダッシュボード上段の集計カード群。
// Todayは常にログインユーザー本人、ScopedTodayは管理者の場合に全ユーザー合計となる。
type Stats struct {
	Today       StatCard `json:"today"`
	Month       StatCard `json:"month"`
	ScopedToday StatCard `json:"scoped_today"`
	ScopedMonth StatCard `json:"scoped_month"`
}

// ChartPoint は7日間チャートの1日分。
type ChartPoint struct {
	Date     string  `json:"date"`      // 表示用 "Jan 02"
	FullDate string  `json:"full_date"` // ISO形式
	Minutes  int     `json:"minutes"`
	Hours    float64 `json:"hours"`
}

// EntryView は直近エントリの表示用データ。
type EntryView struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	Date              string `json:"date"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	DurationMinutes   int    `json:"duration_minutes"`
	DurationFormatted string `json:"duration_formatted"`
	Purpose           string `json:"purpose"`
}

// AdminStats は管理者のみに表示するグローバル統計。
type AdminStats struct {
	TotalUsers       int `json:"total_users"`
	ActiveUsersToday int `json:"active_users_today"`
}

// MonthlyPace は月間ペースの表示用データ。
type MonthlyPace struct {
	MonthlyTargetMinutes int     `json:"monthly_target_minutes"`
	TotalWorkedMinutes   int     `json:"total_worked_minutes"`
	OfflineMinutes       int     `json:"offline_minutes"`
	OnlineMinutes        int     `json:"online_minutes"`
	RemainingMinutes     int     `json:"remaining_minutes"`
	TotalWorkingDays     int     `json:"total_working_days"`
	RemainingWorkingDays int     `json:"remaining_working_days"`
	RequiredDailyMinutes int     `json:"required_daily_minutes"`
	Status               string  `json:"status"`
	TargetFormatted      string  `json:"target_formatted"`
	WorkedFormatted      string  `json:"worked_formatted"`
	RemainingFormatted   string  `json:"remaining_formatted"`
	RequiredFormatted    string  `json:"required_daily_formatted"`
	SSMConfigured        bool    `json:"ssm_configured"`
	ProgressPercent      float64 `json:"progress_percent"`
}

// View はダッシュボードAPIのレスポンス全体。
type View struct {
	Stats         Stats        `json:"stats"`
	RecentEntries []EntryView  `json:"recent_entries"`
	ChartData     []ChartPoint `json:"chart_data"`
	MonthlyPace   MonthlyPace  `json:"monthly_pace"`
	AdminStats    *AdminStats  `json:"admin_stats,omitempty"`
}

// Service はダッシュボードの組み立てを行う。
type Service struct {
	entryRepo repository.TimeEntryRepository
	userRepo  repository.UserRepository
	online    OnlineTimeSource
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(entryRepo repository.TimeEntryRepository, userRepo repository.UserRepository, online OnlineTimeSource) *Service {
	return &Service{
		entryRepo: entryRepo,
		userRepo:  userRepo,
		online:    online,
		now:       time.Now,
	}
}

// BuildDashboard はダッシュボード表示用データを一括で組み立てる。
// SSM連携の失敗は各値の0フォールバックに留め、ダッシュボード全体は常に返す。
func (s *Service) BuildDashboard(ctx context.Context, user *model.User) (*View, error) {
	now := s.now()
	today := dateOnly(now)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	stats, err := s.buildStats(ctx, user, today, monthStart)
	if err != nil {
		return nil, err
	}

	recent, err := s.recentEntries(ctx, user)
	if err != nil {
		return nil, err
	}

	chart, err := s.buildChartData(ctx, user, today)
	if err != nil {
		return nil, err
	}

	paceView, err := s.buildMonthlyPace(ctx, user, now, monthStart, today)
	if err != nil {
		return nil, err
	}

	view := &View{
		Stats:         stats,
		RecentEntries: recent,
		ChartData:     chart,
		MonthlyPace:   paceView,
	}

	if user.IsAdmin {
		adminStats, err := s.buildAdminStats(ctx, today)
		if err != nil {
			return nil, err
		}
		view.AdminStats = adminStats
	}

	return view, nil
}

// buildStats は集計カードを組み立てる。
// 管理者はScoped系が全ユーザー合計、一般ユーザーは本人の値の再掲となる。
func (s *Service) buildStats(ctx context.Context, user *model.User, today, monthStart time.Time) (Stats, error) {
	ownToday, err := s.entryRepo.SumDuration(ctx, repository.EntryFilter{
		UserID:   user.ID,
		DateFrom: &today,
		DateTo:   &today,
	})
	if err != nil {
		return Stats{}, err
	}

	ownMonth, err := s.entryRepo.SumDuration(ctx, repository.EntryFilter{
		UserID: user.ID,
		Year:   monthStart.Year(),
		Month:  monthStart.Month(),
	})
	if err != nil {
		return Stats{}, err
	}

	scopedToday, scopedMonth := ownToday, ownMonth
	if user.IsAdmin {
		scopedToday, err = s.entryRepo.SumDuration(ctx, repository.EntryFilter{
			DateFrom: &today,
			DateTo:   &today,
		})
		if err != nil {
			return Stats{}, err
		}
		scopedMonth, err = s.entryRepo.SumDuration(ctx, repository.EntryFilter{
			Year:  monthStart.Year(),
			Month: monthStart.Month(),
		})
		if err != nil {
			return Stats{}, err
		}
	}

	return Stats{
		Today:       newStatCard(ownToday),
		Month:       newStatCard(ownMonth),
		ScopedToday: newStatCard(scopedToday),
		ScopedMonth: newStatCard(scopedMonth),
	}, nil
}

// recentEntries は直近のエントリを返す。管理者は全ユーザー、一般ユーザーは本人のみ。
func (s *Service) recentEntries(ctx context.Context, user *model.User) ([]EntryView, error) {
	scopeUserID := user.ID
	if user.IsAdmin {
		scopeUserID = ""
	}
	entries, err := s.entryRepo.ListRecent(ctx, scopeUserID, recentEntryLimit)
	if err != nil {
		return nil, err
	}

	views := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, EntryView{
			ID:                e.ID,
			UserID:            e.UserID,
			Date:              e.Date.Format(isoDateLayout),
			StartTime:         e.StartTime,
			EndTime:           e.EndTime,
			DurationMinutes:   e.DurationMinutes,
			DurationFormatted: pace.FormatDuration(e.DurationMinutes),
			Purpose:           e.Purpose,
		})
	}
	return views, nil
}

// buildChartData は直近7日間のチャートデータを古い日付から順に組み立てる。
// 各日の値はオフラインエントリとSSMオンライン時間の合算。
func (s *Service) buildChartData(ctx context.Context, user *model.User, today time.Time) ([]ChartPoint, error) {
	from := today.AddDate(0, 0, -6)

	offline, err := s.entryRepo.SumPerDay(ctx, user.ID, from, today)
	if err != nil {
		return nil, err
	}
	online := s.online.WeeklySeries(ctx, user)

	points := make([]ChartPoint, 0, 7)
	for d := from; !d.After(today); d = d.AddDate(0, 0, 1) {
		iso := d.Format(isoDateLayout)
		minutes := offline[iso] + online[iso]
		points = append(points, ChartPoint{
			Date:     d.Format("Jan 02"),
			FullDate: iso,
			Minutes:  minutes,
			Hours:    math.Round(float64(minutes)/60*10) / 10,
		})
	}
	return points, nil
}

// buildMonthlyPace は月間ペースを計算して表示用に整形する。
func (s *Service) buildMonthlyPace(ctx context.Context, user *model.User, now, monthStart, today time.Time) (MonthlyPace, error) {
	offline, err := s.entryRepo.SumDuration(ctx, repository.EntryFilter{
		UserID: user.ID,
		Year:   monthStart.Year(),
		Month:  monthStart.Month(),
	})
	if err != nil {
		return MonthlyPace{}, err
	}

	online := s.online.MonthlyOnlineMinutes(ctx, user)
	summary := pace.ComputeMonthlyPace(now, offline, online)

	progress := 0.0
	if summary.MonthlyTargetMinutes > 0 {
		progress = math.Round(float64(summary.TotalWorkedMinutes)/float64(summary.MonthlyTargetMinutes)*1000) / 10
		if progress > 100 {
			progress = 100
		}
	}

	return MonthlyPace{
		MonthlyTargetMinutes: summary.MonthlyTargetMinutes,
		TotalWorkedMinutes:   summary.TotalWorkedMinutes,
		OfflineMinutes:       summary.OfflineMinutes,
		OnlineMinutes:        summary.OnlineMinutes,
		RemainingMinutes:     summary.RemainingMinutes,
		TotalWorkingDays:     summary.TotalWorkingDays,
		RemainingWorkingDays: summary.RemainingWorkingDays,
		RequiredDailyMinutes: summary.RequiredDailyMinutes,
		Status:               string(summary.Status),
		TargetFormatted:      pace.FormatDuration(summary.MonthlyTargetMinutes),
		WorkedFormatted:      pace.FormatDuration(summary.TotalWorkedMinutes),
		RemainingFormatted:   pace.FormatDuration(summary.RemainingMinutes),
		RequiredFormatted:    pace.FormatDuration(summary.RequiredDailyMinutes),
		SSMConfigured:        user.SSMConfigured(),
		ProgressPercent:      progress,
	}, nil
}

// buildAdminStats は管理者向けのグローバル統計を組み立てる。
func (s *Service) buildAdminStats(ctx context.Context, today time.Time) (*AdminStats, error) {
	total, err := s.userRepo.CountAll(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.entryRepo.CountActiveUsersOn(ctx, today)
	if err != nil {
		return nil, err
	}
	return &AdminStats{TotalUsers: total, ActiveUsersToday: active}, nil
}

func newStatCard(minutes int) StatCard {
	return StatCard{Minutes: minutes, Formatted: pace.FormatDuration(minutes)}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
