// Package dashboard はダッシュボード表示用の集計ロジックを提供する。
// オフラインエントリの集計とScreenshotMonitorのオンライン作業時間を統合する。
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/worklog/internal/cache"
	"github.com/hitoshi/worklog/internal/model"
	"github.com/hitoshi/worklog/internal/ssm"
)

const isoDateLayout = "2006-01-02"

// CacheMetricsRecorder はキャッシュのヒット・ミスを記録する。
type CacheMetricsRecorder interface {
	RecordCacheHit(purpose string)
	RecordCacheMiss(purpose string)
}

// NopCacheMetrics は何も記録しないCacheMetricsRecorder。
type NopCacheMetrics struct{}

func (NopCacheMetrics) RecordCacheHit(string)  {}
func (NopCacheMetrics) RecordCacheMiss(string) {}

// SSMTTLConfig はSSM集計キャッシュのTTL設定。
type SSMTTLConfig struct {
	Daily   time.Duration
	Weekly  time.Duration
	Monthly time.Duration
}

// DailyStats は当日のオンライン作業時間の取得結果。
// 取得失敗時はOnlineMinutes=0でErrorに失敗理由が入る（ダッシュボードは落とさない）。
type DailyStats struct {
	Configured    bool   `json:"configured"`
	OnlineMinutes int    `json:"online_minutes"`
	Cached        bool   `json:"cached"`
	Error         string `json:"error,omitempty"`
}

// SSMService はScreenshotMonitorのオンライン作業時間をキャッシュ付きで提供する。
type SSMService struct {
	client  *ssm.Client
	store   *cache.Store
	ttl     SSMTTLConfig
	logger  *slog.Logger
	metrics CacheMetricsRecorder
	now     func() time.Time
}

// NewSSMService はSSMServiceの新しいインスタンスを生成する。
func NewSSMService(client *ssm.Client, store *cache.Store, ttl SSMTTLConfig, logger *slog.Logger, metrics CacheMetricsRecorder) *SSMService {
	if metrics == nil {
		metrics = NopCacheMetrics{}
	}
	return &SSMService{
		client:  client,
		store:   store,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// DailyOnlineMinutes は当日のオンライン作業時間（分）を返す。
// refresh=trueの場合はキャッシュを破棄してから取得する。
func (s *SSMService) DailyOnlineMinutes(ctx context.Context, user *model.User, refresh bool) DailyStats {
	if !user.SSMConfigured() {
		return DailyStats{Configured: false}
	}

	key := cache.Key{Purpose: cache.PurposeSSMDaily, UserID: user.ID}
	if refresh {
		s.store.Forget(key)
	}

	today := s.now().Format(isoDateLayout)
	minutes, hit, err := s.getOrFetch(ctx, key, s.ttl.Daily, user, today, today, ssm.ExtractTotalMinutes)
	if err != nil {
		return DailyStats{Configured: true, Error: "オンライン作業時間の取得に失敗しました"}
	}
	return DailyStats{Configured: true, OnlineMinutes: minutes, Cached: hit}
}

// MonthlyOnlineMinutes は今月（1日から今日まで）のオンライン作業時間（分）を返す。
// 未設定・取得失敗時は0を返し、ダッシュボード組み立てを止めない。
func (s *SSMService) MonthlyOnlineMinutes(ctx context.Context, user *model.User) int {
	if !user.SSMConfigured() {
		return 0
	}

	now := s.now()
	key := cache.Key{
		Purpose: cache.PurposeSSMMonthly,
		UserID:  user.ID,
		Period:  now.Format("2006-01"),
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	minutes, _, err := s.getOrFetch(ctx, key, s.ttl.Monthly,
		user, monthStart.Format(isoDateLayout), now.Format(isoDateLayout), ssm.ExtractTotalMinutes)
	if err != nil {
		return 0
	}
	return minutes
}

// WeeklySeries は直近7日間（今日を含む）の日別オンライン作業時間を返す。
// キーはISO形式の日付。未設定・取得失敗時は空マップを返す。
func (s *SSMService) WeeklySeries(ctx context.Context, user *model.User) map[string]int {
	if !user.SSMConfigured() {
		return map[string]int{}
	}

	now := s.now()
	key := cache.Key{
		Purpose: cache.PurposeSSMWeekChart,
		UserID:  user.ID,
		Period:  now.Format(isoDateLayout),
	}
	from := now.AddDate(0, 0, -6)

	series, hit, err := cache.GetOrCompute(ctx, s.store, key, s.ttl.Weekly, func(ctx context.Context) (map[string]int, error) {
		report, err := s.fetchReport(ctx, user, from.Format(isoDateLayout), now.Format(isoDateLayout))
		if err != nil {
			return nil, err
		}
		return ssm.ExtractDailySeries(report, s.logger), nil
	})
	s.recordCacheResult(key, hit, err)
	if err != nil {
		s.store.Forget(key)
		s.logger.Warn("週間チャートの取得に失敗しました", "user_id", user.ID, "error", err)
		return map[string]int{}
	}
	return series
}

// getOrFetch は合計分を返す取得処理のキャッシュ共通化。
func (s *SSMService) getOrFetch(
	ctx context.Context,
	key cache.Key,
	ttl time.Duration,
	user *model.User,
	from, to string,
	extract func(ssm.Report) int,
) (int, bool, error) {
	minutes, hit, err := cache.GetOrCompute(ctx, s.store, key, ttl, func(ctx context.Context) (int, error) {
		report, err := s.fetchReport(ctx, user, from, to)
		if err != nil {
			return 0, err
		}
		return extract(report), nil
	})
	s.recordCacheResult(key, hit, err)
	if err != nil {
		// 失敗したキーは破棄して次回に再取得させる
		s.store.Forget(key)
		s.logger.Warn("オンライン作業時間の取得に失敗しました",
			"user_id", user.ID, "from", from, "to", to, "error", err)
		return 0, false, err
	}
	return minutes, hit, nil
}

// fetchReport は従業員IDを解決してレポートを取得する。
func (s *SSMService) fetchReport(ctx context.Context, user *model.User, from, to string) (ssm.Report, error) {
	employmentID, err := s.client.ResolveEmploymentID(ctx, user.SSMAPIToken)
	if err != nil {
		return nil, fmt.Errorf("従業員IDの解決に失敗しました: %w", err)
	}
	return s.client.FetchReport(ctx, user.SSMAPIToken, employmentID, from, to)
}

func (s *SSMService) recordCacheResult(key cache.Key, hit bool, err error) {
	if err != nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit(string(key.Purpose))
	} else {
		s.metrics.RecordCacheMiss(string(key.Purpose))
	}
}
