// Package pace は月間作業目標に対するペース計算を提供する。
// 固定の週次休業日（金曜）を除いた営業日数から月間目標を算出し、
// 残り営業日に対する必要日次作業時間とステータスを導出する。
package pace

import (
	"fmt"
	"time"
)

const (
	// RestDay は営業日数から除外する固定の週次休業日。
	// 業務ルールとして固定であり、ユーザー設定ではない。
	RestDay = time.Friday
	// DailyTargetMinutes は営業日1日あたりの目標作業時間（8時間）。
	DailyTargetMinutes = 8 * 60
	// overloadThresholdMinutes はこれを超える必要日次作業時間を「遅れ」と判定する閾値（10時間）。
	overloadThresholdMinutes = 10 * 60
)

// Status は月間目標に対する進捗の分類。
type Status string

const (
	// StatusOnTrack は現在のペースで目標達成可能な状態。
	StatusOnTrack Status = "on_track"
	// StatusCompleted は目標を既に達成した状態。
	StatusCompleted Status = "completed"
	// StatusMissed は残り営業日がなく目標未達が確定した状態。
	StatusMissed Status = "missed"
	// StatusBehind は達成には1日10時間超の作業が必要な状態。
	StatusBehind Status = "behind"
)

// Summary は月間ペース計算の結果。リクエストごとに再計算され、永続化されない。
type Summary struct {
	MonthlyTargetMinutes int
	TotalWorkedMinutes   int
	OfflineMinutes       int
	OnlineMinutes        int
	RemainingMinutes     int
	TotalWorkingDays     int
	RemainingWorkingDays int
	RequiredDailyMinutes int
	Status               Status
}

// ComputeMonthlyPace は当月の作業ペースを計算する。
// offlineMinutes/onlineMinutesはそれぞれ当月の手動記録・外部トラッカーの累計分数。
// 同一入力に対して常に同一のSummaryを返す。
func ComputeMonthlyPace(now time.Time, offlineMinutes, onlineMinutes int) Summary {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	monthEnd := monthStart.AddDate(0, 1, -1)

	totalDays := monthEnd.Day()
	restDays := CountRestDays(monthStart, monthEnd)
	workingDays := totalDays - restDays
	targetMinutes := workingDays * DailyTargetMinutes

	totalWorked := offlineMinutes + onlineMinutes

	remaining := targetMinutes - totalWorked
	if remaining < 0 {
		remaining = 0
	}

	// 残り営業日は明日から月末まで。今日の作業は累計に含まれているため今日は数えない。
	remainingWorkingDays := 0
	tomorrow := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	for d := tomorrow; !d.After(monthEnd); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != RestDay {
			remainingWorkingDays++
		}
	}

	requiredDaily := 0
	if remainingWorkingDays > 0 {
		// 切り上げ除算
		requiredDaily = (remaining + remainingWorkingDays - 1) / remainingWorkingDays
	}

	// 判定順が意味を持つ: 残り0分かつ残り営業日0日はcompletedが優先される。
	status := StatusOnTrack
	switch {
	case remaining <= 0:
		status = StatusCompleted
	case remainingWorkingDays == 0:
		status = StatusMissed
	case requiredDaily > overloadThresholdMinutes:
		status = StatusBehind
	}

	return Summary{
		MonthlyTargetMinutes: targetMinutes,
		TotalWorkedMinutes:   totalWorked,
		OfflineMinutes:       offlineMinutes,
		OnlineMinutes:        onlineMinutes,
		RemainingMinutes:     remaining,
		TotalWorkingDays:     workingDays,
		RemainingWorkingDays: remainingWorkingDays,
		RequiredDailyMinutes: requiredDaily,
		Status:               status,
	}
}

// CountRestDays は[start, end]の範囲で休業日（金曜）に当たる日数を数える。
// カレンダーを1日ずつ走査する。
func CountRestDays(start, end time.Time) int {
	count := 0
	d := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
	for !d.After(last) {
		if d.Weekday() == RestDay {
			count++
		}
		d = d.AddDate(0, 0, 1)
	}
	return count
}

// FormatDuration は分数を "2h 30m" / "2h" / "45m" 形式に整形する。
func FormatDuration(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	h := minutes / 60
	m := minutes % 60

	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
