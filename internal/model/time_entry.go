package model

import (
	"fmt"
	"time"
)

// TimeEntry はユーザーが手動で記録したオフライン作業時間を表す。
// 1エントリは特定の日付の開始時刻〜終了時刻の区間で、
// DurationMinutesは常にStartTime/EndTimeから導出される。
type TimeEntry struct {
	ID              string
	UserID          string
	Date            time.Time // 日付のみ有効（時刻部分は無視する）
	StartTime       string    // "15:04" 形式
	EndTime         string    // "15:04" 形式
	DurationMinutes int
	Purpose         string
	Description     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// timeOfDayLayout はエントリの開始・終了時刻の形式。
const timeOfDayLayout = "15:04"

// ParseTimeOfDay は"15:04"形式の時刻文字列を検証してパースする。
func ParseTimeOfDay(s string) (time.Time, error) {
	t, err := time.Parse(timeOfDayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("時刻は HH:MM 形式で指定してください: %q", s)
	}
	return t, nil
}

// CalculateDuration は開始時刻と終了時刻から作業時間（分）を計算する。
// 終了時刻が開始時刻より前の場合は日をまたいだ作業とみなし翌日扱いで計算する。
// 結果は常に非負。
func CalculateDuration(startTime, endTime string) (int, error) {
	start, err := ParseTimeOfDay(startTime)
	if err != nil {
		return 0, err
	}
	end, err := ParseTimeOfDay(endTime)
	if err != nil {
		return 0, err
	}

	if end.Before(start) {
		end = end.Add(24 * time.Hour)
	}

	return int(end.Sub(start).Minutes()), nil
}
