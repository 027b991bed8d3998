package ssm

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Report はGetReportの生レスポンスボディ。
// デプロイによってキーの大文字小文字や構造が一定しないため、
// 抽出は常にExtractTotalMinutes / ExtractDailySeriesを経由する。
type Report map[string]any

// isoDateLayout は正規化後の日付キーの形式。
const isoDateLayout = "2006-01-02"

// reportDateLayouts はタイムライン日付の許容形式。
// 上流は "2026-01-15" と "1/15/2026" の両方を返すことがある。
var reportDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"1/2/2006",
	"1/2/2006 15:04:05",
}

// minutesExtractor は1つのレスポンス形状から合計分数を取り出す抽出戦略。
// 形状が存在しない場合はfalseを返し、次の戦略に委ねる。
type minutesExtractor func(Report) (int, bool)

// totalMinutesExtractors は優先順位順の抽出戦略。最初に成功したものが採用される。
var totalMinutesExtractors = []minutesExtractor{
	extractFromChartsEmployments,
	extractFromBody,
	extractFromRootDuration,
}

// ExtractTotalMinutes はレポートから合計作業時間（分）を抽出する。
// いずれの既知の形状にも一致しない場合は0を返す（データなしは正常な状態でありエラーではない）。
func ExtractTotalMinutes(r Report) int {
	for _, extract := range totalMinutesExtractors {
		if minutes, ok := extract(r); ok {
			if minutes < 0 {
				return 0
			}
			return minutes
		}
	}
	return 0
}

// ExtractDailySeries はcharts.timelineから日別の作業時間マップを抽出する。
// キーはISO形式（YYYY-MM-DD）に正規化する。日付を解析できないレコードは
// 警告ログを出してスキップし、抽出全体は中断しない。
func ExtractDailySeries(r Report, logger *slog.Logger) map[string]int {
	daily := make(map[string]int)

	charts, ok := mapField(r, "charts")
	if !ok {
		return daily
	}
	timeline, ok := listField(charts, "timeline")
	if !ok {
		return daily
	}

	for _, item := range timeline {
		rec, recOK := item.(map[string]any)
		if !recOK {
			continue
		}

		rawDate, dateOK := field(rec, "Date")
		if !dateOK {
			continue
		}
		dateStr, strOK := rawDate.(string)
		if !strOK {
			continue
		}

		parsed, err := parseReportDate(dateStr)
		if err != nil {
			logger.Warn("SSM: タイムラインの日付を解析できないためスキップします",
				slog.String("date", dateStr),
			)
			continue
		}

		minutes := 0
		if v, vOK := field(rec, "Duration"); vOK {
			if m, mOK := toMinutes(v); mOK {
				minutes = m
			}
		}
		if minutes < 0 {
			minutes = 0
		}

		daily[parsed.Format(isoDateLayout)] = minutes
	}

	return daily
}

// extractFromChartsEmployments はcharts.employmentsの各レコードのDurationを合算する。
func extractFromChartsEmployments(r Report) (int, bool) {
	charts, ok := mapField(r, "charts")
	if !ok {
		return 0, false
	}
	records, ok := listField(charts, "employments")
	if !ok {
		return 0, false
	}
	return sumDurations(records), true
}

// extractFromBody はbodyの詳細レコードのDurationを合算する。
func extractFromBody(r Report) (int, bool) {
	records, ok := listField(r, "body")
	if !ok {
		return 0, false
	}
	return sumDurations(records), true
}

// extractFromRootDuration はトップレベルのDurationを整数に変換する。
func extractFromRootDuration(r Report) (int, bool) {
	v, ok := field(r, "Duration")
	if !ok {
		return 0, false
	}
	return toMinutes(v)
}

// sumDurations はレコードリストのDurationフィールドを合算する。
func sumDurations(records []any) int {
	total := 0
	for _, item := range records {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if v, vOK := field(rec, "Duration"); vOK {
			if m, mOK := toMinutes(v); mOK {
				total += m
			}
		}
	}
	return total
}

// parseReportDate は複数の日付形式を順に試してパースする。
func parseReportDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range reportDateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// toMinutes はJSON値を分数（整数）に変換する。
// 数値・数値文字列のいずれも受け付ける。
func toMinutes(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return int(f), true
	default:
		return 0, false
	}
}

// field はマップからキーを取得する。完全一致を優先し、
// なければ大文字小文字を無視して探す（上流のキー揺れ対策）。
func field(m map[string]any, name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// mapField はキーの値をマップとして取得する。
func mapField(m map[string]any, name string) (map[string]any, bool) {
	v, ok := field(m, name)
	if !ok {
		return nil, false
	}
	nested, ok := v.(map[string]any)
	return nested, ok
}

// listField はキーの値をリストとして取得する。
func listField(m map[string]any, name string) ([]any, bool) {
	v, ok := field(m, name)
	if !ok {
		return nil, false
	}
	list, ok := v.([]any)
	return list, ok
}
