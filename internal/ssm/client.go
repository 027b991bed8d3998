// Package ssm はScreenshotMonitor（SSM）連携機能を提供する。
// employmentIdの解決と期間指定の作業時間レポート取得、および
// 形状が一定しないレスポンスの正規化を含む。
package ssm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	// defaultBaseURL はScreenshotMonitor APIのベースURL。
	defaultBaseURL = "https://screenshotmonitor.com/api/v2"
	// tokenHeader はユーザーごとのAPIトークンを渡すヘッダー名。
	tokenHeader = "X-SSM-Token"
	// logBodyLimit はログに記録するレスポンスボディの最大バイト数。
	logBodyLimit = 500
)

// MetricsRecorder はSSM呼び出しのメトリクス収集インターフェース。
// テスト時や未設定時はNopMetricsに差し替え可能。
type MetricsRecorder interface {
	RecordSSMHTTPStatus(endpoint string, statusCode int)
	RecordSSMFetchLatency(duration time.Duration)
	RecordSSMFetchSuccess()
	RecordSSMFetchFailure(endpoint string)
}

// NopMetrics は何も記録しないMetricsRecorder実装。
type NopMetrics struct{}

func (NopMetrics) RecordSSMHTTPStatus(string, int)       {}
func (NopMetrics) RecordSSMFetchLatency(time.Duration)   {}
func (NopMetrics) RecordSSMFetchSuccess()                {}
func (NopMetrics) RecordSSMFetchFailure(string)          {}

// Client はScreenshotMonitor APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    MetricsRecorder
	baseURL    string // テストおよび設定で差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空文字列の場合は本番エンドポイントを使用する。
// metricsがnilの場合は記録なしで動作する。
func NewClient(httpClient *http.Client, logger *slog.Logger, metrics MetricsRecorder, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
		baseURL:    baseURL,
	}
}

// NewInsecureHTTPClient はTLS証明書検証を無効化した*http.Clientを返す。
// SSM上流の証明書チェーンが環境によって不完全なため、この上流に限定した
// 明示的なトラスト判断として検証をバイパスする。タイムアウトは必ず設定する。
func NewInsecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
}

// ResolveEmploymentID はGetCommonDataを呼び出してemploymentIdを解決する。
// GETが失敗ステータスを返した場合は1回だけPOSTで再試行する。
// いずれの既知の形状からもIDを抽出できない場合はUpstreamErrorを返す。
func (c *Client) ResolveEmploymentID(ctx context.Context, apiToken string) (string, error) {
	data, err := c.getCommonData(ctx, apiToken)
	if err != nil {
		return "", err
	}

	id, ok := extractEmploymentID(data)
	if !ok {
		c.logger.Error("SSM: employmentIdが見つかりませんでした")
		return "", newUpstreamError("GetCommonData", 0, fmt.Errorf("employmentIdを抽出できません"))
	}

	c.logger.Info("SSM: employmentIdを解決しました", slog.String("employment_id", id))
	return id, nil
}

// FetchReport は指定期間（両端含む、ISO形式）の作業時間レポートを取得する。
// 失敗ステータスの場合はUpstreamErrorを返す。
func (c *Client) FetchReport(ctx context.Context, apiToken, employmentID, from, to string) (Report, error) {
	payload := map[string]any{
		"employmentId": employmentID,
		"from":         from,
		"to":           to,
	}

	body, status, err := c.do(ctx, "GetReport", http.MethodPost, apiToken, payload)
	if err != nil {
		return nil, newUpstreamError("GetReport", 0, err)
	}
	if !is2xx(status) {
		return nil, newUpstreamError("GetReport", status, nil)
	}

	var report Report
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, newUpstreamError("GetReport", status, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err))
	}

	c.metrics.RecordSSMFetchSuccess()
	return report, nil
}

// getCommonData はGetCommonDataを呼び出してレスポンスをデコードする。
// GETの失敗時はPOSTで1回再試行する（上流のデプロイによってメソッド要件が異なる）。
func (c *Client) getCommonData(ctx context.Context, apiToken string) (map[string]any, error) {
	body, status, err := c.do(ctx, "GetCommonData", http.MethodGet, apiToken, nil)
	if err != nil || !is2xx(status) {
		c.logger.Info("SSM: GetCommonDataのGETが失敗したためPOSTで再試行します",
			slog.Int("status", status),
		)
		body, status, err = c.do(ctx, "GetCommonData", http.MethodPost, apiToken, nil)
	}
	if err != nil {
		return nil, newUpstreamError("GetCommonData", 0, err)
	}
	if !is2xx(status) {
		return nil, newUpstreamError("GetCommonData", status, nil)
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, newUpstreamError("GetCommonData", status, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err))
	}

	return data, nil
}

// do はHTTPリクエストを実行し、ボディとステータスコードを返す。
// すべての呼び出しとレスポンスボディ（切り詰め済み）をログに記録する。
func (c *Client) do(ctx context.Context, op, method string, apiToken string, payload any) ([]byte, int, error) {
	url := c.baseURL + "/" + op

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set(tokenHeader, apiToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordSSMFetchLatency(time.Since(start))
	if err != nil {
		c.metrics.RecordSSMFetchFailure(op)
		c.logger.Error("SSM: API呼び出しに失敗しました",
			slog.String("op", op),
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordSSMFetchFailure(op)
		return nil, resp.StatusCode, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	c.metrics.RecordSSMHTTPStatus(op, resp.StatusCode)
	if !is2xx(resp.StatusCode) {
		c.metrics.RecordSSMFetchFailure(op)
	}

	c.logger.Info("SSM: APIレスポンス",
		slog.String("op", op),
		slog.String("method", method),
		slog.Int("status", resp.StatusCode),
		slog.String("body", truncate(body, logBodyLimit)),
	)

	return body, resp.StatusCode, nil
}

// extractEmploymentID は既知の形状を優先順位順に試してemploymentIdを抽出する。
// (a) トップレベルのemploymentId、(b) employmentsリスト（非アーカイブ優先）、
// (c) data.employments、(d) 単数形employment の順。
func extractEmploymentID(data map[string]any) (string, bool) {
	if v, ok := field(data, "employmentId"); ok {
		if s := formatID(v); s != "" {
			return s, true
		}
	}

	employments, ok := listField(data, "employments")
	if !ok || len(employments) == 0 {
		if nested, nestedOK := mapField(data, "data"); nestedOK {
			employments, _ = listField(nested, "employments")
		}
	}
	if len(employments) == 0 {
		if single, singleOK := mapField(data, "employment"); singleOK {
			employments = []any{single}
		}
	}

	if len(employments) == 0 {
		return "", false
	}

	// 非アーカイブのemploymentを優先し、なければ先頭を使用する
	chosen := employments[0]
	for _, e := range employments {
		rec, recOK := e.(map[string]any)
		if !recOK {
			continue
		}
		if archived, archivedOK := field(rec, "isArchived"); archivedOK {
			if b, bOK := archived.(bool); bOK && b {
				continue
			}
		}
		chosen = e
		break
	}

	rec, recOK := chosen.(map[string]any)
	if !recOK {
		return "", false
	}
	for _, key := range []string{"id", "employmentId"} {
		if v, ok := field(rec, key); ok {
			if s := formatID(v); s != "" {
				return s, true
			}
		}
	}

	return "", false
}

// formatID はJSONの文字列・数値いずれの形のIDも文字列に正規化する。
func formatID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

// is2xx はHTTPステータスコードが成功かどうかを返す。
func is2xx(status int) bool {
	return status >= 200 && status < 300
}

// truncate はログ用にボディを最大nバイトに切り詰める。
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
