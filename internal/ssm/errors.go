package ssm

import "fmt"

// UpstreamError はScreenshotMonitor API呼び出しの失敗を表す。
// HTTP失敗、employmentId未検出、レスポンス解析不能のいずれも本エラーに分類される。
// キャッシュ境界で捕捉され、ダッシュボードにはゼロ値フォールバックとして伝播する。
type UpstreamError struct {
	Op     string // 失敗した操作（"GetCommonData", "GetReport" など）
	Status int    // HTTPステータスコード（HTTP以前の失敗は0）
	Err    error  // 原因（ない場合はnil）
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ssm: %s に失敗しました (status=%d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("ssm: %s に失敗しました (status=%d)", e.Op, e.Status)
}

// Unwrap はラップされた原因エラーを返す。
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// newUpstreamError はUpstreamErrorを生成する。
func newUpstreamError(op string, status int, err error) *UpstreamError {
	return &UpstreamError{Op: op, Status: status, Err: err}
}
