package security

import "testing"

// TestTextSanitizer_ImplementsInterface は実装がインターフェースを満たすことを確認する。
func TestTextSanitizer_ImplementsInterface(t *testing.T) {
	var _ TextSanitizerService = NewTextSanitizer()
}

// TestSanitize_RemovesHTMLTags はHTMLタグが除去されテキストのみ残ることを検証する。
func TestSanitize_RemovesHTMLTags(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"プレーンテキストはそのまま", "API設計の打ち合わせ", "API設計の打ち合わせ"},
		{"scriptタグは中身ごと除去", `開発<script>alert("x")</script>作業`, "開発作業"},
		{"装飾タグはテキストのみ残る", "<b>重要</b>なレビュー", "重要なレビュー"},
		{"イベント属性付きタグ", `<img src=x onerror="alert(1)">調査`, "調査"},
		{"前後の空白を除去", "  design review  ", "design review"},
		{"空文字列", "", ""},
		{"タグのみの入力は空になる", "<div></div>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	in := `<p>meeting</p> notes`

	first := s.Sanitize(in)
	second := s.Sanitize(first)

	if first != second {
		t.Errorf("Sanitize is not idempotent: %q != %q", first, second)
	}
}
