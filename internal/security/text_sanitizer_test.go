package security

import "testing"

// TestSanitizeText はHTMLタグの除去・エンティティのデコード・冪等性を検証する。
func TestSanitizeText(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "空文字列", input: "", want: ""},
		{name: "プレーンテキストはそのまま", input: "Tesla beats estimates", want: "Tesla beats estimates"},
		{name: "タグ除去", input: "<b>Breaking</b> news", want: "Breaking news"},
		{name: "scriptタグ除去", input: "<script>alert(1)</script>plain text", want: "plain text"},
		{name: "エンティティのデコード", input: "R&amp;D spending", want: "R&D spending"},
		{name: "前後の空白除去", input: "  <p>padded</p>  ", want: "padded"},
		{name: "ネストしたタグ", input: "<div><a href='x'>link text</a></div>", want: "link text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.SanitizeText(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
			// 冪等性: サニタイズ済みテキストの再サニタイズは変化しない
			if again := s.SanitizeText(got); again != got {
				t.Errorf("SanitizeText is not idempotent: %q -> %q", got, again)
			}
		})
	}
}
