package security

import (
	"testing"
	"time"
)

// TestValidateURL_BlockedTargets はプライベートIP・メタデータIP・危険ホストが
// 拒否されることを検証する。
func TestValidateURL_BlockedTargets(t *testing.T) {
	g := NewSSRFGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "公開HTTPSは許可", url: "https://newsapi.org/v2/everything", wantErr: false},
		{name: "公開HTTPは許可", url: "http://example.com/feed", wantErr: false},
		{name: "プライベートIP 10系は拒否", url: "http://10.0.0.5/admin", wantErr: true},
		{name: "プライベートIP 192系は拒否", url: "http://192.168.1.1/", wantErr: true},
		{name: "ループバックIPは拒否", url: "http://127.0.0.1:8080/", wantErr: true},
		{name: "クラウドメタデータIPは拒否", url: "http://169.254.169.254/latest/meta-data/", wantErr: true},
		{name: "localhostは拒否", url: "http://localhost/internal", wantErr: true},
		{name: "fileスキームは拒否", url: "file:///etc/passwd", wantErr: true},
		{name: "ftpスキームは拒否", url: "ftp://example.com/", wantErr: true},
		{name: "空URLは拒否", url: "", wantErr: true},
		{name: "ホストなしは拒否", url: "https:///path", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.ValidateURL(tt.url)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateURL(%q) should fail", tt.url)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateURL(%q) failed: %v", tt.url, err)
			}
		})
	}
}

// TestNewSafeClient はタイムアウト付きクライアントが生成されることを検証する。
func TestNewSafeClient(t *testing.T) {
	g := NewSSRFGuard()

	client := g.NewSafeClient(5 * time.Second)
	if client == nil {
		t.Fatal("NewSafeClient returned nil")
	}
	if client.Transport == nil {
		t.Error("safe client should carry a validating transport")
	}
}
