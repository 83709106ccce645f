package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestURLGuard_ClientTimeout(t *testing.T) {
	guard := NewURLGuard()
	timeout := 5 * time.Second
	client := guard.Client(timeout)

	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("expected custom transport")
	}
}

// httptestサーバーは127.0.0.1で起動されるため、接続前に拒否される
func TestURLGuard_ClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewURLGuard().Client(5 * time.Second)
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("expected error for loopback request")
	}
}

func TestURLGuard_Validate(t *testing.T) {
	guard := NewURLGuard()

	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com/questions.xml", false},
		{"http://blog.example.org/feed", false},
		{"", true},
		{"not-a-url", true},
		{"ftp://example.com/feed", true},
		{"file:///etc/passwd", true},
		{"http://localhost/feed", true},
		{"http://api.localhost/feed", true},
		{"http://127.0.0.1/feed", true},
		{"http://10.0.0.1/feed", true},
		{"http://172.16.0.1/feed", true},
		{"http://192.168.1.100/feed", true},
		{"http://169.254.169.254/latest/meta-data/", true},
		{"http://100.64.0.1/feed", true},
		{"http://0.0.0.0/feed", true},
		{"http://[::1]/feed", true},
		{"http://[::ffff:127.0.0.1]/feed", true},
		{"http://[fd00::1]/feed", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := guard.Validate(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
