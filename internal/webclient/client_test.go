package webclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name          string
		config        Config
		wantUserAgent string
	}{
		{
			name:          "empty config uses defaults",
			config:        Config{},
			wantUserAgent: DefaultUserAgent,
		},
		{
			name:          "custom user agent preserved",
			config:        Config{UserAgent: "custom-agent", Timeout: 5 * time.Second},
			wantUserAgent: "custom-agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUA string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUA = r.Header.Get("User-Agent")
			}))
			defer server.Close()

			c := New(tt.config)
			if c.httpClient == nil {
				t.Fatal("expected HTTPClient to be set")
			}
			resp, err := c.Get(context.Background(), server.URL)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			_ = resp.Body.Close()
			if gotUA != tt.wantUserAgent {
				t.Errorf("User-Agent = %q, want %q", gotUA, tt.wantUserAgent)
			}
		})
	}
}

func TestClient_GetHeaders(t *testing.T) {
	var gotAccept []string
	var gotUA, gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Values("Accept")
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(Config{})
	resp, err := c.Get(context.Background(), server.URL,
		WithEmptyAccept(),
		WithReferer("https://example.com/page"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = resp.Body.Close()

	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
	if len(gotAccept) != 1 || gotAccept[0] != "" {
		t.Errorf("Accept = %q, want a single empty value", gotAccept)
	}
	if gotReferer != "https://example.com/page" {
		t.Errorf("Referer = %q", gotReferer)
	}
}

func TestClient_GetNon2xxIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	resp, err := New(Config{}).Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestClient_GetTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := New(Config{}).Get(context.Background(), url)
	if err == nil {
		t.Fatal("expected error for closed server")
	}
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.URL != url {
		t.Errorf("expected *TransportError for %s, got %v", url, err)
	}
}
