package cloudflare

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
)

const okBody = `{
  "result": {
    "ipv4_cidrs": ["173.245.48.0/20", "103.21.244.0/22"],
    "ipv6_cidrs": ["2400:cb00::/32"],
    "etag": "38f79d050aa027e3be3865e495dcc9bc"
  },
  "success": true,
  "errors": [],
  "messages": []
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient creates a Client pointed at the given test server with
// instant retries.
func newTestClient(t *testing.T, serverURL string, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{BaseURL: serverURL}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg, "1.2.3", discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return c
}

func TestClient_FetchRanges(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, okBody)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.FetchRanges(context.Background(), cidr.Families)
	if err != nil {
		t.Fatalf("FetchRanges: %v", err)
	}
	if gotPath != "/client/v4/ips" {
		t.Errorf("path = %q, want /client/v4/ips", gotPath)
	}
	want := map[cidr.Family][]string{
		cidr.FamilyV4: {"173.245.48.0/20", "103.21.244.0/22"},
		cidr.FamilyV6: {"2400:cb00::/32"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_FetchRangesSingleFamily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, okBody)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.FetchRanges(context.Background(), []cidr.Family{cidr.FamilyV6})
	if err != nil {
		t.Fatalf("FetchRanges: %v", err)
	}
	if _, ok := got[cidr.FamilyV4]; ok {
		t.Error("v4 returned although only v6 was requested")
	}
	if len(got[cidr.FamilyV6]) != 1 {
		t.Errorf("v6 = %v", got[cidr.FamilyV6])
	}
}

func TestClient_Headers(t *testing.T) {
	var gotUA, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, okBody)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.APIKey = "tok123" })
	if _, err := c.FetchRanges(context.Background(), cidr.Families); err != nil {
		t.Fatalf("FetchRanges: %v", err)
	}
	if gotUA != "cloudflare-ufw-sync/1.2.3" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok123")
	}
}

func TestClient_NoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, okBody)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.FetchRanges(context.Background(), cidr.Families); err != nil {
		t.Fatalf("FetchRanges: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestClient_GzipResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gw := gzip.NewWriter(w)
		io.WriteString(gw, okBody)
		gw.Close()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.FetchRanges(context.Background(), cidr.Families)
	if err != nil {
		t.Fatalf("FetchRanges: %v", err)
	}
	if len(got[cidr.FamilyV4]) != 2 {
		t.Errorf("v4 = %v", got[cidr.FamilyV4])
	}
}

func TestClient_UnsuccessfulEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"success": false, "errors": [{"code": 1000, "message": "maintenance"}], "result": {}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchRanges(context.Background(), cidr.Families)
	if !errors.Is(err, ErrUnsuccessful) {
		t.Fatalf("err = %v, want ErrUnsuccessful", err)
	}
	if !strings.Contains(err.Error(), "maintenance") {
		t.Errorf("err = %v, want API message", err)
	}
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchRanges(context.Background(), cidr.Families)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 403 {
		t.Errorf("errors.As = %v", apiErr)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestClient_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, okBody)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.FetchRanges(context.Background(), cidr.Families); err != nil {
		t.Fatalf("FetchRanges: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.MaxRetries = 1 })
	_, err := c.FetchRanges(context.Background(), cidr.Families)
	if !errors.Is(err, ErrServer) {
		t.Fatalf("err = %v, want ErrServer", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestClient_RetriesDisabled(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.MaxRetries = -1 })
	if _, err := c.FetchRanges(context.Background(), cidr.Families); err == nil {
		t.Fatal("FetchRanges() = nil, want error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestClient_RetryAfterParsed(t *testing.T) {
	var waits []time.Duration
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, okBody)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	if _, err := c.FetchRanges(context.Background(), cidr.Families); err != nil {
		t.Fatalf("FetchRanges: %v", err)
	}
	if diff := cmp.Diff([]time.Duration{7 * time.Second}, waits); diff != "" {
		t.Errorf("waits (-want +got):\n%s", diff)
	}
}

func TestClient_MalformedJSON(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{"success": tru`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchRanges(context.Background(), cidr.Families)
	if !errors.Is(err, errDecode) {
		t.Fatalf("err = %v, want decode error", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1 (decode errors are not retried)", n)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, okBody)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t, srv.URL)
	if _, err := c.FetchRanges(ctx, cidr.Families); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestAPIError_IsMatchesAny5xx(t *testing.T) {
	err := &APIError{StatusCode: 503}
	if !errors.Is(err, ErrServer) {
		t.Error("503 should match ErrServer")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("503 should not match ErrNotFound")
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if diff := cmp.Diff([]cidr.Family{cidr.FamilyV4, cidr.FamilyV6}, cfg.Families); diff != "" {
		t.Errorf("Families (-want +got):\n%s", diff)
	}
	if cfg.MaxRetries != DefaultMaxRetries || cfg.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"relative url", Config{BaseURL: "api.cloudflare.com"}, true},
		{"ftp scheme", Config{BaseURL: "ftp://api.cloudflare.com"}, true},
		{"unknown family", Config{Families: []cidr.Family{"v5"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.ApplyDefaults()
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
