package api

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/transcript-segmenter/internal/config"
)

// serverWith builds the full handler from a config tweaked by mutate.
func serverWith(mutate func(*config.Config)) http.Handler {
	cfg := &config.Config{HTTPAddr: ":0", MaxUploadMB: 1}
	mutate(cfg)
	return NewServer(ServerOptions{Config: cfg, Queue: newFakeQueue(), Log: zerolog.Nop()}).Handler()
}

func send(h http.Handler, method, target, remote string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ── Request IDs ──────────────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	h := serverWith(func(*config.Config) {})

	generated := send(h, "GET", "/api/v1/health", "", nil).Header().Get("X-Request-ID")
	if len(generated) != 16 {
		t.Errorf("generated id = %q, want 16 hex chars", generated)
	}
	kept := send(h, "GET", "/api/v1/health", "", map[string]string{"X-Request-ID": "upstream-7"})
	if got := kept.Header().Get("X-Request-ID"); got != "upstream-7" {
		t.Errorf("X-Request-ID = %q, want upstream-7", got)
	}
}

// ── CORS allow-list ──────────────────────────────────────────────────

func TestCORS_ConfiguredOrigins(t *testing.T) {
	h := serverWith(func(c *config.Config) {
		c.CORSOrigins = []string{"https://dashboard.example.org/", "http://localhost:5173"}
	})

	tests := []struct {
		name       string
		method     string
		path       string
		origin     string
		wantCode   int
		wantOrigin string
	}{
		{"listed_origin_echoed", "GET", "/api/v1/health", "https://dashboard.example.org", http.StatusOK, "https://dashboard.example.org"},
		{"second_listed_origin", "GET", "/api/v1/queue", "http://localhost:5173", http.StatusOK, "http://localhost:5173"},
		{"foreign_origin_served_without_header", "GET", "/api/v1/health", "https://elsewhere.example", http.StatusOK, ""},
		{"listed_preflight_on_segment", "OPTIONS", "/api/v1/segment", "http://localhost:5173", http.StatusNoContent, "http://localhost:5173"},
		{"foreign_preflight_rejected", "OPTIONS", "/api/v1/segment", "https://elsewhere.example", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := send(h, tt.method, tt.path, "", map[string]string{"Origin": tt.origin})
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if tt.wantOrigin != "" && rec.Header().Get("Vary") != "Origin" {
				t.Error("missing Vary: Origin")
			}
		})
	}
}

func TestCORS_NoOriginsAllowsAny(t *testing.T) {
	h := serverWith(func(*config.Config) {})
	rec := send(h, "OPTIONS", "/api/v1/events/stream", "", map[string]string{"Origin": "https://anything.example"})
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("want Allow-Origin *")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Last-Event-ID") {
		t.Error("SSE resume header not allowed")
	}
}

// ── Rate limiting ────────────────────────────────────────────────────

func TestRateLimit_AuthenticatedGroup(t *testing.T) {
	h := serverWith(func(c *config.Config) {
		c.RateLimitRPS = 1
		c.RateLimitBurst = 2
	})
	const client = "192.0.2.10:40000"

	for i := 0; i < 2; i++ {
		if rec := send(h, "GET", "/api/v1/queue", client, nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	limited := send(h, "GET", "/api/v1/queue", client, nil)
	if limited.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", limited.Code)
	}
	if limited.Header().Get("Retry-After") != "1" {
		t.Error("missing Retry-After")
	}
	if body := decodeBody[ErrorResponse](t, limited); body.Code != CodeRateLimited {
		t.Errorf("code = %q, want rate_limited", body.Code)
	}

	t.Run("health_is_not_limited", func(t *testing.T) {
		if rec := send(h, "GET", "/api/v1/health", client, nil); rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
	t.Run("other_clients_unaffected", func(t *testing.T) {
		if rec := send(h, "GET", "/api/v1/queue", "192.0.2.11:40000", nil); rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	h := serverWith(func(c *config.Config) { c.RateLimitRPS = 0 })
	for i := 0; i < 20; i++ {
		if rec := send(h, "GET", "/api/v1/queue", "192.0.2.20:1", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
}

// ── Bearer auth ──────────────────────────────────────────────────────

func TestBearerAuth_Routes(t *testing.T) {
	h := serverWith(func(c *config.Config) { c.AuthToken = "s3cret" })

	tests := []struct {
		name     string
		target   string
		auth     string
		wantCode int
	}{
		{"header_token", "/api/v1/queue", "Bearer s3cret", http.StatusOK},
		{"query_token_for_event_source", "/api/v1/queue?token=s3cret", "", http.StatusOK},
		{"header_wins_over_query", "/api/v1/queue?token=s3cret", "Bearer wrong", http.StatusUnauthorized},
		{"wrong_query_token", "/api/v1/queue?token=nope", "", http.StatusUnauthorized},
		{"basic_scheme_rejected", "/api/v1/queue", "Basic czNjcmV0", http.StatusUnauthorized},
		{"no_credentials", "/api/v1/runs", "", http.StatusUnauthorized},
		{"health_needs_none", "/api/v1/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.auth != "" {
				headers["Authorization"] = tt.auth
			}
			rec := send(h, "GET", tt.target, "", headers)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusUnauthorized {
				if body := decodeBody[ErrorResponse](t, rec); body.Code != CodeUnauthorized {
					t.Errorf("code = %q, want unauthorized", body.Code)
				}
				if rec.Header().Get("WWW-Authenticate") == "" {
					t.Error("missing WWW-Authenticate")
				}
			}
		})
	}
}

// ── Panics and body limits ───────────────────────────────────────────

func TestRecoverer(t *testing.T) {
	panicker := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("scorer exploded")
	})
	rec := httptest.NewRecorder()
	Recoverer(panicker).ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/segment", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body := decodeBody[ErrorResponse](t, rec); body.Code != CodeInternal {
		t.Errorf("code = %q, want internal", body.Code)
	}
}

func TestMaxBodySize(t *testing.T) {
	var readErr error
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	})
	req := httptest.NewRequest("POST", "/api/v1/segment", strings.NewReader(strings.Repeat("x", 64)))
	MaxBodySize(16)(inner).ServeHTTP(httptest.NewRecorder(), req)

	var mbe *http.MaxBytesError
	if !errors.As(readErr, &mbe) {
		t.Errorf("read error = %v, want MaxBytesError", readErr)
	}
}
