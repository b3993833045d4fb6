package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
)

// =============================================================================
// Metrics Auth Middleware Tests
// =============================================================================

func scrapeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("folio_up 1"))
	})
}

func TestMetricsAuthMiddleware_AllowsValidCredentials(t *testing.T) {
	mw := NewMetricsAuthMiddleware("prom", "scrape-secret", discardLogger())
	wrapped := mw.Handler(scrapeHandler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("prom", "scrape-secret")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "folio_up 1" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestMetricsAuthMiddleware_Challenge(t *testing.T) {
	mw := NewMetricsAuthMiddleware("prom", "scrape-secret", discardLogger())
	wrapped := mw.Handler(scrapeHandler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	want := `Basic realm="folio-metrics", charset="UTF-8"`
	if got := rec.Header().Get("WWW-Authenticate"); got != want {
		t.Errorf("WWW-Authenticate = %q, want %q", got, want)
	}
}

func TestMetricsAuthMiddleware_RejectsBadCredentials(t *testing.T) {
	mw := NewMetricsAuthMiddleware("prom", "scrape-secret", discardLogger())
	wrapped := mw.Handler(scrapeHandler())

	tests := []struct {
		name   string
		header string
		user   string
		pass   string
		want   int
	}{
		{name: "valid", user: "prom", pass: "scrape-secret", want: http.StatusOK},
		{name: "wrong password", user: "prom", pass: "nope", want: http.StatusUnauthorized},
		{name: "wrong username", user: "grafana", pass: "scrape-secret", want: http.StatusUnauthorized},
		{name: "both wrong", user: "x", pass: "y", want: http.StatusUnauthorized},
		{name: "empty", user: "", pass: "", want: http.StatusUnauthorized},
		{name: "malformed header", header: "Basic notvalidbase64!!!", want: http.StatusUnauthorized},
		{
			name:   "newline injection",
			header: "Basic " + base64.StdEncoding.EncodeToString([]byte("prom:scrape-secret\r\nX-Injected: 1")),
			want:   http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			} else {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestMetricsAuthMiddleware_DisabledWhenNoCredentials(t *testing.T) {
	mw := NewMetricsAuthMiddleware("", "", nil)
	if mw.Enabled() {
		t.Fatal("expected auth to be disabled")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mw.Handler(scrapeHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 when auth is disabled, got %d", rec.Code)
	}
}
