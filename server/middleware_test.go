package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestAdminAuthMiddleware(t *testing.T) {
	tests := []struct {
		name              string
		user, pass, token string
		reqUser, reqPass  string
		reqToken          string
		expectedStatus    int
	}{
		{name: "no auth configured - allows request", expectedStatus: http.StatusOK},
		{name: "valid basic auth", user: "admin", pass: "secret123", reqUser: "admin", reqPass: "secret123", expectedStatus: http.StatusOK},
		{name: "wrong basic auth user", user: "admin", pass: "secret123", reqUser: "dj", reqPass: "secret123", expectedStatus: http.StatusUnauthorized},
		{name: "wrong basic auth password", user: "admin", pass: "secret123", reqUser: "admin", reqPass: "nope", expectedStatus: http.StatusUnauthorized},
		{name: "valid token", token: "tok-1", reqToken: "tok-1", expectedStatus: http.StatusOK},
		{name: "wrong token", token: "tok-1", reqToken: "tok-2", expectedStatus: http.StatusUnauthorized},
		{name: "missing credentials", token: "tok-1", expectedStatus: http.StatusUnauthorized},
		{name: "token wins over bad basic auth", user: "admin", pass: "secret123", token: "tok-1", reqToken: "tok-1", reqUser: "x", reqPass: "y", expectedStatus: http.StatusOK},
		{name: "username without password does not enable basic auth", user: "admin", expectedStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := adminAuth(okHandler(), newAuthConfig(tt.user, tt.pass, tt.token))
			req := httptest.NewRequest(http.MethodPost, "/admin/stop", nil)
			if tt.reqUser != "" || tt.reqPass != "" {
				req.SetBasicAuth(tt.reqUser, tt.reqPass)
			}
			if tt.reqToken != "" {
				req.Header.Set("X-Admin-Token", tt.reqToken)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.expectedStatus)
			}
			if rr.Code == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header on 401 response")
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{enabled: true, requestsPerIP: 3, window: 100 * time.Millisecond})

	for i := 0; i < 3; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
	if limiter.allow("192.168.1.1") {
		t.Error("request 4 should be denied")
	}
	if !limiter.allow("192.168.1.2") {
		t.Error("a different IP has its own budget")
	}

	time.Sleep(150 * time.Millisecond)
	if !limiter.allow("192.168.1.1") {
		t.Error("request after window expiry should be allowed")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{enabled: false, requestsPerIP: 1, window: time.Second})
	for i := 0; i < 50; i++ {
		if !limiter.allow("10.0.0.1") {
			t.Fatalf("request %d denied while disabled", i+1)
		}
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{enabled: true, requestsPerIP: 5, window: time.Second})
	limiter.allow("10.0.0.1")
	limiter.cleanup(time.Now().Add(3 * time.Second))
	limiter.mu.Lock()
	n := len(limiter.visitors)
	limiter.mu.Unlock()
	if n != 0 {
		t.Errorf("visitors after cleanup = %d, want 0", n)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name, remote, fwd, want string
	}{
		{"ipv4 with port", "192.0.2.1:1234", "", "192.0.2.1"},
		{"ipv6 with port", "[2001:db8::1]:443", "", "2001:db8::1"},
		{"no port", "192.0.2.9", "", "192.0.2.9"},
		{"forwarded chain", "10.0.0.1:1", "203.0.113.5, 10.0.0.1", "203.0.113.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.fwd != "" {
				req.Header.Set("X-Forwarded-For", tt.fwd)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{enabled: true, requestsPerIP: 2, window: time.Minute})
	handler := rateLimitMiddleware(okHandler(), limiter)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/admin/queue", nil)
		req.RemoteAddr = "198.51.100.7:5555"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
			t.Error("missing Retry-After on 429")
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
}

func TestCORS(t *testing.T) {
	t.Run("permissive", func(t *testing.T) {
		h := withCORSConfig(okHandler(), &corsConfig{permissive: true})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("allow origin = %q, want *", got)
		}
	})
	t.Run("restricted allowed origin", func(t *testing.T) {
		h := withCORSConfig(okHandler(), &corsConfig{allowedOrigins: []string{"*.example.com"}})
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Origin", "https://overlay.example.com")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://overlay.example.com" {
			t.Errorf("allow origin = %q", got)
		}
	})
	t.Run("restricted other origin", func(t *testing.T) {
		h := withCORSConfig(okHandler(), &corsConfig{allowedOrigins: []string{"https://a.example"}})
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Origin", "https://evil.example")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("allow origin = %q, want empty", got)
		}
	})
	t.Run("preflight", func(t *testing.T) {
		h := withCORSConfig(okHandler(), &corsConfig{permissive: true})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/admin/queue", nil))
		if rr.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want 204", rr.Code)
		}
	})
}

func TestLoadCORSConfig(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("CORS_PERMISSIVE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	cfg := loadCORSConfig()
	if cfg.permissive || len(cfg.allowedOrigins) != 2 {
		t.Errorf("cfg = %+v", cfg)
	}

	t.Setenv("ENV", "")
	if !loadCORSConfig().permissive {
		t.Error("empty ENV should be permissive")
	}
}

func TestLoadRateLimiterConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "0")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_IP", "5")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "bad")
	cfg := loadRateLimiterConfig()
	if cfg.enabled || cfg.requestsPerIP != 5 || cfg.window != time.Minute {
		t.Errorf("cfg = %+v", cfg)
	}
}
