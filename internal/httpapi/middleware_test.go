package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDAssignedAndEchoed(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Fatal("no request id in context")
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Fatalf("header %q does not match context %q", rec.Header().Get("X-Request-ID"), seen)
	}

	// A caller-provided id is kept.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "caller-id" || rec.Header().Get("X-Request-ID") != "caller-id" {
		t.Fatalf("caller id not honored: %q", seen)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestRateLimitPerIP(t *testing.T) {
	h := RateLimit(okHandler(), 2, 1)

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("10.0.0.1") != http.StatusOK || send("10.0.0.1") != http.StatusOK {
		t.Fatal("burst requests should pass")
	}
	if code := send("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
	// Buckets are per client.
	if send("10.0.0.2") != http.StatusOK {
		t.Fatal("second client should not share the first bucket")
	}
}

func TestMaxBodyBytes(t *testing.T) {
	api := newTestAPI(t)
	_, adminAuth := api.seedUser("", "Size", "Check", "create_signout")

	// The shared limit rejects oversized payloads before any handler work.
	huge := make([]map[string]any, 0, 20000)
	for i := 0; i < 20000; i++ {
		huge = append(huge, map[string]any{"first_name": "AaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaA", "last_name": "B"})
	}
	resp := api.post("/v1/signouts", map[string]any{
		"persons": huge, "location": "Gate", "pin": "4321",
	}, adminAuth)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body not rejected: %d", resp.StatusCode)
	}
}

func TestExtractBearerToken(t *testing.T) {
	if _, err := extractBearerToken(""); err == nil {
		t.Fatal("empty header accepted")
	}
	if _, err := extractBearerToken("Basic abc"); err == nil {
		t.Fatal("wrong scheme accepted")
	}
	if _, err := extractBearerToken("Bearer   "); err == nil {
		t.Fatal("blank token accepted")
	}
	token, err := extractBearerToken("Bearer abc.def.ghi")
	if err != nil || token != "abc.def.ghi" {
		t.Fatalf("valid header rejected: %q %v", token, err)
	}
}
