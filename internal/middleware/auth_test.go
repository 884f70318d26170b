package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIKeyDisabled(t *testing.T) {
	handler := APIKey("", nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/kpi", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through with empty key, got %d", rec.Code)
	}
}

func TestAPIKeyMissing(t *testing.T) {
	handler := APIKey("secret", nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/kpi", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	want := `{"detail":"API key required. Provide X-API-Key header."}`
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != "ApiKey" {
		t.Errorf("WWW-Authenticate = %q, want %q", got, "ApiKey")
	}
}

func TestAPIKeyInvalid(t *testing.T) {
	handler := APIKey("secret", nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/kpi", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	want := `{"detail":"Invalid API key"}`
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
}

func TestAPIKeyValid(t *testing.T) {
	handler := APIKey("secret", nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/kpi", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPIKeyExemptPaths(t *testing.T) {
	handler := APIKey("secret", nil)(okHandler())

	for _, path := range []string{"/health", "/ready", "/metrics", "/ws", "/auth/login", "/auth/me"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected exemption, got %d", path, rec.Code)
		}
	}
}

func TestAPIKeyFailureCallback(t *testing.T) {
	var reasons []string
	onFailure := func(r *http.Request, reason string) {
		reasons = append(reasons, reason)
	}
	handler := APIKey("secret", onFailure)(okHandler())

	missing := httptest.NewRequest(http.MethodGet, "/kpi", nil)
	handler.ServeHTTP(httptest.NewRecorder(), missing)

	invalid := httptest.NewRequest(http.MethodGet, "/kpi", nil)
	invalid.Header.Set("X-API-Key", "wrong")
	handler.ServeHTTP(httptest.NewRecorder(), invalid)

	if len(reasons) != 2 || reasons[0] != "missing api key" || reasons[1] != "invalid api key" {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"standard", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"lowercase scheme", "bearer abc", "abc"},
		{"trailing space", "Bearer  abc ", "abc"},
		{"empty", "", ""},
		{"wrong scheme", "Basic abc", ""},
		{"scheme only", "Bearer ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := ExtractBearer(req); got != tt.want {
				t.Errorf("ExtractBearer(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
