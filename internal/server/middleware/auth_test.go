package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authedHandler(apiKey string, exempt ...string) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Auth(apiKey, exempt...)(next)
}

func TestAuthTokenSources(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    int
	}{
		{
			name:    "bearer header",
			prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer sekret") },
			want:    http.StatusOK,
		},
		{
			name:    "api key header",
			prepare: func(r *http.Request) { r.Header.Set("X-API-Key", "sekret") },
			want:    http.StatusOK,
		},
		{
			name:    "query token for websocket clients",
			prepare: func(r *http.Request) { r.URL.RawQuery = "token=sekret" },
			want:    http.StatusOK,
		},
		{
			name:    "missing token",
			prepare: func(r *http.Request) {},
			want:    http.StatusUnauthorized,
		},
		{
			name:    "wrong token",
			prepare: func(r *http.Request) { r.Header.Set("X-API-Key", "guess") },
			want:    http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()
			authedHandler("sekret").ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthExemptPrefixSkipsValidation(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	authedHandler("sekret", "/api/health").ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("exempt path rejected with %d", rec.Code)
	}
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	authedHandler("").ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("request rejected with auth disabled: %d", rec.Code)
	}
}
