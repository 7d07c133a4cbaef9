package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		path   string
		header string
		want   int
	}{
		{"no keys passes through", nil, "/sessions", "", http.StatusOK},
		{"blank keys pass through", []string{"", ""}, "/sessions", "", http.StatusOK},
		{"missing header", []string{"secret"}, "/sessions", "", http.StatusUnauthorized},
		{"basic scheme", []string{"secret"}, "/sessions", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"wrong token", []string{"secret"}, "/search", "Bearer wrong-key", http.StatusUnauthorized},
		{"valid token", []string{"secret"}, "/search", "Bearer secret", http.StatusOK},
		{"second key", []string{"key1", "key2"}, "/tools", "Bearer key2", http.StatusOK},
		{"health exempt", []string{"secret"}, "/health", "", http.StatusOK},
		{"metrics exempt", []string{"secret"}, "/metrics", "", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := BearerAuthMiddleware(tc.keys)(okHandler())
			req := httptest.NewRequest(http.MethodGet, tc.path, http.NoBody)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("got %d, want %d", rr.Code, tc.want)
			}
			if tc.want != http.StatusUnauthorized {
				return
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != CodeUnauthorized {
				t.Errorf("code = %s, want %s", errResp.Code, CodeUnauthorized)
			}
		})
	}
}
