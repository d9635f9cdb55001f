package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/search", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	expected := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, value := range expected {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("Expected %s=%q, got %q", header, value, got)
		}
	}
}

func TestClientOrigin(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		expected   string
	}{
		{
			name:       "Forwarded single",
			forwarded:  "198.51.100.4",
			remoteAddr: "10.0.0.1:1234",
			expected:   "198.51.100.4",
		},
		{
			name:       "Forwarded chain uses first hop",
			forwarded:  " 198.51.100.4 , 10.0.0.2",
			remoteAddr: "10.0.0.1:1234",
			expected:   "198.51.100.4",
		},
		{
			name:       "Remote address host",
			remoteAddr: "203.0.113.9:4321",
			expected:   "203.0.113.9",
		},
		{
			name:       "Remote address without port",
			remoteAddr: "203.0.113.9",
			expected:   "203.0.113.9",
		},
		{
			name:     "Nothing known",
			expected: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := ClientOrigin(req); got != tt.expected {
				t.Errorf("Expected origin %q, got %q", tt.expected, got)
			}
		})
	}
}
