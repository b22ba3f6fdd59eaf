package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
})

func TestCORS(t *testing.T) {
	tests := []struct {
		name           string
		allowed        string
		method         string
		origin         string
		preflight      bool
		expectedStatus int
		expectedOrigin string
	}{
		{name: "wildcard simple request", allowed: "*", method: http.MethodGet, origin: "http://ui.local", expectedStatus: http.StatusOK, expectedOrigin: "*"},
		{name: "wildcard preflight", allowed: "*", method: http.MethodOptions, origin: "http://ui.local", preflight: true, expectedStatus: http.StatusNoContent, expectedOrigin: "*"},
		{name: "listed origin", allowed: "http://a.local, http://ui.local", method: http.MethodGet, origin: "http://ui.local", expectedStatus: http.StatusOK, expectedOrigin: "http://ui.local"},
		{name: "unlisted origin still served", allowed: "http://a.local", method: http.MethodGet, origin: "http://evil.local", expectedStatus: http.StatusOK, expectedOrigin: ""},
		{name: "unlisted origin preflight", allowed: "http://a.local", method: http.MethodOptions, origin: "http://evil.local", preflight: true, expectedStatus: http.StatusForbidden, expectedOrigin: ""},
		{name: "plain options passes through", allowed: "*", method: http.MethodOptions, expectedStatus: http.StatusOK, expectedOrigin: "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORS(tt.allowed)(okHandler)
			req := httptest.NewRequest(tt.method, "/api/event-images", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.expectedStatus)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.expectedOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.expectedOrigin)
			}
			if tt.expectedStatus == http.StatusNoContent && !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), "POST") {
				t.Errorf("preflight missing POST in Allow-Methods")
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	rejected := 0
	h := RateLimit(0.001, 2, func() { rejected++ })(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/upload-event", nil))
		codes = append(codes, rr.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst requests rejected: %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", codes[2])
	}
	if rejected != 1 {
		t.Errorf("onReject called %d times, want 1", rejected)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(0, 0, nil)(okHandler)
	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/upload-event", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rr.Code)
		}
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	out := buf.String()
	for _, want := range []string{`"status":418`, `"path":"/health"`, `"bytes":5`} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %s", out, want)
		}
	}
}

func TestLogging_PreservesFlusher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	var flushable bool
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/event-images/stream", nil))

	if !flushable {
		t.Error("wrapped writer does not implement http.Flusher")
	}
}
