package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS_AllowsAnyOrigin(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	corsHandler := CORS()(handler)

	req := httptest.NewRequest("GET", "/object", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()

	corsHandler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for a preflight request")
	})

	corsHandler := CORS()(handler)

	req := httptest.NewRequest("OPTIONS", "/object", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()

	corsHandler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Allow"); got != "OPTIONS, GET, POST" {
		t.Errorf("Allow = %q, want %q", got, "OPTIONS, GET, POST")
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "OPTIONS, GET, POST" {
		t.Errorf("Access-Control-Allow-Methods = %q, want %q", got, "OPTIONS, GET, POST")
	}
	if w.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Error("expected Access-Control-Allow-Headers to be set")
	}
}

func TestCORS_NonPreflightReachesHandler(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	corsHandler := CORS()(handler)

	req := httptest.NewRequest("POST", "/publish", nil)
	w := httptest.NewRecorder()

	corsHandler.ServeHTTP(w, req)

	if !called {
		t.Error("expected the wrapped handler to run for a non-preflight request")
	}
}
