package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Danijel-Enoch/OctoBot-Trading/internal/events"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/exchange"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(Config{
		Managers:  map[string]*exchange.Manager{},
		Registry:  events.NewRegistry(),
		JWTSecret: "secret",
	})
}

func TestHealthIsOpen(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestUnknownAccountIs404(t *testing.T) {
	s := newTestServer(t)
	token, _ := GenerateToken("ops", "secret", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/nope/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "UNKNOWN_ACCOUNT") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestListAccounts(t *testing.T) {
	s := newTestServer(t)
	token, _ := GenerateToken("ops", "secret", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
