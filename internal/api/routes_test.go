package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"permsim/internal/clock"
	"permsim/internal/domain"
	"permsim/internal/mailbox"
	"permsim/internal/notification"
	"permsim/internal/registry"
)

func TestSetupRoutes_HealthWithoutDependencies(t *testing.T) {
	router := SetupRoutes(nil)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestSetupRoutes_PostOrderRoutesThroughToExchangeMailbox(t *testing.T) {
	bus := mailbox.New(0)
	deps := &Dependencies{
		Bus:           bus,
		Clock:         clock.New(clock.Fast),
		Registry:      registry.New(),
		Notifications: notification.New(10),
		GatewayID:     9000,
		ExchangeID:    1,
	}
	router := SetupRoutes(deps)

	body := []byte(`{"action":"open","symbol":"ETH-USD","side":"long","qty":1,"leverage":3,"account":1}`)
	req := httptest.NewRequest("POST", "/api/v1/order", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}
	if envs := bus.Drain(domain.AgentId(1)); len(envs) != 1 {
		t.Fatalf("expected 1 envelope on exchange mailbox, got %d", len(envs))
	}
}

func TestSetupRoutes_StatusReflectsRegistry(t *testing.T) {
	reg := registry.New()
	reg.Apply(domain.MarketSnapshot{Market: domain.MarketState{Symbol: "ETH-USD"}})
	deps := &Dependencies{
		Bus:           mailbox.New(0),
		Clock:         clock.New(clock.Fast),
		Registry:      reg,
		Notifications: notification.New(10),
	}
	router := SetupRoutes(deps)

	req := httptest.NewRequest("GET", "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestSetupRoutes_MetricsEndpointServed(t *testing.T) {
	router := SetupRoutes(nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestSetupRoutes_DebugRuntimeServesStatsWhenUnconfigured(t *testing.T) {
	// DebugAuth falls open when DEBUG_USERNAME/DEBUG_PASSWORD are unset and
	// ENV is "development" or empty — matching middleware.DebugAuth's own
	// doc comment on its development-mode behavior.
	router := SetupRoutes(nil)

	req := httptest.NewRequest("GET", "/debug/runtime", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}
