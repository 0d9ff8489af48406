package handlers

import (
	"net/http"
	"strconv"

	"permsim/internal/domain"
	"permsim/internal/notification"
	"permsim/internal/registry"
)

// StatusHandler serves GET /status: the read-only snapshot of positions,
// markets, and recent lifecycle notifications, per §6.3 and the
// NotificationService grounding in §10.9.
type StatusHandler struct {
	reg    *registry.Registry
	notifs *notification.Log
}

func NewStatusHandler(reg *registry.Registry, notifs *notification.Log) *StatusHandler {
	return &StatusHandler{reg: reg, notifs: notifs}
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Markets       []domain.MarketState        `json:"markets"`
	Positions     []domain.Position           `json:"positions,omitempty"`
	Notifications []notification.Notification `json:"notifications"`
}

// GetStatus handles GET /status. An optional ?account= query parameter
// scopes the positions list to one account; omitted, only markets and
// notifications are returned.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Markets:       h.reg.Markets(),
		Notifications: h.notifs.Recent(100),
	}

	if raw := r.URL.Query().Get("account"); raw != "" {
		account, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "account must be a non-negative integer")
			return
		}
		resp.Positions = h.reg.PositionsFor(domain.AgentId(account))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetHealth handles GET /health.
func (h *StatusHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
