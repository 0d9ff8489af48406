package handlers

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"

	"permsim/internal/clock"
	"permsim/internal/domain"
	"permsim/internal/mailbox"
	"permsim/internal/registry"
)

// OrderHandler is the gateway's one allowed way to originate an Intent from
// outside an agent's own step: POST /order and POST /close inject an
// envelope onto the MessageBus addressed to the ExchangeAgent, stamped with
// this handler's own reserved AgentId as sender.
type OrderHandler struct {
	bus        *mailbox.Bus
	clock      *clock.Clock
	reg        *registry.Registry
	gatewayID  domain.AgentId
	exchangeID domain.AgentId
	seq        uint64
}

// NewOrderHandler wires the handler to the live MessageBus, Clock, and read
// model. gatewayID must be a reserved AgentId not used by any simulated
// agent.
func NewOrderHandler(bus *mailbox.Bus, clk *clock.Clock, reg *registry.Registry, gatewayID, exchangeID domain.AgentId) *OrderHandler {
	return &OrderHandler{bus: bus, clock: clk, reg: reg, gatewayID: gatewayID, exchangeID: exchangeID}
}

func (h *OrderHandler) nextClientOrderID() domain.ClientOrderID {
	n := atomic.AddUint64(&h.seq, 1)
	return domain.ClientOrderID(fmt.Sprintf("gw-%d-%d", h.gatewayID, n))
}

// OrderRequest is the body of POST /order, per §6.3.
type OrderRequest struct {
	Action   string  `json:"action"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Qty      float64 `json:"qty"`
	Leverage uint32  `json:"leverage"`
	Account  uint32  `json:"account"`
}

// CloseRequest is the body of POST /close. Side disambiguates an account
// holding both a long and a short on the same symbol; when omitted, whichever
// side has an open position is closed.
type CloseRequest struct {
	Symbol  string `json:"symbol"`
	Side    string `json:"side,omitempty"`
	Account uint32 `json:"account"`
}

func parseSide(side string) (domain.Side, error) {
	switch side {
	case "long":
		return domain.Long, nil
	case "short":
		return domain.Short, nil
	default:
		return 0, fmt.Errorf("unknown side %q", side)
	}
}

func parseAction(action string) (domain.Action, error) {
	switch action {
	case "open":
		return domain.Open, nil
	case "close":
		return domain.Close, nil
	default:
		return 0, fmt.Errorf("unknown action %q", action)
	}
}

// PostOrder handles POST /order.
func (h *OrderHandler) PostOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	action, err := parseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Qty <= 0 {
		writeError(w, http.StatusBadRequest, "qty must be positive")
		return
	}

	intent := &domain.Intent{
		ClientOrderID: h.nextClientOrderID(),
		Account:       domain.AgentId(req.Account),
		Symbol:        domain.Symbol(req.Symbol),
		Side:          side,
		Kind:          domain.Market,
		Action:        action,
		SizeTokens:    big.NewInt(int64(req.Qty)),
		Leverage:      req.Leverage,
		CreatedNs:     h.clock.NowVns(),
	}
	if err := intent.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := h.clock.NowVns()
	if err := h.bus.Send(h.gatewayID, h.exchangeID, intent, now); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, SuccessResponse{
		Message: "order intent accepted",
		Data:    map[string]string{"client_order_id": string(intent.ClientOrderID)},
	})
}

// PostClose handles POST /close. Size and side come from the gateway's read
// model, the same way LiquidationAgent sizes a forced close off its local
// position mirror, rather than trusting a caller-supplied token amount.
func (h *OrderHandler) PostClose(w http.ResponseWriter, r *http.Request) {
	var req CloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account := domain.AgentId(req.Account)
	symbol := domain.Symbol(req.Symbol)

	pos, ok := h.resolvePosition(account, symbol, req.Side)
	if !ok {
		writeError(w, http.StatusNotFound, "no open position for that account/symbol")
		return
	}

	intent := &domain.Intent{
		ClientOrderID: h.nextClientOrderID(),
		Account:       account,
		Symbol:        symbol,
		Side:          pos.Side,
		Kind:          domain.Market,
		Action:        domain.Close,
		SizeTokens:    new(big.Int).Set(pos.SizeTokens),
		CreatedNs:     h.clock.NowVns(),
	}

	now := h.clock.NowVns()
	if err := h.bus.Send(h.gatewayID, h.exchangeID, intent, now); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, SuccessResponse{
		Message: "close intent accepted",
		Data:    map[string]string{"client_order_id": string(intent.ClientOrderID)},
	})
}

func (h *OrderHandler) resolvePosition(account domain.AgentId, symbol domain.Symbol, side string) (domain.Position, bool) {
	if side != "" {
		s, err := parseSide(side)
		if err != nil {
			return domain.Position{}, false
		}
		return h.reg.Position(account, symbol, s)
	}
	if pos, ok := h.reg.Position(account, symbol, domain.Long); ok {
		return pos, true
	}
	return h.reg.Position(account, symbol, domain.Short)
}
