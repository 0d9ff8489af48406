package websocket

import (
	"fmt"

	"go.uber.org/zap"

	"permsim/internal/domain"
	"permsim/internal/eventbus"
	"permsim/internal/notification"
	"permsim/internal/registry"
)

// Bridge is the gateway's EventBus subscriber (§10.6): it is one more
// external reader of the bus, updating the read model and relaying every
// event to connected WebSocket clients. It never originates events itself.
type Bridge struct {
	bus    *eventbus.Bus
	sub    *eventbus.Subscriber
	hub    *Hub
	reg    *registry.Registry
	notifs *notification.Log
	log    *zap.Logger
	done   chan struct{}
}

// NewBridge subscribes to bus and starts draining it in a goroutine.
func NewBridge(bus *eventbus.Bus, hub *Hub, reg *registry.Registry, notifs *notification.Log, log *zap.Logger) *Bridge {
	b := &Bridge{
		bus: bus, sub: bus.Subscribe(256), hub: hub, reg: reg, notifs: notifs, log: log,
		done: make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bridge) run() {
	defer close(b.done)
	for ev := range b.sub.Events() {
		b.reg.Apply(ev)
		b.recordNotification(ev)
		b.hub.Broadcast(NewEventMessage(ev))
	}
}

func (b *Bridge) recordNotification(ev domain.Event) {
	switch e := ev.(type) {
	case domain.OrderExecuted:
		kind := notification.TypeOpen
		if e.Action == domain.Close {
			kind = notification.TypeClose
		}
		b.notifs.Add(kind, notification.SeverityInfo,
			fmt.Sprintf("order %s executed for account %d on %s", e.ClientOrderID, e.Account, e.Symbol), nil)
	case domain.OrderFailed:
		b.notifs.Add(notification.TypeError, notification.SeverityError,
			fmt.Sprintf("order %s failed: %s", e.ClientOrderID, e.Reason), nil)
	case domain.PositionLiquidated:
		b.notifs.Add(notification.TypeLiquidation, notification.SeverityWarn,
			fmt.Sprintf("account %d liquidated on %s", e.Account, e.Symbol), nil)
	}
}

// Close unsubscribes from the bus and waits for the drain goroutine to
// exit.
func (b *Bridge) Close() {
	b.bus.Unsubscribe(b.sub)
	<-b.done
}
