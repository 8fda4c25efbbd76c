package websocket

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hive-dev/hive/internal/common/logger"
	"github.com/hive-dev/hive/internal/events"
	"github.com/hive-dev/hive/internal/events/bus"
)

// Bridge forwards session events from the event bus to the hub. It
// subscribes to the session wildcard subject so every event type is
// carried without per-type wiring.
type Bridge struct {
	hub    *Hub
	bus    bus.EventBus
	sub    bus.Subscription
	logger *logger.Logger
}

// NewBridge creates a bridge between the event bus and the hub
func NewBridge(hub *Hub, eventBus bus.EventBus, log *logger.Logger) *Bridge {
	return &Bridge{
		hub:    hub,
		bus:    eventBus,
		logger: log.WithFields(zap.String("component", "websocket_bridge")),
	}
}

// Start subscribes to all session events
func (b *Bridge) Start() error {
	sub, err := b.bus.Subscribe(events.BuildSessionWildcardSubject(), b.handleEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to session events: %w", err)
	}
	b.sub = sub
	b.logger.Info("Event bridge started")
	return nil
}

// Stop unsubscribes from the event bus
func (b *Bridge) Stop() {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			b.logger.WithError(err).Warn("Failed to unsubscribe event bridge")
		}
		b.sub = nil
	}
}

func (b *Bridge) handleEvent(_ context.Context, event *bus.Event) error {
	sessionID, ok := event.Data["session_id"].(string)
	if !ok || sessionID == "" {
		// Events without a session id have no routing key; drop them.
		return nil
	}
	b.hub.Broadcast(sessionID, event)
	return nil
}
