package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive-dev/hive/internal/common/logger"
	"github.com/hive-dev/hive/internal/events"
	"github.com/hive-dev/hive/internal/events/bus"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stderr"})
	require.NoError(t, err)
	return log
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func recvEvent(t *testing.T, c *Client) *bus.Event {
	t.Helper()
	select {
	case data := <-c.send:
		var event bus.Event
		require.NoError(t, json.Unmarshal(data, &event))
		return &event
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestHubRoutesBySession(t *testing.T) {
	hub := startHub(t)
	log := testLogger(t)

	c1 := NewClient("c1", nil, hub, log)
	c2 := NewClient("c2", nil, hub, log)
	hub.Register(c1)
	hub.Register(c2)
	c1.Subscribe("sess-1")
	c2.Subscribe("sess-2")

	event := bus.NewEvent(events.SessionStatusChanged, "test", map[string]interface{}{
		"session_id": "sess-1",
		"status":     "running",
	})
	hub.Broadcast("sess-1", event)

	got := recvEvent(t, c1)
	assert.Equal(t, events.SessionStatusChanged, got.Type)
	assert.Equal(t, "sess-1", got.Data["session_id"])

	select {
	case <-c2.send:
		t.Fatal("client subscribed to another session received the event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := startHub(t)
	c := NewClient("c1", nil, hub, testLogger(t))
	hub.Register(c)

	c.Subscribe("sess-1")
	require.Eventually(t, func() bool {
		return hub.GetSessionSubscriberCount("sess-1") == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, c.IsSubscribed("sess-1"))

	c.Unsubscribe("sess-1")
	assert.Equal(t, 0, hub.GetSessionSubscriberCount("sess-1"))
	assert.False(t, c.IsSubscribed("sess-1"))
}

func TestBridgeForwardsSessionEvents(t *testing.T) {
	hub := startHub(t)
	log := testLogger(t)

	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)

	bridge := NewBridge(hub, eventBus, log)
	require.NoError(t, bridge.Start())
	t.Cleanup(bridge.Stop)

	c := NewClient("c1", nil, hub, log)
	hub.Register(c)
	c.Subscribe("sess-1")

	event := bus.NewEvent(events.PermissionRequested, "session-manager", map[string]interface{}{
		"session_id": "sess-1",
		"tool_name":  "Bash",
	})
	require.NoError(t, eventBus.Publish(context.Background(),
		events.BuildPermissionRequestedSubject("sess-1"), event))

	got := recvEvent(t, c)
	assert.Equal(t, events.PermissionRequested, got.Type)
	assert.Equal(t, "Bash", got.Data["tool_name"])
}

func TestBridgeIgnoresEventsWithoutSessionID(t *testing.T) {
	hub := startHub(t)
	log := testLogger(t)

	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)

	bridge := NewBridge(hub, eventBus, log)
	require.NoError(t, bridge.Start())
	t.Cleanup(bridge.Stop)

	c := NewClient("c1", nil, hub, log)
	hub.Register(c)
	c.Subscribe("sess-1")

	event := bus.NewEvent(events.SessionStatusChanged, "test", nil)
	require.NoError(t, eventBus.Publish(context.Background(), "session.status_changed.sess-1", event))

	select {
	case <-c.send:
		t.Fatal("event without session_id should not be delivered")
	case <-time.After(50 * time.Millisecond):
	}
}
