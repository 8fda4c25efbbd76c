package agentwire

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive-dev/hive/internal/common/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stderr"})
	require.NoError(t, err)
	return log
}

func TestClientDispatchesStreamMessages(t *testing.T) {
	stdoutR, stdoutW := io.Pipe()
	var stdin bytes.Buffer

	client := NewClient(&stdin, stdoutR, testLogger(t))
	defer client.Stop()

	var mu sync.Mutex
	var received []*Message
	client.SetMessageHandler(func(msg *Message) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	<-client.Start(context.Background())

	go func() {
		_, _ = stdoutW.Write([]byte(`{"type":"system","session_id":"conv-1"}` + "\n"))
		_, _ = stdoutW.Write([]byte(`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hello"}]}}` + "\n"))
		_ = stdoutW.Close()
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, MessageTypeSystem, received[0].Type)
	assert.Equal(t, "conv-1", received[0].ConversationID)
	assert.Equal(t, MessageTypeAssistant, received[1].Type)
	require.NotNil(t, received[1].Message)
	assert.Equal(t, "hello", received[1].Message.Content[0].Text)
}

func TestClientRoutesControlRequests(t *testing.T) {
	stdoutR, stdoutW := io.Pipe()
	var stdin bytes.Buffer

	client := NewClient(&stdin, stdoutR, testLogger(t))
	defer client.Stop()

	requests := make(chan *ControlRequest, 1)
	client.SetRequestHandler(func(requestID string, req *ControlRequest) {
		assert.Equal(t, "req-1", requestID)
		requests <- req
	})

	<-client.Start(context.Background())

	go func() {
		line := `{"type":"control_request","request_id":"req-1","request":{"subtype":"can_use_tool","tool_name":"Bash","input":{"command":"ls"},"tool_use_id":"tu-1"}}`
		_, _ = stdoutW.Write([]byte(line + "\n"))
	}()

	select {
	case req := <-requests:
		assert.Equal(t, SubtypeCanUseTool, req.Subtype)
		assert.Equal(t, "Bash", req.ToolName)
		assert.Equal(t, "tu-1", req.ToolUseID)
		assert.Equal(t, "ls", req.Input["command"])
	case <-time.After(time.Second):
		t.Fatal("control request not dispatched")
	}
}

func TestClientInitializeRoundTrip(t *testing.T) {
	stdoutR, stdoutW := io.Pipe()
	stdinR, stdinW := io.Pipe()

	client := NewClient(stdinW, stdoutR, testLogger(t))
	defer client.Stop()

	<-client.Start(context.Background())

	// Echo an acknowledgment for whatever request ID the client generates.
	go func() {
		scanner := bufio.NewScanner(stdinR)
		require.True(t, scanner.Scan())

		var req SDKControlRequest
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &req))
		assert.Equal(t, SubtypeInitialize, req.Request.Subtype)

		ack, _ := json.Marshal(map[string]any{
			"type": MessageTypeControlResponse,
			"response": map[string]any{
				"subtype":    "success",
				"request_id": req.RequestID,
			},
		})
		_, _ = stdoutW.Write(append(ack, '\n'))
	}()

	err := client.Initialize(context.Background(), 2*time.Second)
	require.NoError(t, err)
}

func TestClientInitializeTimeout(t *testing.T) {
	stdoutR, _ := io.Pipe()
	stdinR, stdinW := io.Pipe()

	client := NewClient(stdinW, stdoutR, testLogger(t))
	defer client.Stop()

	// Drain stdin so the write does not block.
	go func() { _, _ = io.Copy(io.Discard, stdinR) }()

	<-client.Start(context.Background())

	err := client.Initialize(context.Background(), 50*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestClientSendUserMessage(t *testing.T) {
	stdoutR, _ := io.Pipe()
	var stdin bytes.Buffer

	client := NewClient(&stdin, stdoutR, testLogger(t))
	defer client.Stop()

	require.NoError(t, client.SendUserMessage("do the thing"))

	var msg UserMessage
	require.NoError(t, json.Unmarshal(stdin.Bytes(), &msg))
	assert.Equal(t, MessageTypeUser, msg.Type)
	assert.Equal(t, "user", msg.Message.Role)
	assert.Equal(t, "do the thing", msg.Message.Content)
}
