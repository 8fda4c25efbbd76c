package agentwire

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hive-dev/hive/internal/common/logger"
)

// RequestHandler handles incoming control requests from the engine.
// It receives the request ID and control request, and should call SendControlResponse.
type RequestHandler func(requestID string, req *ControlRequest)

// MessageHandler handles streaming messages from the engine.
type MessageHandler func(msg *Message)

// IncomingControlResponse is a control response received from the engine,
// answering a control request we sent (initialize, interrupt, ...).
type IncomingControlResponse struct {
	Subtype   string `json:"subtype"` // success, error
	RequestID string `json:"request_id"`
	Error     string `json:"error,omitempty"`
}

// incomingEnvelope is the partial wire structure used to route incoming lines.
type incomingEnvelope struct {
	Type      string                   `json:"type"`
	RequestID string                   `json:"request_id,omitempty"`
	Request   *ControlRequest          `json:"request,omitempty"`
	Response  *IncomingControlResponse `json:"response,omitempty"`
}

// pendingRequest tracks a control request waiting for a response.
type pendingRequest struct {
	ch chan *IncomingControlResponse
}

// Client handles engine communication over stdin/stdout streams.
// It reads streaming JSON from stdout and writes control messages to stdin.
type Client struct {
	stdin  io.Writer
	stdout io.Reader
	logger *logger.Logger

	// Handlers for incoming messages
	requestHandler RequestHandler
	messageHandler MessageHandler

	// Pending control requests (requests we sent, waiting for responses)
	pendingRequests   map[string]*pendingRequest
	pendingRequestsMu sync.Mutex

	// Synchronization
	mu   sync.RWMutex
	done chan struct{}
}

// NewClient creates a new engine wire client.
func NewClient(stdin io.Writer, stdout io.Reader, log *logger.Logger) *Client {
	return &Client{
		stdin:           stdin,
		stdout:          stdout,
		logger:          log.WithFields(zap.String("component", "agentwire-client")),
		done:            make(chan struct{}),
		pendingRequests: make(map[string]*pendingRequest),
	}
}

// SetRequestHandler sets the handler for incoming control requests.
func (c *Client) SetRequestHandler(handler RequestHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestHandler = handler
}

// SetMessageHandler sets the handler for streaming messages.
func (c *Client) SetMessageHandler(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageHandler = handler
}

// Start begins reading from stdout in a goroutine.
// Returns a channel that is closed when the read loop is ready.
func (c *Client) Start(ctx context.Context) <-chan struct{} {
	ready := make(chan struct{})
	go c.readLoop(ctx, ready)
	return ready
}

// Stop stops the client and closes the done channel.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		// Already closed
	default:
		close(c.done)
	}
}

// Initialize sends the initialize control request to the engine and waits for
// the acknowledgment. Must be called in streaming mode before any prompt.
func (c *Client) Initialize(ctx context.Context, timeout time.Duration) error {
	req := &SDKControlRequest{
		Type:      MessageTypeControlRequest,
		RequestID: uuid.New().String(),
		Request: SDKControlRequestBody{
			Subtype: SubtypeInitialize,
		},
	}
	resp, err := c.roundTrip(ctx, req, timeout)
	if err != nil {
		return err
	}
	if resp.Subtype == "error" {
		return fmt.Errorf("initialize failed: %s", resp.Error)
	}
	return nil
}

// Interrupt sends the interrupt control request and waits for the acknowledgment.
func (c *Client) Interrupt(ctx context.Context, timeout time.Duration) error {
	req := &SDKControlRequest{
		Type:      MessageTypeControlRequest,
		RequestID: uuid.New().String(),
		Request: SDKControlRequestBody{
			Subtype: SubtypeInterrupt,
		},
	}
	resp, err := c.roundTrip(ctx, req, timeout)
	if err != nil {
		return err
	}
	if resp.Subtype == "error" {
		return fmt.Errorf("interrupt failed: %s", resp.Error)
	}
	return nil
}

// SetPermissionMode sends the set_permission_mode control request.
// The engine acknowledges asynchronously; we do not wait for the response.
func (c *Client) SetPermissionMode(mode string) error {
	req := &SDKControlRequest{
		Type:      MessageTypeControlRequest,
		RequestID: uuid.New().String(),
		Request: SDKControlRequestBody{
			Subtype: SubtypeSetPermissionMode,
			Mode:    mode,
		},
	}
	return c.send(req)
}

// roundTrip sends a control request and waits for the matching control response.
func (c *Client) roundTrip(ctx context.Context, req *SDKControlRequest, timeout time.Duration) (*IncomingControlResponse, error) {
	pending := &pendingRequest{
		ch: make(chan *IncomingControlResponse, 1),
	}

	c.pendingRequestsMu.Lock()
	c.pendingRequests[req.RequestID] = pending
	c.pendingRequestsMu.Unlock()

	defer func() {
		c.pendingRequestsMu.Lock()
		delete(c.pendingRequests, req.RequestID)
		c.pendingRequestsMu.Unlock()
	}()

	c.logger.Debug("sending control request",
		zap.String("request_id", req.RequestID),
		zap.String("subtype", req.Request.Subtype))

	if err := c.send(req); err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", req.Request.Subtype, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("%s request timed out after %v", req.Request.Subtype, timeout)
	case resp := <-pending.ch:
		return resp, nil
	}
}

// SendControlResponse sends a control response to the engine.
func (c *Client) SendControlResponse(resp *ControlResponseMessage) error {
	return c.send(resp)
}

// SendUserMessage sends a user message (prompt) to the engine.
func (c *Client) SendUserMessage(content string) error {
	msg := &UserMessage{
		Type: MessageTypeUser,
		Message: UserMessageBody{
			Role:    "user",
			Content: content,
		},
	}
	return c.send(msg)
}

func (c *Client) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')
	_, err = c.stdin.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	c.logger.Debug("sent message", zap.String("data", string(data)))
	return nil
}

func (c *Client) readLoop(ctx context.Context, ready chan<- struct{}) {
	scanner := bufio.NewScanner(c.stdout)
	// Allow for large JSON messages (up to 10MB)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	// Signal that we're ready to read
	close(ready)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		c.handleLine(line)
	}

	if err := scanner.Err(); err != nil {
		c.logger.Error("read loop error", zap.Error(err))
	}
}

func (c *Client) handleLine(line []byte) {
	var envelope incomingEnvelope
	if err := json.Unmarshal(line, &envelope); err != nil {
		c.logger.Warn("failed to parse message", zap.Error(err), zap.String("line", string(line)))
		return
	}

	// Control requests (from the engine to us, e.g. permission requests)
	if envelope.Type == MessageTypeControlRequest && envelope.Request != nil {
		c.handleControlRequest(envelope.RequestID, envelope.Request)
		return
	}

	// Control responses (from the engine back to us, e.g. initialize ack).
	// Note: request_id is inside the response object, not at the message level.
	if envelope.Type == MessageTypeControlResponse && envelope.Response != nil {
		c.handleControlResponse(envelope.Response)
		return
	}

	// Forward other messages to the message handler
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		c.logger.Warn("failed to parse stream message", zap.Error(err))
		return
	}

	c.mu.RLock()
	handler := c.messageHandler
	c.mu.RUnlock()

	if handler != nil {
		handler(&msg)
	}
}

func (c *Client) handleControlRequest(requestID string, req *ControlRequest) {
	c.mu.RLock()
	handler := c.requestHandler
	c.mu.RUnlock()

	if handler != nil {
		handler(requestID, req)
		return
	}

	c.logger.Warn("received control request but no handler registered",
		zap.String("request_id", requestID),
		zap.String("subtype", req.Subtype))
	// Auto-deny if no handler
	if err := c.SendControlResponse(&ControlResponseMessage{
		Type:      MessageTypeControlResponse,
		RequestID: requestID,
		Response: &ControlResponse{
			Subtype: "error",
			Error:   "no handler registered",
		},
	}); err != nil {
		c.logger.Warn("failed to send error response", zap.Error(err))
	}
}

func (c *Client) handleControlResponse(resp *IncomingControlResponse) {
	c.pendingRequestsMu.Lock()
	pending, ok := c.pendingRequests[resp.RequestID]
	c.pendingRequestsMu.Unlock()

	if !ok {
		c.logger.Warn("received control response for unknown request",
			zap.String("request_id", resp.RequestID),
			zap.String("subtype", resp.Subtype))
		return
	}

	select {
	case pending.ch <- resp:
	default:
		c.logger.Warn("pending request channel full", zap.String("request_id", resp.RequestID))
	}
}
