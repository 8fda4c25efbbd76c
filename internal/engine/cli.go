package engine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hive-dev/hive/internal/common/logger"
	"github.com/hive-dev/hive/pkg/agentwire"
)

const interruptTimeout = 10 * time.Second

// CLIEngine spawns an engine binary per conversation and speaks the
// stream-json protocol over its stdin/stdout.
type CLIEngine struct {
	profile     Profile
	initTimeout time.Duration
	logger      *logger.Logger
}

// NewCLIEngine creates an engine backed by the given profile.
func NewCLIEngine(profile Profile, initTimeout time.Duration, log *logger.Logger) *CLIEngine {
	if initTimeout <= 0 {
		initTimeout = 30 * time.Second
	}
	return &CLIEngine{
		profile:     profile,
		initTimeout: initTimeout,
		logger:      log.WithFields(zap.String("component", "cli-engine"), zap.String("profile", profile.Name)),
	}
}

// Open spawns the engine process, performs the initialize handshake, and
// sends the prompt. The returned conversation streams until the run ends.
func (e *CLIEngine) Open(ctx context.Context, prompt string, opts OpenOptions) (Conversation, error) {
	args := append([]string{}, e.profile.Args...)
	if opts.Resume != "" && e.profile.ResumeFlag != "" {
		args = append(args, e.profile.ResumeFlag, opts.Resume)
	}
	if opts.Model != "" && e.profile.ModelFlag != "" {
		args = append(args, e.profile.ModelFlag, opts.Model)
	}
	if opts.PermissionMode != "" && e.profile.PermissionModeFlag != "" {
		args = append(args, e.profile.PermissionModeFlag, opts.PermissionMode)
	}

	// The process outlives the Open call; its lifetime is bound to the
	// conversation, not the caller's context.
	procCtx, cancel := context.WithCancel(context.Background())

	cmd := exec.CommandContext(procCtx, e.profile.Command, args...)
	cmd.Dir = opts.Cwd
	cmd.Env = append(os.Environ(), e.profile.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start engine process: %w", err)
	}

	log := e.logger.WithFields(zap.Int("pid", cmd.Process.Pid))
	client := agentwire.NewClient(stdin, stdout, log)

	conv := &cliConversation{
		client:   client,
		cancel:   cancel,
		messages: make(chan *agentwire.Message, 64),
		procDone: make(chan struct{}),
		logger:   log,
	}

	canUseTool := opts.CanUseTool
	client.SetRequestHandler(func(requestID string, req *agentwire.ControlRequest) {
		conv.handlePermissionRequest(procCtx, requestID, req, canUseTool)
	})
	client.SetMessageHandler(conv.emit)

	<-client.Start(procCtx)

	var g errgroup.Group
	g.Go(func() error {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Debug("engine stderr", zap.String("line", scanner.Text()))
		}
		return nil
	})
	g.Go(func() error {
		err := cmd.Wait()
		if err != nil && procCtx.Err() == nil {
			log.Warn("engine process exited with error", zap.Error(err))
		}
		return nil
	})
	go func() {
		_ = g.Wait()
		// Let the read loop flush any trailing lines before the stream closes.
		time.Sleep(50 * time.Millisecond)
		conv.finish()
	}()

	if err := client.Initialize(ctx, e.initTimeout); err != nil {
		_ = conv.Close()
		return nil, fmt.Errorf("engine handshake failed: %w", err)
	}

	if err := client.SendUserMessage(prompt); err != nil {
		_ = conv.Close()
		return nil, fmt.Errorf("failed to send prompt: %w", err)
	}

	return conv, nil
}

// cliConversation is a live run over a spawned engine process.
type cliConversation struct {
	client   *agentwire.Client
	cancel   context.CancelFunc
	messages chan *agentwire.Message
	procDone chan struct{}
	logger   *logger.Logger

	emitMu     sync.Mutex
	emitClosed bool
	closeOnce  sync.Once
}

func (c *cliConversation) Messages() <-chan *agentwire.Message {
	return c.messages
}

func (c *cliConversation) SetPermissionMode(mode string) error {
	return c.client.SetPermissionMode(mode)
}

func (c *cliConversation) Interrupt(ctx context.Context) error {
	return c.client.Interrupt(ctx, interruptTimeout)
}

func (c *cliConversation) Close() error {
	c.cancel()
	c.client.Stop()
	return nil
}

// emit forwards a stream message to the consumer. Messages arriving after the
// process has exited are dropped.
func (c *cliConversation) emit(msg *agentwire.Message) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if c.emitClosed {
		return
	}
	select {
	case c.messages <- msg:
	case <-c.procDone:
	}
}

// finish closes the message stream after the process has exited.
func (c *cliConversation) finish() {
	c.closeOnce.Do(func() {
		close(c.procDone)
		c.emitMu.Lock()
		c.emitClosed = true
		close(c.messages)
		c.emitMu.Unlock()
	})
}

func (c *cliConversation) handlePermissionRequest(ctx context.Context, requestID string, req *agentwire.ControlRequest, canUseTool CanUseToolFunc) {
	if req.Subtype != agentwire.SubtypeCanUseTool {
		c.logger.Warn("unexpected control request subtype", zap.String("subtype", req.Subtype))
		c.respond(requestID, &agentwire.ControlResponse{
			Subtype: "error",
			Error:   fmt.Sprintf("unsupported control request: %s", req.Subtype),
		})
		return
	}

	decision := PermissionDecision{
		Behavior: agentwire.BehaviorDeny,
		Message:  "no permission handler configured",
	}
	if canUseTool != nil {
		decision = canUseTool(ctx, req.ToolName, req.Input, req.ToolUseID)
	}

	result := &agentwire.PermissionResult{
		Behavior: decision.Behavior,
		Message:  decision.Message,
	}
	if decision.Behavior == agentwire.BehaviorAllow && decision.UpdatedInput != nil {
		result.UpdatedInput = decision.UpdatedInput
	}
	if decision.Behavior == agentwire.BehaviorDeny && decision.Interrupt {
		interrupt := true
		result.Interrupt = &interrupt
	}

	c.respond(requestID, &agentwire.ControlResponse{
		Subtype: "success",
		Result:  result,
	})
}

func (c *cliConversation) respond(requestID string, resp *agentwire.ControlResponse) {
	if err := c.client.SendControlResponse(&agentwire.ControlResponseMessage{
		Type:      agentwire.MessageTypeControlResponse,
		RequestID: requestID,
		Response:  resp,
	}); err != nil {
		c.logger.Warn("failed to send control response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}
