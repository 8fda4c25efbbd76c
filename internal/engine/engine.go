// Package engine abstracts the external agent engine process. A conversation
// is opened with a prompt and streams messages back until the engine produces
// a terminal result; tool calls are routed through the CanUseTool callback
// before the engine may execute them.
package engine

import (
	"context"

	"github.com/hive-dev/hive/pkg/agentwire"
)

// PermissionDecision is the verdict returned by a CanUseTool callback.
type PermissionDecision struct {
	// Behavior is agentwire.BehaviorAllow or agentwire.BehaviorDeny.
	Behavior string

	// Message provides feedback to the model on deny.
	Message string

	// UpdatedInput optionally replaces the tool input on allow.
	UpdatedInput map[string]any

	// Interrupt requests the engine stop the current operation on deny.
	Interrupt bool
}

// CanUseToolFunc decides whether the engine may execute a tool call.
// Blocking here blocks the engine; implementations must return promptly.
type CanUseToolFunc func(ctx context.Context, toolName string, input map[string]any, toolUseID string) PermissionDecision

// OpenOptions configures a conversation.
type OpenOptions struct {
	// Resume is the engine-native conversation ID to resume, empty for a
	// fresh conversation.
	Resume string

	// Cwd is the working directory for the engine process.
	Cwd string

	// Model overrides the engine's default model when non-empty.
	Model string

	// PermissionMode is the engine permission mode (default, acceptEdits,
	// bypassPermissions, plan). Empty means the engine default.
	PermissionMode string

	// CanUseTool is consulted for every tool call. Nil denies everything.
	CanUseTool CanUseToolFunc
}

// Conversation is a live engine run. Messages streams engine output until the
// run completes or the conversation is closed; the channel is closed afterwards.
type Conversation interface {
	// Messages returns the stream of engine messages.
	Messages() <-chan *agentwire.Message

	// SetPermissionMode changes the engine permission mode mid-run.
	SetPermissionMode(mode string) error

	// Interrupt asks the engine to stop the current operation.
	Interrupt(ctx context.Context) error

	// Close terminates the conversation and releases the engine process.
	Close() error
}

// Engine opens conversations with an external agent runtime.
type Engine interface {
	Open(ctx context.Context, prompt string, opts OpenOptions) (Conversation, error)
}
