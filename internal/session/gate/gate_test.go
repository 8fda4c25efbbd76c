package gate

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive-dev/hive/internal/common/logger"
	"github.com/hive-dev/hive/internal/session/approval"
	"github.com/hive-dev/hive/internal/session/fingerprint"
	"github.com/hive-dev/hive/internal/session/models"
)

type recordingNotifier struct {
	mu      sync.Mutex
	pending []*models.PendingApproval
}

func (n *recordingNotifier) PermissionRequested(_ context.Context, p *models.PendingApproval) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, p)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stderr"})
	require.NoError(t, err)
	return log
}

func TestDecideDeniesAndRecordsPending(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	notifier := &recordingNotifier{}
	g := New(store, notifier, testLogger(t))

	input := map[string]any{"command": "rm -rf /tmp/x"}
	decision, err := g.Decide(ctx, "s1", "Bash", input, "tu-1")
	require.NoError(t, err)

	assert.False(t, decision.Allow)
	assert.Equal(t, DenialMessage, decision.Message)
	require.NotNil(t, decision.Pending)
	assert.Equal(t, "tu-1", decision.Pending.ToolUseID)
	assert.Equal(t, fingerprint.Compute("Bash", input), decision.Pending.Fingerprint)

	pending, err := store.ListPending(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, 1, notifier.count())
}

func TestDecideConsumesPreApprovalOnce(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	g := New(store, nil, testLogger(t))

	input := map[string]any{"file_path": "/tmp/proj/x"}
	fp := fingerprint.Compute("Write", input)
	_, err := store.CreatePreApproval(ctx, "s1", fp)
	require.NoError(t, err)

	// First matching call is allowed and consumes the pre-approval.
	decision, err := g.Decide(ctx, "s1", "Write", input, "tu-1")
	require.NoError(t, err)
	assert.True(t, decision.Allow)

	remaining, err := store.FindPreApproval(ctx, "s1", fp)
	require.NoError(t, err)
	assert.Nil(t, remaining)

	// A second identical call is denied again with a fresh pending record.
	decision, err = g.Decide(ctx, "s1", "Write", input, "tu-2")
	require.NoError(t, err)
	assert.False(t, decision.Allow)

	pending, err := store.ListPending(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "tu-2", pending[0].ToolUseID)
}

func TestDecideCrossSessionIsolation(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	g := New(store, nil, testLogger(t))

	input := map[string]any{"command": "make build"}
	fp := fingerprint.Compute("Bash", input)
	_, err := store.CreatePreApproval(ctx, "session-a", fp)
	require.NoError(t, err)

	decision, err := g.Decide(ctx, "session-b", "Bash", input, "tu-1")
	require.NoError(t, err)
	assert.False(t, decision.Allow, "session B must not consume session A's pre-approval")

	// Session A's pre-approval is still intact.
	pre, err := store.FindPreApproval(ctx, "session-a", fp)
	require.NoError(t, err)
	assert.NotNil(t, pre)
}

func TestDecideConcurrentIdenticalCallsSinglePreApproval(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	g := New(store, nil, testLogger(t))

	input := map[string]any{"command": "echo hi"}
	fp := fingerprint.Compute("Bash", input)
	_, err := store.CreatePreApproval(ctx, "s1", fp)
	require.NoError(t, err)

	const callers = 8
	allowed := make(chan bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			decision, err := g.Decide(ctx, "s1", "Bash", input, "tu")
			require.NoError(t, err)
			allowed <- decision.Allow
		}(i)
	}
	wg.Wait()
	close(allowed)

	allowCount := 0
	for a := range allowed {
		if a {
			allowCount++
		}
	}
	assert.Equal(t, 1, allowCount, "exactly one caller may consume the pre-approval")
}

func TestDecideDuplicateCallsGetIndependentPendings(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	g := New(store, nil, testLogger(t))

	// Same fingerprint, distinct tool-use ids: each gets its own record.
	input := map[string]any{"command": "date"}
	_, err := g.Decide(ctx, "s1", "Bash", input, "tu-1")
	require.NoError(t, err)
	_, err = g.Decide(ctx, "s1", "Bash", input, "tu-2")
	require.NoError(t, err)

	pending, err := store.ListPending(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, pending[0].Fingerprint, pending[1].Fingerprint)
	assert.NotEqual(t, pending[0].ToolUseID, pending[1].ToolUseID)
}
