package approval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hive-dev/hive/internal/session/models"
)

// MemoryStore implements Store in memory. It mirrors the SQLite semantics
// (creation-order listing, idempotent deletes) and doubles as the test
// fixture for the gate and manager.
type MemoryStore struct {
	mu       sync.Mutex
	pending  []*models.PendingApproval
	approved []*models.PreApprovedFingerprint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) CreatePending(_ context.Context, sessionID, toolUseID, toolName string, toolInput map[string]any, fp string) (*models.PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if toolInput == nil {
		toolInput = map[string]any{}
	}
	pending := &models.PendingApproval{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		ToolUseID:   toolUseID,
		ToolName:    toolName,
		ToolInput:   toolInput,
		Fingerprint: fp,
		CreatedAt:   time.Now().UTC(),
	}
	s.pending = append(s.pending, pending)
	return pending, nil
}

func (s *MemoryStore) GetPending(_ context.Context, id string) (*models.PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pending {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListPending(_ context.Context, sessionID string) ([]*models.PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.PendingApproval
	for _, p := range s.pending {
		if p.SessionID == sessionID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *MemoryStore) DeletePending(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.pending {
		if p.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) DeleteAllPending(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.SessionID != sessionID {
			kept = append(kept, p)
		}
	}
	s.pending = kept
	return nil
}

func (s *MemoryStore) CreatePreApproval(_ context.Context, sessionID, fp string) (*models.PreApprovedFingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pre := &models.PreApprovedFingerprint{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Fingerprint: fp,
		CreatedAt:   time.Now().UTC(),
	}
	s.approved = append(s.approved, pre)
	return pre, nil
}

func (s *MemoryStore) FindPreApproval(_ context.Context, sessionID, fp string) (*models.PreApprovedFingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pre := range s.approved {
		if pre.SessionID == sessionID && pre.Fingerprint == fp {
			return pre, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ConsumePreApproval(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, pre := range s.approved {
		if pre.ID == id {
			s.approved = append(s.approved[:i], s.approved[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) DeleteAllPreApprovals(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.approved[:0]
	for _, pre := range s.approved {
		if pre.SessionID != sessionID {
			kept = append(kept, pre)
		}
	}
	s.approved = kept
	return nil
}
