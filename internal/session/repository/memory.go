package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/hive-dev/hive/internal/common/errors"
	"github.com/hive-dev/hive/internal/session/models"
)

// MemoryStore implements Store in memory, mirroring the SQLite semantics.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	results  []*models.SessionResult
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

func (s *MemoryStore) CreateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = models.StatusIdle
	}
	if session.PermissionMode == "" {
		session.PermissionMode = models.PermissionModeDefault
	}

	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session", id)
	}
	copied := *session
	return &copied, nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied := *session
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return apperrors.NotFound("session", id)
	}
	session.Status = status
	session.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetConversationID(_ context.Context, id, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return apperrors.NotFound("session", id)
	}
	session.ConversationID = conversationID
	session.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetPermissionMode(_ context.Context, id, mode string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return apperrors.NotFound("session", id)
	}
	session.PermissionMode = mode
	session.PermissionModeExpiresAt = expiresAt
	session.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return apperrors.NotFound("session", id)
	}
	delete(s.sessions, id)
	kept := s.results[:0]
	for _, r := range s.results {
		if r.SessionID != id {
			kept = append(kept, r)
		}
	}
	s.results = kept
	return nil
}

func (s *MemoryStore) CreateResult(_ context.Context, result *models.SessionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	copied := *result
	s.results = append(s.results, &copied)
	return nil
}

func (s *MemoryStore) ListResults(_ context.Context, sessionID string) ([]*models.SessionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*models.SessionResult
	for _, r := range s.results {
		if r.SessionID == sessionID {
			copied := *r
			results = append(results, &copied)
		}
	}
	return results, nil
}
