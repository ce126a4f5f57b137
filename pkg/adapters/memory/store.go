package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/choreo/pkg/domain"
)

// Store implements ports.Repository in memory.
// Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	templates map[string][]byte
	runs      map[string]*domain.Run
	states    map[string]*domain.RunState
	byRun     map[string][]string
	open      map[string]string // runID -> open run state ID
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		templates: make(map[string][]byte),
		runs:      make(map[string]*domain.Run),
		states:    make(map[string]*domain.RunState),
		byRun:     make(map[string][]string),
		open:      make(map[string]string),
	}
}

// SaveTemplate stores the canonical JSON of t, the same representation the
// durable adapters keep.
func (s *Store) SaveTemplate(ctx context.Context, t *domain.Template) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode template: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = data
	return nil
}

// LoadTemplate decodes a fresh copy of the stored template.
func (s *Store) LoadTemplate(ctx context.Context, id string) (*domain.Template, error) {
	s.mu.RLock()
	data, ok := s.templates[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrTemplateNotFound
	}
	var t domain.Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", id, err)
	}
	return &t, nil
}

// SaveRun persists a copy of the run.
func (s *Store) SaveRun(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.Clone()
	return nil
}

// LoadRun returns a copy so callers can't mutate the stored run.
func (s *Store) LoadRun(ctx context.Context, id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return run.Clone(), nil
}

// ListRuns returns stored run IDs.
func (s *Store) ListRuns(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// AppendRunState stores a new visit.
func (s *Store) AppendRunState(ctx context.Context, rs *domain.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rs.Open() {
		if current, ok := s.open[rs.RunID]; ok {
			return fmt.Errorf("run %s already has open state %s: %w", rs.RunID, current, domain.ErrStaleRun)
		}
		s.open[rs.RunID] = rs.ID
	}
	s.states[rs.ID] = rs.Clone()
	s.byRun[rs.RunID] = append(s.byRun[rs.RunID], rs.ID)
	return nil
}

// CloseRunState sets exitedAt on an open visit.
func (s *Store) CloseRunState(ctx context.Context, id string, exitedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.states[id]
	if !ok {
		return domain.ErrRunStateNotFound
	}
	if !rs.Open() {
		return fmt.Errorf("run state %s already closed: %w", id, domain.ErrStaleRun)
	}
	rs.ExitedAt = &exitedAt
	delete(s.open, rs.RunID)
	return nil
}

// LoadRunState returns a copy of the visit.
func (s *Store) LoadRunState(ctx context.Context, id string) (*domain.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.states[id]
	if !ok {
		return nil, domain.ErrRunStateNotFound
	}
	return rs.Clone(), nil
}

// ListRunStates returns the visits of a run in append order.
func (s *Store) ListRunStates(ctx context.Context, runID string) ([]*domain.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byRun[runID]
	out := make([]*domain.RunState, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.states[id].Clone())
	}
	return out, nil
}

// PutSlot writes one slot value of an open visit.
func (s *Store) PutSlot(ctx context.Context, runStateID, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.states[runStateID]
	if !ok {
		return domain.ErrRunStateNotFound
	}
	if !rs.Open() {
		return fmt.Errorf("run state %s is closed: %w", runStateID, domain.ErrStaleRun)
	}
	if rs.SlotData == nil {
		rs.SlotData = make(map[string]any)
	}
	rs.SlotData[name] = value
	return nil
}
