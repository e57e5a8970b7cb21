// Package memory implements the storage interfaces in process memory. It is
// safe for concurrent use and is primarily intended for tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/escrow_layer/internal/app/domain/asset"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/event"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/project"
	"github.com/R3E-Network/escrow_layer/internal/app/storage"
)

// Store holds projects in a growable arena keyed by a monotonically
// assigned identifier. Records are never removed, only marked terminal.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	projects    map[int64]project.Project
	order       []int64
	feeBalances map[string]int64
	events      []event.Event
}

var _ storage.ProjectStore = (*Store)(nil)
var _ storage.FeeStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:      1,
		projects:    make(map[int64]project.Project),
		feeBalances: make(map[string]int64),
	}
}

// ProjectStore implementation -------------------------------------------------

func (s *Store) CreateProject(_ context.Context, p project.Project) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = s.nextID
	s.nextID++

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Milestones = cloneMilestones(p.Milestones)

	s.projects[p.ID] = p
	s.order = append(s.order, p.ID)
	return cloneProject(p), nil
}

func (s *Store) UpdateProject(_ context.Context, p project.Project) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.projects[p.ID]
	if !ok {
		return project.Project{}, fmt.Errorf("project %d: %w", p.ID, project.ErrNotFound)
	}

	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	p.Milestones = cloneMilestones(p.Milestones)

	s.projects[p.ID] = p
	return cloneProject(p), nil
}

func (s *Store) GetProject(_ context.Context, id int64) (project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return project.Project{}, fmt.Errorf("project %d: %w", id, project.ErrNotFound)
	}
	return cloneProject(p), nil
}

func (s *Store) ListProjects(_ context.Context) ([]project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]project.Project, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, cloneProject(s.projects[id]))
	}
	return result, nil
}

func (s *Store) ListProjectsByParty(_ context.Context, address string) ([]project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []project.Project
	for _, id := range s.order {
		p := s.projects[id]
		if p.Client == address || p.Executor == address {
			result = append(result, cloneProject(p))
		}
	}
	return result, nil
}

// FeeStore implementation -----------------------------------------------------

func (s *Store) FeeBalance(_ context.Context, kind asset.Kind) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeBalances[kind.String()], nil
}

func (s *Store) SetFeeBalance(_ context.Context, kind asset.Kind, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeBalances[kind.String()] = balance
	return nil
}

func (s *Store) ListFeeBalances(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int64, len(s.feeBalances))
	for k, v := range s.feeBalances {
		result[k] = v
	}
	return result, nil
}

// EventStore implementation ---------------------------------------------------

func (s *Store) AppendEvent(_ context.Context, ev event.Event) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, ev)
	return ev, nil
}

func (s *Store) ListEvents(_ context.Context, limit int) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	result := make([]event.Event, len(events))
	copy(result, events)
	return result, nil
}

func cloneProject(p project.Project) project.Project {
	p.Milestones = cloneMilestones(p.Milestones)
	return p
}

func cloneMilestones(milestones []int64) []int64 {
	if milestones == nil {
		return nil
	}
	out := make([]int64, len(milestones))
	copy(out, milestones)
	return out
}
