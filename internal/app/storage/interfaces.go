// Package storage declares the persistence interfaces of the escrow layer.
package storage

import (
	"context"

	"github.com/R3E-Network/escrow_layer/internal/app/domain/asset"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/event"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/project"
)

// ProjectStore persists project records. Identifiers are assigned
// monotonically on creation and are never reused or removed; terminal
// records stay readable forever.
type ProjectStore interface {
	CreateProject(ctx context.Context, p project.Project) (project.Project, error)
	UpdateProject(ctx context.Context, p project.Project) (project.Project, error)
	GetProject(ctx context.Context, id int64) (project.Project, error)
	ListProjects(ctx context.Context) ([]project.Project, error)
	ListProjectsByParty(ctx context.Context, address string) ([]project.Project, error)
}

// FeeStore persists per-asset accumulated platform fees.
type FeeStore interface {
	FeeBalance(ctx context.Context, kind asset.Kind) (int64, error)
	SetFeeBalance(ctx context.Context, kind asset.Kind, balance int64) error
	ListFeeBalances(ctx context.Context) (map[string]int64, error)
}

// EventStore persists the append-only notification log.
type EventStore interface {
	AppendEvent(ctx context.Context, ev event.Event) (event.Event, error)
	ListEvents(ctx context.Context, limit int) ([]event.Event, error)
}
