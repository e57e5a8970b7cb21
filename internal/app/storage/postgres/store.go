// Package postgres implements the storage interfaces on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/R3E-Network/escrow_layer/internal/app/domain/asset"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/event"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/project"
	"github.com/R3E-Network/escrow_layer/internal/app/storage"
)

// Store persists escrow records in PostgreSQL. Project identifiers come
// from a sequence and are never reused.
type Store struct {
	db *sql.DB
}

var _ storage.ProjectStore = (*Store)(nil)
var _ storage.FeeStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS escrow_projects (
			id BIGSERIAL PRIMARY KEY,
			client_address TEXT NOT NULL,
			executor_address TEXT NOT NULL,
			asset TEXT NOT NULL,
			budget BIGINT NOT NULL,
			escrow_total BIGINT NOT NULL,
			fee_basis_points BIGINT NOT NULL,
			milestones BIGINT[] NOT NULL,
			next_milestone INT NOT NULL DEFAULT 0,
			funded BOOLEAN NOT NULL DEFAULT FALSE,
			state TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_escrow_projects_client ON escrow_projects(client_address)`,
		`CREATE INDEX IF NOT EXISTS idx_escrow_projects_executor ON escrow_projects(executor_address)`,
		`CREATE TABLE IF NOT EXISTS escrow_fee_balances (
			asset TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS escrow_events (
			id UUID PRIMARY KEY,
			event_type TEXT NOT NULL,
			project_id BIGINT NOT NULL DEFAULT 0,
			client_address TEXT NOT NULL DEFAULT '',
			executor_address TEXT NOT NULL DEFAULT '',
			asset TEXT NOT NULL,
			amount BIGINT NOT NULL,
			milestone INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_escrow_events_project ON escrow_events(project_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// ProjectStore implementation -------------------------------------------------

func (s *Store) CreateProject(ctx context.Context, p project.Project) (project.Project, error) {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO escrow_projects
			(client_address, executor_address, asset, budget, escrow_total,
			 fee_basis_points, milestones, next_milestone, funded, state,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		p.Client, p.Executor, p.Asset.String(), p.Budget, p.EscrowTotal,
		p.FeeBasisPoints, pq.Array(p.Milestones), p.NextMilestone, p.Funded,
		string(p.State), p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return project.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (s *Store) UpdateProject(ctx context.Context, p project.Project) (project.Project, error) {
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE escrow_projects
		SET next_milestone = $1, funded = $2, state = $3, updated_at = $4
		WHERE id = $5`,
		p.NextMilestone, p.Funded, string(p.State), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return project.Project{}, fmt.Errorf("update project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return project.Project{}, err
	}
	if affected == 0 {
		return project.Project{}, fmt.Errorf("project %d: %w", p.ID, project.ErrNotFound)
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id int64) (project.Project, error) {
	row := s.db.QueryRowContext(ctx, projectSelect+` WHERE id = $1`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return project.Project{}, fmt.Errorf("project %d: %w", id, project.ErrNotFound)
	}
	return p, err
}

func (s *Store) ListProjects(ctx context.Context) ([]project.Project, error) {
	rows, err := s.db.QueryContext(ctx, projectSelect+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectProjects(rows)
}

func (s *Store) ListProjectsByParty(ctx context.Context, address string) ([]project.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		projectSelect+` WHERE client_address = $1 OR executor_address = $1 ORDER BY id`,
		address,
	)
	if err != nil {
		return nil, err
	}
	return collectProjects(rows)
}

const projectSelect = `
	SELECT id, client_address, executor_address, asset, budget, escrow_total,
	       fee_basis_points, milestones, next_milestone, funded, state,
	       created_at, updated_at
	FROM escrow_projects`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (project.Project, error) {
	var (
		p          project.Project
		assetKey   string
		state      string
		milestones pq.Int64Array
	)
	err := row.Scan(&p.ID, &p.Client, &p.Executor, &assetKey, &p.Budget,
		&p.EscrowTotal, &p.FeeBasisPoints, &milestones, &p.NextMilestone,
		&p.Funded, &state, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return project.Project{}, err
	}
	kind, err := asset.ParseKind(assetKey)
	if err != nil {
		return project.Project{}, fmt.Errorf("project %d: %w", p.ID, err)
	}
	p.Asset = kind
	p.State = project.State(state)
	p.Milestones = []int64(milestones)
	return p, nil
}

func collectProjects(rows *sql.Rows) ([]project.Project, error) {
	defer rows.Close()

	var result []project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// FeeStore implementation -----------------------------------------------------

func (s *Store) FeeBalance(ctx context.Context, kind asset.Kind) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM escrow_fee_balances WHERE asset = $1`,
		kind.String(),
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) SetFeeBalance(ctx context.Context, kind asset.Kind, balance int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escrow_fee_balances (asset, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset) DO UPDATE SET balance = $2, updated_at = $3`,
		kind.String(), balance, time.Now().UTC(),
	)
	return err
}

func (s *Store) ListFeeBalances(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT asset, balance FROM escrow_fee_balances`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var (
			key     string
			balance int64
		)
		if err := rows.Scan(&key, &balance); err != nil {
			return nil, err
		}
		result[key] = balance
	}
	return result, rows.Err()
}

// EventStore implementation ---------------------------------------------------

func (s *Store) AppendEvent(ctx context.Context, ev event.Event) (event.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escrow_events
			(id, event_type, project_id, client_address, executor_address,
			 asset, amount, milestone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.Type, ev.ProjectID, ev.Client, ev.Executor,
		ev.Asset.String(), ev.Amount, ev.Milestone, ev.CreatedAt,
	)
	if err != nil {
		return event.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

func (s *Store) ListEvents(ctx context.Context, limit int) ([]event.Event, error) {
	query := `
		SELECT id, event_type, project_id, client_address, executor_address,
		       asset, amount, milestone, created_at
		FROM escrow_events ORDER BY created_at`
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, event_type, project_id, client_address, executor_address,
			       asset, amount, milestone, created_at
			FROM (
				SELECT * FROM escrow_events ORDER BY created_at DESC LIMIT $1
			) recent ORDER BY created_at`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []event.Event
	for rows.Next() {
		var (
			ev       event.Event
			assetKey string
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.ProjectID, &ev.Client,
			&ev.Executor, &assetKey, &ev.Amount, &ev.Milestone, &ev.CreatedAt); err != nil {
			return nil, err
		}
		kind, err := asset.ParseKind(assetKey)
		if err != nil {
			return nil, err
		}
		ev.Asset = kind
		result = append(result, ev)
	}
	return result, rows.Err()
}
