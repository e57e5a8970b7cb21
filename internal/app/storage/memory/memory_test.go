package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/R3E-Network/escrow_layer/internal/app/domain/asset"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/event"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/project"
)

func sample(client, executor string) project.Project {
	return project.Project{
		Client:         client,
		Executor:       executor,
		Asset:          asset.NativeKind(),
		Budget:         100,
		EscrowTotal:    99,
		FeeBasisPoints: 100,
		Milestones:     []int64{50, 49},
		State:          project.StateActive,
	}
}

func TestCreateAssignsMonotonicIDs(t *testing.T) {
	store := New()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		p, err := store.CreateProject(ctx, sample("c", "e"))
		if err != nil {
			t.Fatalf("CreateProject: %v", err)
		}
		if p.ID != want {
			t.Fatalf("expected id %d, got %d", want, p.ID)
		}
		if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
			t.Fatal("expected timestamps set on create")
		}
	}
}

func TestReturnedRecordsAreIsolated(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateProject(ctx, sample("c", "e"))
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	// Mutating the returned slice must not leak into the store.
	created.Milestones[0] = 9999

	got, err := store.GetProject(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Milestones[0] != 50 {
		t.Fatalf("stored milestones mutated through returned copy: %v", got.Milestones)
	}
}

func TestUpdateUnknownProject(t *testing.T) {
	store := New()
	_, err := store.UpdateProject(context.Background(), project.Project{ID: 7})
	if !errors.Is(err, project.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePreservesCreationTime(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateProject(ctx, sample("c", "e"))
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	created.State = project.StateCancelled
	updated, err := store.UpdateProject(ctx, created)
	if err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatal("update must not rewrite CreatedAt")
	}
	if updated.State != project.StateCancelled {
		t.Fatalf("expected cancelled state, got %s", updated.State)
	}
}

func TestListByParty(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreateProject(ctx, sample("alice", "bob")); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := store.CreateProject(ctx, sample("carol", "bob")); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	bobs, err := store.ListProjectsByParty(ctx, "bob")
	if err != nil {
		t.Fatalf("ListProjectsByParty: %v", err)
	}
	if len(bobs) != 2 {
		t.Fatalf("expected 2 projects for bob, got %d", len(bobs))
	}

	none, err := store.ListProjectsByParty(ctx, "mallory")
	if err != nil {
		t.Fatalf("ListProjectsByParty: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no projects for mallory, got %d", len(none))
	}
}

func TestFeeBalancesDefaultToZero(t *testing.T) {
	store := New()
	ctx := context.Background()

	balance, err := store.FeeBalance(ctx, asset.NativeKind())
	if err != nil {
		t.Fatalf("FeeBalance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance for unseen asset, got %d", balance)
	}

	if err := store.SetFeeBalance(ctx, asset.NativeKind(), 42); err != nil {
		t.Fatalf("SetFeeBalance: %v", err)
	}
	balances, err := store.ListFeeBalances(ctx)
	if err != nil {
		t.Fatalf("ListFeeBalances: %v", err)
	}
	if balances["native"] != 42 {
		t.Fatalf("expected 42, got %v", balances)
	}
}

func TestAppendEventAssignsIDAndKeepsOrder(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i, typ := range []string{event.TypeProjectCreated, event.TypeProjectFunded, event.TypeProjectCancelled} {
		ev, err := store.AppendEvent(ctx, event.Event{Type: typ, ProjectID: int64(i + 1)})
		if err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
		if ev.ID == "" || ev.CreatedAt.IsZero() {
			t.Fatal("expected assigned id and timestamp")
		}
	}

	all, err := store.ListEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 3 || all[0].Type != event.TypeProjectCreated {
		t.Fatalf("expected 3 events in append order, got %+v", all)
	}

	last, err := store.ListEvents(ctx, 2)
	if err != nil {
		t.Fatalf("ListEvents limited: %v", err)
	}
	if len(last) != 2 || last[0].Type != event.TypeProjectFunded {
		t.Fatalf("expected the 2 most recent events, got %+v", last)
	}
}
