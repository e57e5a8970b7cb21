// Package event defines the append-only notification log entries emitted
// by lifecycle operations.
package event

import (
	"time"

	"github.com/R3E-Network/escrow_layer/internal/app/domain/asset"
)

// Event types, one per observable transition.
const (
	TypeProjectCreated     = "project.created"
	TypeProjectFunded      = "project.funded"
	TypeMilestoneConfirmed = "project.milestone"
	TypeProjectCancelled   = "project.cancelled"
	TypeTreasuryWithdrawal = "treasury.withdrawal"
)

// Event records one transition. Milestone is the one-based count of
// confirmed milestones and is only set for milestone events; ProjectID is
// zero for treasury events.
type Event struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	ProjectID int64      `json:"project_id,omitempty"`
	Client    string     `json:"client,omitempty"`
	Executor  string     `json:"executor,omitempty"`
	Asset     asset.Kind `json:"asset"`
	Amount    int64      `json:"amount"`
	Milestone int        `json:"milestone,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
