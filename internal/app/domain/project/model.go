// Package project defines the escrow project record and its lifecycle
// states.
package project

import (
	"time"

	"github.com/R3E-Network/escrow_layer/internal/app/domain/asset"
)

// State is a project's lifecycle state. Completed and cancelled are
// terminal.
type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

const (
	// FeeScale is the basis-point denominator: 10000 basis points equal
	// 100 percent.
	FeeScale = 10000
	// MinFeeBasisPoints is the lowest fee rate a project may be created
	// with (1 percent).
	MinFeeBasisPoints = 100
)

// Project is the escrow record for one engagement between a client and an
// executor. Budget is the gross amount the client commits; EscrowTotal is
// the net amount held for the executor after the platform fee. Both are
// fixed at creation, as is the milestone schedule.
type Project struct {
	ID             int64      `json:"id"`
	Client         string     `json:"client"`
	Executor       string     `json:"executor"`
	Asset          asset.Kind `json:"asset"`
	Budget         int64      `json:"budget"`
	EscrowTotal    int64      `json:"escrow_total"`
	FeeBasisPoints int64      `json:"fee_basis_points"`
	Milestones     []int64    `json:"milestones"`
	NextMilestone  int        `json:"next_milestone"`
	Funded         bool       `json:"funded"`
	State          State      `json:"state"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Fee computes the platform fee for a budget at the given rate. Integer
// division truncates toward zero.
func Fee(budget, feeBasisPoints int64) int64 {
	return budget * feeBasisPoints / FeeScale
}

// Terminal reports whether the project can no longer transition.
func (p Project) Terminal() bool {
	return p.State == StateCompleted || p.State == StateCancelled
}

// Paid returns the amount already released to the executor.
func (p Project) Paid() int64 {
	var sum int64
	for _, amount := range p.Milestones[:p.NextMilestone] {
		sum += amount
	}
	return sum
}

// Remaining returns the escrowed amount not yet released.
func (p Project) Remaining() int64 {
	return p.EscrowTotal - p.Paid()
}
