// Package access holds the authorization predicates gating escrow
// operations. Caller identity is always passed explicitly; a failed
// predicate aborts the operation before any side effect.
package access

import (
	"strings"

	"github.com/R3E-Network/escrow_layer/internal/app/domain/project"
)

// Checker evaluates caller roles. The platform owner is fixed at
// construction and is the only identity permitted to withdraw fees.
type Checker struct {
	owner string
}

// New creates a checker with the given owner address.
func New(owner string) *Checker {
	return &Checker{owner: strings.TrimSpace(owner)}
}

// Owner returns the platform owner address.
func (c *Checker) Owner() string {
	return c.owner
}

// IsOwner reports whether the caller is the platform owner.
func (c *Checker) IsOwner(caller string) bool {
	return c.owner != "" && strings.TrimSpace(caller) == c.owner
}

// IsProjectClient reports whether the caller is the project's client.
func (c *Checker) IsProjectClient(caller string, p project.Project) bool {
	return strings.TrimSpace(caller) == p.Client
}

// IsProjectParty reports whether the caller is the project's client or
// executor.
func (c *Checker) IsProjectParty(caller string, p project.Project) bool {
	caller = strings.TrimSpace(caller)
	return caller == p.Client || caller == p.Executor
}
