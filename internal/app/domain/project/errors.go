package project

import "errors"

// Validation errors: creation or funding parameters are unacceptable.
var (
	ErrFeeTooLow            = errors.New("fee rate below platform minimum")
	ErrBudgetTooLarge       = errors.New("budget too large for fee computation")
	ErrNoMilestones         = errors.New("at least one milestone is required")
	ErrMilestoneSumMismatch = errors.New("milestone amounts must sum to the budget net of the fee")
	ErrIncorrectValueSent   = errors.New("supplied value must equal the budget")
)

// Authorization errors: the caller lacks the role the operation demands.
var (
	ErrNotClient     = errors.New("caller is not the project client")
	ErrNotOwner      = errors.New("caller is not the platform owner")
	ErrNotAuthorized = errors.New("caller is not a party to the project")
)

// State errors: the operation conflicts with the project's current state.
var (
	ErrAlreadyFunded          = errors.New("project is already funded")
	ErrNotFunded              = errors.New("project is not funded")
	ErrAlreadyCancelled       = errors.New("project is cancelled")
	ErrAlreadyCompleted       = errors.New("project is completed")
	ErrAllMilestonesConfirmed = errors.New("all milestones are confirmed")
)

// ErrTransferFailed wraps a gateway failure that rolled the operation back.
var ErrTransferFailed = errors.New("transfer failed")

// ErrNotFound is returned for unknown project identifiers.
var ErrNotFound = errors.New("project not found")
