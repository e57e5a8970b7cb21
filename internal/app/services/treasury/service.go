// Package treasury manages the platform fee ledger: a per-asset accumulator
// of fees collected but not yet withdrawn by the owner.
package treasury

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/R3E-Network/escrow_layer/internal/app/access"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/asset"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/event"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/project"
	"github.com/R3E-Network/escrow_layer/internal/app/gateway"
	"github.com/R3E-Network/escrow_layer/internal/app/metrics"
	"github.com/R3E-Network/escrow_layer/internal/app/storage"
	"github.com/R3E-Network/escrow_layer/pkg/logger"
)

// ErrFeeOverflow is returned when crediting a fee would overflow the
// per-asset accumulator. The enclosing operation must fail rather than
// wrap.
var ErrFeeOverflow = fmt.Errorf("fee balance overflow")

// Service owns the fee ledger. Balances only grow through CreditFee and
// reset to zero through Withdraw.
type Service struct {
	mu      sync.Mutex
	fees    storage.FeeStore
	events  storage.EventStore
	gateway gateway.TransferGateway
	checker *access.Checker
	log     *logger.Logger
}

// New constructs a treasury service.
func New(fees storage.FeeStore, events storage.EventStore, gw gateway.TransferGateway, checker *access.Checker, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("treasury")
	}
	return &Service{
		fees:    fees,
		events:  events,
		gateway: gw,
		checker: checker,
		log:     log,
	}
}

// CreditFee adds a collected fee to the asset's balance. A credit that
// would overflow fails with ErrFeeOverflow and leaves the balance
// untouched.
func (s *Service) CreditFee(ctx context.Context, kind asset.Kind, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("fee amount must not be negative")
	}
	if amount == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, err := s.fees.FeeBalance(ctx, kind)
	if err != nil {
		return err
	}
	if balance > math.MaxInt64-amount {
		return ErrFeeOverflow
	}
	if err := s.fees.SetFeeBalance(ctx, kind, balance+amount); err != nil {
		return err
	}
	metrics.SetFeeBalance(kind.String(), balance+amount)
	return nil
}

// Debit compensates a previous credit when the enclosing operation fails
// after the fee was taken. It never drives the balance below zero.
func (s *Service) Debit(ctx context.Context, kind asset.Kind, amount int64) error {
	if amount <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, err := s.fees.FeeBalance(ctx, kind)
	if err != nil {
		return err
	}
	balance -= amount
	if balance < 0 {
		balance = 0
	}
	if err := s.fees.SetFeeBalance(ctx, kind, balance); err != nil {
		return err
	}
	metrics.SetFeeBalance(kind.String(), balance)
	return nil
}

// Withdraw moves the full accumulated balance for an asset to the owner.
// The balance is zeroed before the transfer is issued so a reentrant
// withdrawal drains to empty instead of double-paying; a failed transfer
// restores the balance. Withdrawing an empty balance succeeds and moves
// nothing.
func (s *Service) Withdraw(ctx context.Context, caller string, kind asset.Kind) (int64, error) {
	if !s.checker.IsOwner(caller) {
		return 0, project.ErrNotOwner
	}
	if err := kind.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, err := s.fees.FeeBalance(ctx, kind)
	if err != nil {
		return 0, err
	}
	if balance == 0 {
		return 0, nil
	}

	// Zero first, pay second.
	if err := s.fees.SetFeeBalance(ctx, kind, 0); err != nil {
		return 0, err
	}
	if err := s.gateway.Transfer(ctx, kind, s.checker.Owner(), balance); err != nil {
		if restoreErr := s.fees.SetFeeBalance(ctx, kind, balance); restoreErr != nil {
			s.log.WithError(restoreErr).Error("restore fee balance after failed withdrawal")
		}
		metrics.RecordTransferFailure("withdraw")
		return 0, fmt.Errorf("%w: %v", project.ErrTransferFailed, err)
	}

	metrics.SetFeeBalance(kind.String(), 0)
	metrics.RecordWithdrawal(kind.String(), balance)

	if _, err := s.events.AppendEvent(ctx, event.Event{
		Type:   event.TypeTreasuryWithdrawal,
		Asset:  kind,
		Amount: balance,
	}); err != nil {
		s.log.WithError(err).Warn("append withdrawal event")
	}

	s.log.WithField("asset", kind.String()).
		WithField("amount", balance).
		Info("platform fees withdrawn")
	return balance, nil
}

// Balance returns the undistributed fee balance for one asset kind.
func (s *Service) Balance(ctx context.Context, kind asset.Kind) (int64, error) {
	return s.fees.FeeBalance(ctx, kind)
}

// Balances returns all fee balances keyed by asset kind.
func (s *Service) Balances(ctx context.Context) (map[string]int64, error) {
	return s.fees.ListFeeBalances(ctx)
}
