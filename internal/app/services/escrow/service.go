// Package escrow implements the milestone escrow lifecycle: project
// creation, funding, milestone confirmation with fund release, cancellation
// with prorated refund.
package escrow

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/R3E-Network/escrow_layer/internal/app/access"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/asset"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/event"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/project"
	"github.com/R3E-Network/escrow_layer/internal/app/gateway"
	"github.com/R3E-Network/escrow_layer/internal/app/metrics"
	"github.com/R3E-Network/escrow_layer/internal/app/services/treasury"
	"github.com/R3E-Network/escrow_layer/internal/app/storage"
	"github.com/R3E-Network/escrow_layer/pkg/logger"
)

// Service is the escrow lifecycle manager. It is the sole mutator of
// project state and the only component that drives the transfer gateway
// for escrowed funds.
//
// All lifecycle operations are serialized under one mutex: an operation
// completes entirely, including its gateway call, before the next begins.
// Within an operation the order is validate, mutate, then call out, so any
// reentrant call observes already-advanced state and cannot replay a
// transition; a failed gateway call rolls the mutation back.
type Service struct {
	mu sync.Mutex

	projects storage.ProjectStore
	events   storage.EventStore
	treasury *treasury.Service
	gateway  gateway.TransferGateway
	checker  *access.Checker
	vault    string // escrow account holding funds in custody
	log      *logger.Logger
}

// New constructs the lifecycle manager. vault is the address escrowed
// funds are pulled into and paid out of.
func New(projects storage.ProjectStore, events storage.EventStore, treasurySvc *treasury.Service, gw gateway.TransferGateway, checker *access.Checker, vault string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("escrow")
	}
	return &Service{
		projects: projects,
		events:   events,
		treasury: treasurySvc,
		gateway:  gw,
		checker:  checker,
		vault:    vault,
		log:      log,
	}
}

// validateTerms checks the creation parameters shared by both entry points
// and returns the platform fee for the budget.
func validateTerms(budget int64, milestones []int64, feeBasisPoints int64, kind asset.Kind) (int64, error) {
	if err := kind.Validate(); err != nil {
		return 0, err
	}
	if budget <= 0 {
		return 0, fmt.Errorf("budget must be positive")
	}
	if feeBasisPoints < project.MinFeeBasisPoints {
		return 0, project.ErrFeeTooLow
	}
	// The fee product must not wrap: a wrapped product of zero would wave
	// a feeless project through validation.
	if budget > math.MaxInt64/feeBasisPoints {
		return 0, project.ErrBudgetTooLarge
	}
	if len(milestones) == 0 {
		return 0, project.ErrNoMilestones
	}

	fee := project.Fee(budget, feeBasisPoints)
	var sum int64
	for _, amount := range milestones {
		if amount <= 0 {
			return 0, fmt.Errorf("milestone amounts must be positive")
		}
		if amount > math.MaxInt64-sum {
			return 0, project.ErrMilestoneSumMismatch
		}
		sum += amount
	}
	if sum != budget-fee {
		return 0, project.ErrMilestoneSumMismatch
	}
	return fee, nil
}

// CreateProject opens a client-initiated project with immediate
// settlement: the full budget is collected in the same operation, the fee
// portion accrues to the treasury and the project starts funded. For
// native-currency projects the caller must supply exactly the budget; for
// token projects the budget is pulled from the caller through the gateway.
// A declined pull leaves no record and no fee.
func (s *Service) CreateProject(ctx context.Context, caller, executor string, budget int64, milestones []int64, feeBasisPoints int64, kind asset.Kind, supplied int64) (p project.Project, err error) {
	defer s.observe("create", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if caller == "" || executor == "" {
		return project.Project{}, fmt.Errorf("client and executor addresses are required")
	}
	fee, err := validateTerms(budget, milestones, feeBasisPoints, kind)
	if err != nil {
		return project.Project{}, err
	}

	if err := s.settle(ctx, "create", kind, caller, budget, supplied); err != nil {
		return project.Project{}, err
	}
	if err := s.treasury.CreditFee(ctx, kind, fee); err != nil {
		s.refundSettlement(ctx, kind, caller, budget)
		return project.Project{}, err
	}

	p, err = s.projects.CreateProject(ctx, project.Project{
		Client:         caller,
		Executor:       executor,
		Asset:          kind,
		Budget:         budget,
		EscrowTotal:    budget - fee,
		FeeBasisPoints: feeBasisPoints,
		Milestones:     milestones,
		Funded:         true,
		State:          project.StateActive,
	})
	if err != nil {
		if debitErr := s.treasury.Debit(ctx, kind, fee); debitErr != nil {
			s.log.WithError(debitErr).Error("debit fee after failed project create")
		}
		s.refundSettlement(ctx, kind, caller, budget)
		return project.Project{}, err
	}

	s.emit(ctx, event.Event{
		Type:      event.TypeProjectCreated,
		ProjectID: p.ID,
		Client:    p.Client,
		Executor:  p.Executor,
		Asset:     p.Asset,
		Amount:    p.Budget,
	})
	s.log.WithField("project_id", p.ID).
		WithField("client", p.Client).
		WithField("executor", p.Executor).
		WithField("budget", p.Budget).
		Info("project created and funded")
	return p, nil
}

// InitiateProject opens an executor-initiated project. No value moves:
// settlement and the fee charge are deferred until the designated client
// calls FundProject. The fee rate is still fixed now so the later charge
// is reproducible.
func (s *Service) InitiateProject(ctx context.Context, caller, client string, budget int64, milestones []int64, feeBasisPoints int64, kind asset.Kind) (p project.Project, err error) {
	defer s.observe("initiate", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if caller == "" || client == "" {
		return project.Project{}, fmt.Errorf("client and executor addresses are required")
	}
	fee, err := validateTerms(budget, milestones, feeBasisPoints, kind)
	if err != nil {
		return project.Project{}, err
	}

	p, err = s.projects.CreateProject(ctx, project.Project{
		Client:         client,
		Executor:       caller,
		Asset:          kind,
		Budget:         budget,
		EscrowTotal:    budget - fee,
		FeeBasisPoints: feeBasisPoints,
		Milestones:     milestones,
		Funded:         false,
		State:          project.StateActive,
	})
	if err != nil {
		return project.Project{}, err
	}

	s.emit(ctx, event.Event{
		Type:      event.TypeProjectCreated,
		ProjectID: p.ID,
		Client:    p.Client,
		Executor:  p.Executor,
		Asset:     p.Asset,
		Amount:    p.Budget,
	})
	s.log.WithField("project_id", p.ID).
		WithField("executor", p.Executor).
		Info("project initiated, funding deferred")
	return p, nil
}

// FundProject settles an executor-initiated project. Only the designated
// client may fund, exactly once; the fee is recomputed from the rate fixed
// at creation. A failed transfer rolls the fee credit and the funded flag
// back.
func (s *Service) FundProject(ctx context.Context, caller string, id int64, supplied int64) (p project.Project, err error) {
	defer s.observe("fund", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err = s.projects.GetProject(ctx, id)
	if err != nil {
		return project.Project{}, err
	}
	if !s.checker.IsProjectClient(caller, p) {
		return project.Project{}, project.ErrNotClient
	}
	if p.Funded {
		return project.Project{}, project.ErrAlreadyFunded
	}
	if err := s.checkActive(p); err != nil {
		return project.Project{}, err
	}

	fee := project.Fee(p.Budget, p.FeeBasisPoints)

	if err := s.settle(ctx, "fund", p.Asset, caller, p.Budget, supplied); err != nil {
		return project.Project{}, err
	}
	if err := s.treasury.CreditFee(ctx, p.Asset, fee); err != nil {
		s.refundSettlement(ctx, p.Asset, caller, p.Budget)
		return project.Project{}, err
	}

	p.Funded = true
	p, err = s.projects.UpdateProject(ctx, p)
	if err != nil {
		if debitErr := s.treasury.Debit(ctx, p.Asset, fee); debitErr != nil {
			s.log.WithError(debitErr).Error("debit fee after failed fund")
		}
		s.refundSettlement(ctx, p.Asset, caller, p.Budget)
		return project.Project{}, err
	}

	s.emit(ctx, event.Event{
		Type:      event.TypeProjectFunded,
		ProjectID: p.ID,
		Client:    p.Client,
		Executor:  p.Executor,
		Asset:     p.Asset,
		Amount:    p.Budget,
	})
	s.log.WithField("project_id", p.ID).
		WithField("budget", p.Budget).
		WithField("fee", fee).
		Info("project funded")
	return p, nil
}

// ConfirmMilestone releases the next milestone payout to the executor.
// The milestone index is advanced and persisted before the transfer is
// issued; a failed transfer restores the previous record so the operation
// is all-or-nothing.
func (s *Service) ConfirmMilestone(ctx context.Context, caller string, id int64) (p project.Project, err error) {
	defer s.observe("confirm", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err = s.projects.GetProject(ctx, id)
	if err != nil {
		return project.Project{}, err
	}
	if !s.checker.IsProjectClient(caller, p) {
		return project.Project{}, project.ErrNotClient
	}
	if !p.Funded {
		return project.Project{}, project.ErrNotFunded
	}
	if err := s.checkActive(p); err != nil {
		return project.Project{}, err
	}
	if p.NextMilestone >= len(p.Milestones) {
		return project.Project{}, project.ErrAllMilestonesConfirmed
	}

	snapshot := p
	amount := p.Milestones[p.NextMilestone]

	// Advance before paying out.
	p.NextMilestone++
	if p.NextMilestone == len(p.Milestones) {
		p.State = project.StateCompleted
	}
	p, err = s.projects.UpdateProject(ctx, p)
	if err != nil {
		return project.Project{}, err
	}

	if err := s.gateway.Transfer(ctx, p.Asset, p.Executor, amount); err != nil {
		s.rollback(ctx, snapshot)
		metrics.RecordTransferFailure("confirm")
		return project.Project{}, fmt.Errorf("%w: %v", project.ErrTransferFailed, err)
	}

	s.emit(ctx, event.Event{
		Type:      event.TypeMilestoneConfirmed,
		ProjectID: p.ID,
		Client:    p.Client,
		Executor:  p.Executor,
		Asset:     p.Asset,
		Amount:    amount,
		Milestone: p.NextMilestone,
	})
	s.log.WithField("project_id", p.ID).
		WithField("milestone", p.NextMilestone).
		WithField("amount", amount).
		WithField("completed", p.State == project.StateCompleted).
		Info("milestone confirmed")
	return p, nil
}

// CancelProject terminates an active project and refunds the unreleased
// escrow balance to the client. Either party may cancel. The cancelled
// state is persisted before the refund transfer; a failed transfer
// restores the previous record. Cancelling a never-funded project is a
// valid terminal transition with a zero refund and no gateway call.
func (s *Service) CancelProject(ctx context.Context, caller string, id int64) (p project.Project, err error) {
	defer s.observe("cancel", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err = s.projects.GetProject(ctx, id)
	if err != nil {
		return project.Project{}, err
	}
	if !s.checker.IsProjectParty(caller, p) {
		return project.Project{}, project.ErrNotAuthorized
	}
	if err := s.checkActive(p); err != nil {
		return project.Project{}, err
	}

	snapshot := p
	refund := int64(0)
	if p.Funded {
		refund = p.Remaining()
	}

	p.State = project.StateCancelled
	p, err = s.projects.UpdateProject(ctx, p)
	if err != nil {
		return project.Project{}, err
	}

	if refund > 0 {
		if err := s.gateway.Transfer(ctx, p.Asset, p.Client, refund); err != nil {
			s.rollback(ctx, snapshot)
			metrics.RecordTransferFailure("cancel")
			return project.Project{}, fmt.Errorf("%w: %v", project.ErrTransferFailed, err)
		}
	}

	s.emit(ctx, event.Event{
		Type:      event.TypeProjectCancelled,
		ProjectID: p.ID,
		Client:    p.Client,
		Executor:  p.Executor,
		Asset:     p.Asset,
		Amount:    refund,
	})
	s.log.WithField("project_id", p.ID).
		WithField("refund", refund).
		Info("project cancelled")
	return p, nil
}

// GetProject retrieves a single project by identifier.
func (s *Service) GetProject(ctx context.Context, id int64) (project.Project, error) {
	return s.projects.GetProject(ctx, id)
}

// ListProjects returns all projects, or only those a party participates in
// when address is non-empty.
func (s *Service) ListProjects(ctx context.Context, address string) ([]project.Project, error) {
	if address == "" {
		return s.projects.ListProjects(ctx)
	}
	return s.projects.ListProjectsByParty(ctx, address)
}

// Milestones returns the immutable milestone schedule of a project.
func (s *Service) Milestones(ctx context.Context, id int64) ([]int64, error) {
	p, err := s.projects.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Milestones, nil
}

// settle collects the budget from the payer: exact supplied value for the
// native currency, a gateway pull into the vault for tokens.
func (s *Service) settle(ctx context.Context, operation string, kind asset.Kind, payer string, budget, supplied int64) error {
	if kind.IsNative() {
		if supplied != budget {
			return project.ErrIncorrectValueSent
		}
		return nil
	}
	if err := s.gateway.TransferFrom(ctx, kind, payer, s.vault, budget); err != nil {
		metrics.RecordTransferFailure(operation)
		return fmt.Errorf("%w: %v", project.ErrTransferFailed, err)
	}
	return nil
}

// refundSettlement returns a pulled token budget to the payer after the
// operation failed past settlement, so no value is stranded in the vault
// without a record. Native settlement moves nothing through the gateway,
// so there is nothing to reverse.
func (s *Service) refundSettlement(ctx context.Context, kind asset.Kind, payer string, budget int64) {
	if kind.IsNative() {
		return
	}
	if err := s.gateway.Transfer(ctx, kind, payer, budget); err != nil {
		s.log.WithError(err).
			WithField("payer", payer).
			WithField("amount", budget).
			Error("return settled budget after failed operation")
	}
}

func (s *Service) checkActive(p project.Project) error {
	switch p.State {
	case project.StateCancelled:
		return project.ErrAlreadyCancelled
	case project.StateCompleted:
		return project.ErrAlreadyCompleted
	}
	return nil
}

// rollback restores a pre-operation record after a failed gateway call.
func (s *Service) rollback(ctx context.Context, snapshot project.Project) {
	if _, err := s.projects.UpdateProject(ctx, snapshot); err != nil {
		s.log.WithError(err).
			WithField("project_id", snapshot.ID).
			Error("restore project after failed transfer")
	}
}

func (s *Service) emit(ctx context.Context, ev event.Event) {
	if _, err := s.events.AppendEvent(ctx, ev); err != nil {
		s.log.WithError(err).WithField("type", ev.Type).Warn("append event")
	}
}

func (s *Service) observe(operation string, start time.Time, err *error) {
	metrics.RecordOperation(operation, *err, time.Since(start))
}
