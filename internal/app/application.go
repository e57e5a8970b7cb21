// Package app wires the escrow layer services together.
package app

import (
	"context"

	"github.com/R3E-Network/escrow_layer/internal/app/access"
	"github.com/R3E-Network/escrow_layer/internal/app/gateway"
	escrowsvc "github.com/R3E-Network/escrow_layer/internal/app/services/escrow"
	treasurysvc "github.com/R3E-Network/escrow_layer/internal/app/services/treasury"
	"github.com/R3E-Network/escrow_layer/internal/app/storage"
	"github.com/R3E-Network/escrow_layer/internal/app/storage/memory"
	"github.com/R3E-Network/escrow_layer/internal/app/system"
	"github.com/R3E-Network/escrow_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to a
// shared in-memory implementation.
type Stores struct {
	Projects storage.ProjectStore
	Fees     storage.FeeStore
	Events   storage.EventStore
}

// Config carries the identities the application is anchored to.
type Config struct {
	// OwnerAddress is the only identity permitted to withdraw fees.
	OwnerAddress string
	// VaultAddress is the escrow account funds are held in.
	VaultAddress string
}

// Application ties the escrow services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Escrow   *escrowsvc.Service
	Treasury *treasurysvc.Service
	Events   storage.EventStore
	Access   *access.Checker
}

// New builds a fully initialised application. A nil gateway defaults to
// the no-op gateway; empty identity addresses fall back to development
// defaults with a warning.
func New(cfg Config, stores Stores, gw gateway.TransferGateway, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Projects == nil {
		stores.Projects = mem
	}
	if stores.Fees == nil {
		stores.Fees = mem
	}
	if stores.Events == nil {
		stores.Events = mem
	}
	if gw == nil {
		log.Warn("no transfer gateway configured; transfers are not enforced")
		gw = gateway.Nop{}
	}
	if cfg.OwnerAddress == "" {
		log.Warn("owner address not configured; using development default")
		cfg.OwnerAddress = "owner-dev"
	}
	if cfg.VaultAddress == "" {
		cfg.VaultAddress = "escrow-vault-dev"
	}

	checker := access.New(cfg.OwnerAddress)
	treasuryService := treasurysvc.New(stores.Fees, stores.Events, gw, checker, log.WithField("component", "treasury"))
	escrowService := escrowsvc.New(stores.Projects, stores.Events, treasuryService, gw, checker, cfg.VaultAddress, log.WithField("component", "escrow"))

	manager := system.NewManager()
	manager.Register(treasurysvc.NewBalanceExporter(treasuryService, log.WithField("component", "treasury-exporter")))

	return &Application{
		manager:  manager,
		log:      log,
		Escrow:   escrowService,
		Treasury: treasuryService,
		Events:   stores.Events,
		Access:   checker,
	}, nil
}

// Start starts background components.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops background components in reverse start order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
