package treasury

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/escrow_layer/internal/app/metrics"
	"github.com/R3E-Network/escrow_layer/internal/app/system"
	"github.com/R3E-Network/escrow_layer/pkg/logger"
)

// BalanceExporter periodically publishes fee balances as metrics gauges so
// dashboards track undistributed fees without polling the API.
type BalanceExporter struct {
	service  *Service
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*BalanceExporter)(nil)

// NewBalanceExporter creates an exporter over the given treasury service.
func NewBalanceExporter(service *Service, log *logger.Logger) *BalanceExporter {
	if log == nil {
		log = logger.NewDefault("treasury-exporter")
	}
	return &BalanceExporter{
		service:  service,
		interval: 30 * time.Second,
		log:      log,
	}
}

func (e *BalanceExporter) Name() string { return "treasury-exporter" }

func (e *BalanceExporter) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				e.tick(runCtx)
			}
		}
	}()

	return nil
}

func (e *BalanceExporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (e *BalanceExporter) tick(ctx context.Context) {
	balances, err := e.service.Balances(ctx)
	if err != nil {
		e.log.WithError(err).Warn("list fee balances failed")
		return
	}
	for kind, balance := range balances {
		metrics.SetFeeBalance(kind, balance)
	}
}
