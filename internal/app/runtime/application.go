// Package runtime assembles the escrow daemon from configuration.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	app "github.com/R3E-Network/escrow_layer/internal/app"
	"github.com/R3E-Network/escrow_layer/internal/app/gateway"
	"github.com/R3E-Network/escrow_layer/internal/app/httpapi"
	"github.com/R3E-Network/escrow_layer/internal/app/metrics"
	"github.com/R3E-Network/escrow_layer/internal/app/storage/postgres"
	"github.com/R3E-Network/escrow_layer/internal/chain"
	"github.com/R3E-Network/escrow_layer/internal/config"
	"github.com/R3E-Network/escrow_layer/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server
// lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *http.Server
	db         *sql.DB
}

// NewApplication constructs the daemon from the configuration at cfgPath.
func NewApplication(cfgPath string) (*Application, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	stores, db, err := buildStores(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	gw, err := buildGateway(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure gateway: %w", err)
	}

	application, err := app.New(app.Config{
		OwnerAddress: cfg.Escrow.OwnerAddress,
		VaultAddress: cfg.Escrow.VaultAddress,
	}, stores, gw, log)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	api := httpapi.NewHandler(application)
	switch {
	case cfg.Escrow.AuthSecret != "":
		api = httpapi.Authenticate(api, []byte(cfg.Escrow.AuthSecret), nil, log.WithField("component", "auth"))
	case cfg.Escrow.InsecureDevAuth:
		log.Warn("insecure dev auth enabled; caller identity is taken from the X-Caller-Address header")
		api = httpapi.DevCallerHeader(api)
	default:
		log.Warn("no auth secret configured; requests carry no caller identity and mutating routes will be rejected")
	}
	mux.Handle("/", api)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      metrics.InstrumentHandler(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        application,
		httpServer: httpSrv,
		db:         db,
	}, nil
}

// Run starts background services and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, background services and the
// database connection.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping application services")
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

func buildStores(cfg *config.Config) (app.Stores, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		return app.Stores{}, nil, nil
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return app.Stores{}, nil, err
	}

	store := postgres.New(db)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("ensure schema: %w", err)
	}

	return app.Stores{Projects: store, Fees: store, Events: store}, db, nil
}

func buildGateway(cfg *config.Config, log *logger.Logger) (gateway.TransferGateway, error) {
	if cfg.Chain.RPCURL == "" {
		log.Warn("chain RPC not configured; using no-op transfer gateway")
		return gateway.Nop{}, nil
	}
	client, err := chain.NewClient(chain.Config{
		RPCURL:    cfg.Chain.RPCURL,
		NetworkID: cfg.Chain.NetworkID,
	})
	if err != nil {
		return nil, err
	}
	gw, err := chain.NewGateway(client, cfg.Escrow.VaultAddress)
	if err != nil {
		return nil, err
	}
	return gw, nil
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
