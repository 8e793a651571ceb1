package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Infantselva015/eci-payment-service/internal"
	"github.com/Infantselva015/eci-payment-service/internal/core/events"
	"github.com/Infantselva015/eci-payment-service/internal/gateway"
	"github.com/Infantselva015/eci-payment-service/internal/idempotency"
	idempotencypg "github.com/Infantselva015/eci-payment-service/internal/idempotency/postgres"
	"github.com/Infantselva015/eci-payment-service/internal/ledger"
	ledgerpg "github.com/Infantselva015/eci-payment-service/internal/ledger/postgres"
	"github.com/Infantselva015/eci-payment-service/internal/metrics"
	"github.com/Infantselva015/eci-payment-service/internal/notification"
	"github.com/Infantselva015/eci-payment-service/internal/payment"
	paymentpg "github.com/Infantselva015/eci-payment-service/internal/payment/postgres"
	"github.com/Infantselva015/eci-payment-service/internal/transport/rest"
	"github.com/Infantselva015/eci-payment-service/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle payment API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config     *internal.Config
	DB         *sqlx.DB
	Router     *chi.Mux
	Handler    *payment.Handler
	Collector  *metrics.Collector
	Dispatcher *notification.Dispatcher
	Guard      *idempotency.Guard
	Logger     *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Handler, deps.Collector, deps.Logger)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runIdempotencySweep(sweepCtx, deps.Guard, deps.Config.Idempotency.SweepInterval, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		stopSweep()
		deps.Dispatcher.Shutdown()
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.InitWithOptions(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	eventBus := events.NewEventBus(lg)

	collector := metrics.NewCollector()
	if config.Observability.Metrics.Enabled {
		collector.Register(eventBus)
	}

	ledgerService := ledger.NewService(ledgerpg.NewLedgerRepository(gormDB), lg)
	guard := idempotency.NewGuard(idempotencypg.NewIdempotencyRepository(gormDB), config.Idempotency.TTL, lg)
	authorizer := gateway.NewSimulatedAuthorizer(config.Gateway, lg)

	stateMachine := payment.NewService(paymentpg.NewPaymentRepository(gormDB), ledgerService, authorizer, eventBus, lg)

	dispatcher := notification.NewDispatcher(notification.Config{
		MaxWorkers:     config.Notifications.MaxWorkers,
		JobQueueSize:   config.Notifications.JobQueueSize,
		AttemptTimeout: config.Notifications.AttemptTimeout,
		BaseBackoff:    config.Notifications.BaseBackoff,
		MaxBackoff:     config.Notifications.MaxBackoff,
	}, lg)

	collaborators := payment.Collaborators{
		Order:        notification.NewHTTPCollaborator("order-service", config.Notifications.OrderServiceURL, config.Notifications.AttemptTimeout, lg),
		Inventory:    notification.NewHTTPCollaborator("inventory-service", config.Notifications.InventoryServiceURL, config.Notifications.AttemptTimeout, lg),
		Notification: notification.NewHTTPCollaborator("notification-service", config.Notifications.NotificationServiceURL, config.Notifications.AttemptTimeout, lg),
	}

	orchestrator := payment.NewOrchestrator(stateMachine, guard, dispatcher, collaborators, lg)
	handler := payment.NewHandler(orchestrator)

	if !config.Observability.Metrics.Enabled {
		collector = nil
	}

	return &Dependencies{
		Config:     config,
		DB:         db,
		Router:     chi.NewRouter(),
		Handler:    handler,
		Collector:  collector,
		Dispatcher: dispatcher,
		Guard:      guard,
		Logger:     lg,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm wraps the shared connection pool for the repositories.
// TranslateError is required so unique constraint violations surface as
// gorm.ErrDuplicatedKey and can be mapped to the duplicate order error.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{
		Conn: db.DB,
	}), &gorm.Config{
		TranslateError: true,
	})
}

// runIdempotencySweep periodically purges expired idempotency keys. Expiry
// is enforced at read time; the sweep only keeps the table small.
func runIdempotencySweep(ctx context.Context, guard *idempotency.Guard, interval time.Duration, lg *slog.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := guard.SweepExpired(); err != nil {
				lg.Error("idempotency sweep run failed", "error", err)
			}
		case <-ctx.Done():
			lg.Info("idempotency sweep stopped")
			return
		}
	}
}
