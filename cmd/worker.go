package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Infantselva015/eci-payment-service/internal/idempotency"
	idempotencypg "github.com/Infantselva015/eci-payment-service/internal/idempotency/postgres"
	"github.com/Infantselva015/eci-payment-service/internal/notification"
	"github.com/Infantselva015/eci-payment-service/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start worker pools for various services",
	Long:  `Start and manage background workers: notification delivery and idempotency key sweeping.`,
}

// Notification worker command
var notificationWorkerCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Start notification worker pool",
	Long:  `Start the notification worker pool for delivering payment outcome events to collaborator services`,
	Run: func(cmd *cobra.Command, args []string) {
		startNotificationWorker()
	},
}

// Idempotency sweeper command
var sweeperWorkerCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Start idempotency key sweeper",
	Long:  `Start the background sweeper that purges expired idempotency keys`,
	Run: func(cmd *cobra.Command, args []string) {
		startSweeperWorker()
	},
}

var (
	maxWorkers   int
	jobQueueSize int
)

func startNotificationWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg := logger.LoggerWrapper()

	dispatcherConfig := notification.Config{
		MaxWorkers:     getIntFlag(maxWorkers, config.Notifications.MaxWorkers),
		JobQueueSize:   getIntFlag(jobQueueSize, config.Notifications.JobQueueSize),
		AttemptTimeout: config.Notifications.AttemptTimeout,
		BaseBackoff:    config.Notifications.BaseBackoff,
		MaxBackoff:     config.Notifications.MaxBackoff,
	}

	lg.Info("starting notification worker",
		"max_workers", dispatcherConfig.MaxWorkers,
		"job_queue_size", dispatcherConfig.JobQueueSize,
		"attempt_timeout", dispatcherConfig.AttemptTimeout)

	dispatcher := notification.NewDispatcher(dispatcherConfig, lg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	lg.Info("notification worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	lg.Info("received signal, shutting down notification worker", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		dispatcher.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		lg.Info("notification worker pool shutdown complete")
	case <-ctx.Done():
		lg.Warn("shutdown timeout reached, forcing exit")
	}
}

func startSweeperWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := initGorm(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init gorm: %v\n", err)
		os.Exit(1)
	}

	guard := idempotency.NewGuard(idempotencypg.NewIdempotencyRepository(gormDB), config.Idempotency.TTL, lg)

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	lg.Info("idempotency sweeper is running. Press Ctrl+C to stop.",
		"interval", config.Idempotency.SweepInterval)

	go runIdempotencySweep(ctx, guard, config.Idempotency.SweepInterval, lg)

	sig := <-sigChan
	lg.Info("received signal, shutting down sweeper", "signal", sig)
	cancel()
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	notificationWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	notificationWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")

	workerCmd.AddCommand(notificationWorkerCmd)
	workerCmd.AddCommand(sweeperWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
