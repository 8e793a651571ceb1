package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

type Tier string

const (
	// TierCritical is for collaborators whose state must converge with the
	// payment outcome, e.g. the order service.
	TierCritical Tier = "critical"
	// TierBestEffort is for advisory collaborators such as inventory and
	// user notification services.
	TierBestEffort Tier = "best_effort"
)

func (t Tier) Attempts() int {
	if t == TierCritical {
		return 3
	}
	return 2
}

type Job struct {
	Collaborator Collaborator
	EventKind    EventKind
	Payload      json.RawMessage
	Tier         Tier
	PaymentID    int64
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, deliverFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker delivering notification", "worker_id", w.ID, "collaborator", job.Collaborator.Name(), "payment_id", job.PaymentID)
				deliverFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// Dispatcher delivers outcome notifications through a bounded worker pool.
// Enqueue never blocks the request path and delivery failures never reach
// back into the committed payment state.
type Dispatcher struct {
	attemptTimeout time.Duration
	baseBackoff    time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger

	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

type Config struct {
	MaxWorkers     int
	JobQueueSize   int
	AttemptTimeout time.Duration
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
}

func NewDispatcher(config Config, logger *slog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	attemptTimeout := config.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = 5 * time.Second
	}

	baseBackoff := config.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = time.Second
	}

	maxBackoff := config.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Second
	}

	d := &Dispatcher{
		attemptTimeout: attemptTimeout,
		baseBackoff:    baseBackoff,
		maxBackoff:     maxBackoff,
		logger:         logger,

		maxWorkers: maxWorkers,
		jobQueue:   make(chan Job, jobQueueSize),
		workerPool: make(chan chan Job, maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	d.startWorkerPool()

	return d
}

func (d *Dispatcher) startWorkerPool() {
	d.once.Do(func() {
		for i := 0; i < d.maxWorkers; i++ {
			worker := NewWorker(i, d.workerPool, d.logger)
			worker.Start(d.ctx, &d.wg, d.deliver)
		}

		d.wg.Add(1)
		go d.dispatch()

		d.logger.Info("notification worker pool started",
			"max_workers", d.maxWorkers,
			"queue_size", cap(d.jobQueue))
	})
}

func (d *Dispatcher) dispatch() {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.jobQueue:
			select {
			case jobChannel := <-d.workerPool:
				select {
				case jobChannel <- job:

				case <-d.ctx.Done():
					d.logger.Info("notification dispatcher shutting down")
					return
				}
			case <-d.ctx.Done():
				d.logger.Info("notification dispatcher shutting down")
				return
			}
		case <-d.ctx.Done():
			d.logger.Info("notification dispatcher shutting down")
			return
		}
	}
}

// Enqueue hands a notification job to the pool. A full queue drops the job
// with a warning rather than stalling the caller; the payment outcome is
// already committed and must not depend on collaborator availability.
func (d *Dispatcher) Enqueue(job Job) {
	select {
	case d.jobQueue <- job:
		d.logger.Debug("notification job queued",
			"collaborator", job.Collaborator.Name(),
			"event", job.EventKind,
			"payment_id", job.PaymentID,
			"queue_length", len(d.jobQueue))
	default:
		d.logger.Warn("notification queue full, dropping job",
			"collaborator", job.Collaborator.Name(),
			"event", job.EventKind,
			"payment_id", job.PaymentID,
			"queue_capacity", cap(d.jobQueue))
	}
}

func (d *Dispatcher) Shutdown() {
	d.logger.Info("shutting down notification dispatcher")
	d.cancel()
	d.wg.Wait()
	d.logger.Info("notification dispatcher shutdown complete")
}

// deliver runs the bounded retry loop for one job. Unreachable results are
// retried with exponential backoff and jitter up to the tier's attempt
// budget; a rejection ends the sequence immediately. Exhaustion is logged
// and recovered, never surfaced to the charge path.
func (d *Dispatcher) deliver(job Job) {
	attempts := job.Tier.Attempts()

	for attempt := 1; attempt <= attempts; attempt++ {
		ctx, cancel := context.WithTimeout(d.ctx, d.attemptTimeout)
		result, err := job.Collaborator.Send(ctx, job.EventKind, job.Payload)
		cancel()

		switch result {
		case SendOk:
			d.logger.Info("notification delivered",
				"collaborator", job.Collaborator.Name(),
				"event", job.EventKind,
				"payment_id", job.PaymentID,
				"attempt", attempt)
			return
		case SendRejected:
			d.logger.Warn("notification rejected by collaborator",
				"collaborator", job.Collaborator.Name(),
				"event", job.EventKind,
				"payment_id", job.PaymentID,
				"attempt", attempt,
				"error", err)
			return
		case SendUnreachable:
			d.logger.Warn("collaborator unreachable",
				"collaborator", job.Collaborator.Name(),
				"event", job.EventKind,
				"payment_id", job.PaymentID,
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err)
		}

		if attempt == attempts {
			break
		}

		select {
		case <-time.After(d.backoffDelay(attempt)):
		case <-d.ctx.Done():
			d.logger.Info("notification delivery cancelled",
				"collaborator", job.Collaborator.Name(),
				"payment_id", job.PaymentID)
			return
		}
	}

	d.logger.Warn("notification attempts exhausted",
		"code", "COLLABORATOR_UNREACHABLE",
		"collaborator", job.Collaborator.Name(),
		"event", job.EventKind,
		"payment_id", job.PaymentID,
		"attempts", attempts)
}

// backoffDelay doubles the base delay per attempt, caps it, and adds up to
// 50% jitter so retries from concurrent jobs spread out.
func (d *Dispatcher) backoffDelay(attempt int) time.Duration {
	delay := d.baseBackoff << (attempt - 1)
	if delay > d.maxBackoff {
		delay = d.maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	delay += jitter
	if delay > d.maxBackoff {
		delay = d.maxBackoff
	}
	return delay
}
