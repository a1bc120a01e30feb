package anchor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/custody/pkg/contracts"
	"github.com/Mindburn-Labs/custody/pkg/retry"
)

// errNotConfirmed marks an attempt whose transaction did not reach finality in time.
var errNotConfirmed = errors.New("anchor not confirmed before timeout")

// Job asks the Worker to anchor one record. Ref resumes a transaction submitted earlier.
type Job struct {
	RecordID    string
	ContentHash string
	Ref         string
}

// Sink receives anchoring progress. The catalog implements it to drive record state.
type Sink interface {
	AnchorStarted(ctx context.Context, recordID string)
	AnchorSubmitted(ctx context.Context, anchor contracts.LedgerAnchor)
	AnchorConfirmed(ctx context.Context, anchor contracts.LedgerAnchor)
	AnchorFailed(ctx context.Context, recordID string, cause error)
}

// WorkerConfig bounds background anchoring.
type WorkerConfig struct {
	Workers        int
	QueueSize      int
	Policy         retry.Policy
	ConfirmTimeout time.Duration
	SubmitRate     rate.Limit // ledger submissions per second; 0 means unlimited
	SubmitBurst    int
}

// DefaultWorkerConfig is used for zero fields.
var DefaultWorkerConfig = WorkerConfig{
	Workers:        4,
	QueueSize:      1024,
	Policy:         retry.DefaultLedgerPolicy,
	ConfirmTimeout: 30 * time.Second,
	SubmitRate:     20,
	SubmitBurst:    5,
}

// Worker anchors records in the background with a fixed pool and a bounded queue.
type Worker struct {
	anchorer *Anchorer
	sink     Sink
	cfg      WorkerConfig
	limiter  *rate.Limiter
	queue    chan Job
	logger   *slog.Logger

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight atomic.Int64
}

// NewWorker creates a stopped worker.
func NewWorker(anchorer *Anchorer, sink Sink, cfg WorkerConfig, logger *slog.Logger) *Worker {
	def := DefaultWorkerConfig
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = def.Policy
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if logger == nil {
		logger = slog.Default().With("component", "anchor-worker")
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.SubmitRate > 0 {
		burst := cfg.SubmitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.SubmitRate, burst)
	}

	return &Worker{
		anchorer: anchorer,
		sink:     sink,
		cfg:      cfg,
		limiter:  limiter,
		queue:    make(chan Job, cfg.QueueSize),
		logger:   logger,
	}
}

// Start launches the pool. Calling Start twice is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true

	ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-w.queue:
					w.process(ctx, job)
					w.inflight.Add(-1)
				}
			}
		}()
	}
}

// Enqueue schedules job without blocking. It returns false when the queue is full or the worker stopped.
func (w *Worker) Enqueue(job Job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.inflight.Add(1)
	select {
	case w.queue <- job:
		return true
	default:
		w.inflight.Add(-1)
		return false
	}
}

// Pending returns the number of queued jobs not yet picked up.
func (w *Worker) Pending() int {
	return len(w.queue)
}

// Wait blocks until every enqueued job has been processed or ctx ends.
func (w *Worker) Wait(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for w.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Stop cancels in-flight jobs and waits for the pool to exit. Interrupted and
// queued records keep their current state and are picked up again on restart.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()

	for {
		select {
		case <-w.queue:
			w.inflight.Add(-1)
		default:
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	logger := w.logger.With("record_id", job.RecordID)
	w.sink.AnchorStarted(ctx, job.RecordID)

	var submitted contracts.LedgerAnchor
	if job.Ref != "" {
		submitted = contracts.LedgerAnchor{
			RecordID:       job.RecordID,
			ContentHash:    job.ContentHash,
			TransactionRef: job.Ref,
		}
	}
	attempts := 0

	err := retry.Do(ctx, w.cfg.Policy, job.RecordID, func(ctx context.Context, attempt int) error {
		attempts = attempt
		if submitted.TransactionRef == "" {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
			a, err := w.anchorer.Submit(ctx, job.RecordID, job.ContentHash)
			if err != nil {
				logger.WarnContext(ctx, "anchor submit failed", "attempt", attempt, "error", err)
				if errors.Is(err, ErrRejected) {
					return retry.Permanent(err)
				}
				return err
			}
			submitted = a
			submitted.Attempts = attempt
			w.sink.AnchorSubmitted(ctx, submitted)
		}

		ref := submitted.TransactionRef
		if w.anchorer.AwaitConfirmation(ctx, ref, w.cfg.ConfirmTimeout) {
			if w.anchorer.Verify(ctx, ref, job.ContentHash) {
				return nil
			}
			// A resumed ref may belong to other content; anchor afresh.
			logger.WarnContext(ctx, "final anchor does not match record, resubmitting", "attempt", attempt, "ref", ref)
			submitted = contracts.LedgerAnchor{}
			return fmt.Errorf("%w: %s", ErrAnchorMismatch, ref)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := w.anchorer.Inspect(ctx, ref); errors.Is(err, ErrTxNotFound) {
			logger.WarnContext(ctx, "ledger does not know the transaction, resubmitting", "attempt", attempt, "ref", ref)
			submitted = contracts.LedgerAnchor{}
			return err
		}
		logger.WarnContext(ctx, "anchor not yet final", "attempt", attempt, "ref", ref)
		return errNotConfirmed
	})

	switch {
	case err == nil:
		now := w.anchorer.clock()
		submitted.Confirmed = true
		submitted.ConfirmedAt = &now
		submitted.Attempts = attempts
		w.sink.AnchorConfirmed(ctx, submitted)
		logger.InfoContext(ctx, "record anchored", "ref", submitted.TransactionRef, "attempts", attempts)
	case ctx.Err() != nil:
		logger.InfoContext(ctx, "anchoring interrupted by shutdown")
	default:
		w.sink.AnchorFailed(ctx, job.RecordID, fmt.Errorf("after %d attempts: %w", attempts, err))
		logger.ErrorContext(ctx, "anchoring gave up", "attempts", attempts, "error", err)
	}
}
