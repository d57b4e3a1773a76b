package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/async"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/core"
)

// ErrClosed is returned by Enqueue after Shutdown.
var ErrClosed = errors.New("batch queue is shutting down")

// Batcher runs one batch; *core.Processor implements it.
type Batcher interface {
	ProcessBatch(ctx context.Context) (core.BatchResult, error)
}

// BatchQueue runs ProcessBatch triggers on a fixed worker pool.
type BatchQueue struct {
	proc     Batcher
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	onResult func(async.Trigger, core.BatchResult, error)

	ch   chan async.Trigger
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool

	runs atomic.Int64
}

type Option func(*BatchQueue)

func WithWorkers(n int) Option {
	return func(q *BatchQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *BatchQueue) {
		if n > 0 {
			q.ch = make(chan async.Trigger, n)
		}
	}
}
func WithRunTimeout(d time.Duration) Option {
	return func(q *BatchQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithResultHook is called by the worker after every run.
func WithResultHook(fn func(async.Trigger, core.BatchResult, error)) Option {
	return func(q *BatchQueue) { q.onResult = fn }
}

func NewBatchQueue(proc Batcher, logger *slog.Logger, opts ...Option) *BatchQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &BatchQueue{
		proc:    proc,
		logger:  logger,
		workers: 1,
		timeout: 15 * time.Minute,
		ch:      make(chan async.Trigger, 16),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

var _ async.Queue = (*BatchQueue)(nil)

func (q *BatchQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("batch worker started", "worker_id", workerID)

				for t := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					res, err := q.proc.ProcessBatch(ctx)
					cancel()
					q.runs.Add(1)

					if err != nil {
						q.logger.Error("batch failed", "worker_id", workerID, "reason", t.Reason, "trace_id", t.TraceID, "error", err)
					} else if res.Leased > 0 {
						q.logger.Info("batch processed", "worker_id", workerID, "reason", t.Reason,
							"leased", res.Leased, "succeeded", res.Succeeded, "failed", res.Failed)
					}
					if q.onResult != nil {
						q.onResult(t, res, err)
					}
				}

				q.logger.Info("batch worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue blocks while the queue is full, until ctx is done.
func (q *BatchQueue) Enqueue(ctx context.Context, t async.Trigger) error {
	if t.SubmittedAt.IsZero() {
		t.SubmittedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "reason", t.Reason)
		return ErrClosed
	}
	select {
	case q.ch <- t:
		q.logger.Debug("queued batch trigger", "reason", t.Reason)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "reason", t.Reason)
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue drops the trigger when the queue is full.
func (q *BatchQueue) TryEnqueue(t async.Trigger) bool {
	if t.SubmittedAt.IsZero() {
		t.SubmittedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- t:
		return true
	default:
		return false
	}
}

// Tick enqueues a "tick" trigger every interval until ctx is done. Ticks
// that find the queue full are skipped.
func (q *BatchQueue) Tick(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if !q.TryEnqueue(async.Trigger{Reason: "tick"}) {
			q.logger.Debug("tick skipped, queue busy")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Runs reports how many batches have completed.
func (q *BatchQueue) Runs() int64 { return q.runs.Load() }

func (q *BatchQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
