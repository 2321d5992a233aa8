// Package writequeue decouples the audio path from persistence latency: a
// single in-process priority queue of durable-write operations, drained by
// a small worker pool with bounded concurrency and retry on transient
// failures.
package writequeue

import (
	"container/heap"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/sttrelay/internal/logger"
	"github.com/kbukum/sttrelay/internal/observability"
	"github.com/kbukum/sttrelay/internal/provider"
	"github.com/kbukum/sttrelay/internal/resilience"
)

// Priority levels used by the session gateway.
const (
	PriorityPeriodic = 1
	PriorityFinal    = 10
)

// Operation is one durable write: a closure over the actual GORM call, plus
// the metadata the queue needs for ordering, dedup, and retry.
type Operation struct {
	ID         string
	Priority   int
	CreatedAt  time.Time
	MaxRetries int
	Exec       func(ctx context.Context) error

	retries int
}

// transientSubstrings identifies retryable failures by substring match on
// the error message, mirroring the source system's classification.
var transientSubstrings = []string{
	"connection refused",
	"no such host",
	"i/o timeout",
	"deadlock",
	"context deadline exceeded",
	"broken pipe",
	"connection reset",
}

// isTransient reports whether err looks like a transient infrastructure
// failure worth retrying, as opposed to a data or logic error.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// opHeap orders by priority descending, then createdAt ascending (FIFO
// among equal priorities).
type opHeap []*Operation

func (h opHeap) Len() int { return len(h) }
func (h opHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].CreatedAt.Before(h[j].CreatedAt)
}
func (h opHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *opHeap) Push(x interface{}) { *h = append(*h, x.(*Operation)) }
func (h *opHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Config controls worker pool sizing and retry behavior.
type Config struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxRetries     int           `mapstructure:"max_retries"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 3
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
}

// Queue is a priority-ordered, bounded-concurrency durable write queue.
type Queue struct {
	cfg     Config
	log     *logger.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	heap     opHeap
	inFlight map[string]bool

	wg     sync.WaitGroup
	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Queue. Call Start to begin draining. Metrics are
// best-effort: if the meter provider isn't initialized, operations still
// run, just unobserved.
func New(cfg Config, log *logger.Logger) *Queue {
	cfg.ApplyDefaults()
	metrics, err := observability.NewMetrics(observability.Meter("writequeue"))
	if err != nil {
		metrics = nil
	}
	return &Queue{
		cfg:      cfg,
		log:      log.WithComponent("writequeue"),
		metrics:  metrics,
		inFlight: make(map[string]bool),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Enqueue adds op to the queue. If op.MaxRetries is unset, the queue's
// default is used.
func (q *Queue) Enqueue(op Operation) {
	if op.MaxRetries <= 0 {
		op.MaxRetries = q.cfg.MaxRetries
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}

	q.mu.Lock()
	heap.Push(&q.heap, &op)
	q.mu.Unlock()
}

// Name and IsAvailable, together with Send, satisfy provider.Sink so
// durable writes are described with the same shape as any other
// fire-and-forget provider.
func (q *Queue) Name() string { return "writequeue" }

func (q *Queue) IsAvailable(ctx context.Context) bool {
	select {
	case <-q.stopCh:
		return false
	default:
		return true
	}
}

// Send implements provider.Sink[Operation] over Enqueue. Enqueue never
// fails synchronously — retry and eventual drop happen inside runOp — so
// Send always returns nil.
func (q *Queue) Send(ctx context.Context, op Operation) error {
	q.Enqueue(op)
	return nil
}

var _ provider.Sink[Operation] = (*Queue)(nil)

// Start begins the dispatcher loop in a background goroutine.
func (q *Queue) Start(ctx context.Context) {
	go q.dispatch(ctx)
}

// dispatch polls the queue every PollInterval, launching a worker per
// popped op while in-flight < MaxConcurrency.
func (q *Queue) dispatch(ctx context.Context) {
	defer close(q.doneCh)

	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.drainOnce(ctx)
		}
	}
}

func (q *Queue) drainOnce(ctx context.Context) {
	for {
		op := q.popNext()
		if op == nil {
			return
		}
		q.wg.Add(1)
		go q.runOp(ctx, op)
	}
}

// popNext pops the highest-priority, oldest-eligible op not already
// in-flight, respecting MaxConcurrency. An op whose ID is already in-flight
// is set aside and re-pushed so a same-ID periodic and final write never run
// concurrently; the next eligible op behind it is popped instead. Returns
// nil if none is available.
func (q *Queue) popNext() *Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.inFlight) >= q.cfg.MaxConcurrency {
		return nil
	}

	var deferred []*Operation
	var chosen *Operation
	for q.heap.Len() > 0 {
		op := heap.Pop(&q.heap).(*Operation)
		if q.inFlight[op.ID] {
			deferred = append(deferred, op)
			continue
		}
		chosen = op
		break
	}
	for _, op := range deferred {
		heap.Push(&q.heap, op)
	}
	if chosen == nil {
		return nil
	}
	q.inFlight[chosen.ID] = true
	return chosen
}

func (q *Queue) runOp(ctx context.Context, op *Operation) {
	start := time.Now()
	if q.metrics != nil {
		q.metrics.RecordRequestStart(ctx)
	}
	defer q.wg.Done()
	defer func() {
		q.mu.Lock()
		delete(q.inFlight, op.ID)
		q.mu.Unlock()
	}()

	retryCfg := resilience.RetryConfig{
		MaxAttempts:    op.MaxRetries,
		InitialBackoff: 1 * time.Second,
		BackoffFactor:  2.0,
		MaxBackoff:     1 * time.Minute,
		RetryIf:        isTransient,
	}

	err := resilience.RetryFunc(ctx, retryCfg, func() error {
		return op.Exec(ctx)
	})

	status := "success"
	if err != nil {
		if isTransient(err) {
			status = "retry_exhausted"
			q.log.Error("write op exhausted retries, dropping", map[string]interface{}{
				"op_id": op.ID,
				"error": err.Error(),
			})
		} else {
			status = "permanent_failure"
			q.log.Error("write op failed permanently, dropping", map[string]interface{}{
				"op_id": op.ID,
				"error": err.Error(),
			})
		}
	}

	if q.metrics != nil {
		q.metrics.RecordRequestEnd(ctx, "writequeue", "upsert", status, time.Since(start))
		if status != "success" {
			q.metrics.RecordError(ctx, status, "writequeue")
		}
	}
}

// Len reports the number of operations currently queued, not counting any
// in-flight ops already popped by a worker.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Flush blocks until the queue and in-flight set are both empty, then
// signals the dispatcher to stop. Used during graceful shutdown.
func (q *Queue) Flush(ctx context.Context) {
drain:
	for {
		q.mu.Lock()
		empty := q.heap.Len() == 0 && len(q.inFlight) == 0
		q.mu.Unlock()
		if empty {
			break
		}
		select {
		case <-ctx.Done():
			break drain
		case <-time.After(q.cfg.PollInterval):
		}
	}
	q.wg.Wait()
	close(q.stopCh)
	<-q.doneCh
}
