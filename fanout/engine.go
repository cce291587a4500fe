// Package fanout implements bounded concurrent invocation of handler
// tasks under a shared deadline, with per-invoker panic isolation.
package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	fame "github.com/fame-ai/orchestrator"
	"github.com/fame-ai/orchestrator/logger"
)

// Invoker performs one handler call. Implementations must respect ctx's
// deadline; the engine does not kill goroutines that ignore it, it
// simply stops waiting for them.
type Invoker func(ctx context.Context) fame.HandlerResult

// Task pairs a handler id with the invoker that runs it.
type Task struct {
	HandlerID string
	Invoke    Invoker
}

// defaultMaxConcurrency bounds simultaneous invocations.
const defaultMaxConcurrency = 5

// Engine runs tasks concurrently under a shared deadline.
type Engine struct {
	maxConcurrency int
	log            logger.Logger
	singleFlight   *singleFlightGroup
}

// Option configures an Engine at construction time.
type Option func(*Engine)

func WithMaxConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// New builds an Engine. window is the single-flight dedup window for
// RunDeduped (0 disables single-flight sharing).
func New(log logger.Logger, window time.Duration, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	e := &Engine{
		maxConcurrency: defaultMaxConcurrency,
		log:            log.WithField("component", "fanout"),
		singleFlight:   newSingleFlightGroup(window),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run invokes every task concurrently, bounded by maxConcurrency,
// honoring ctx's deadline. Results are returned in task order. A task
// that panics is converted into a failed HandlerResult with
// ErrorKindException; tasks still outstanding when ctx is done are
// recorded as ErrorKindTimeout.
func (e *Engine) Run(ctx context.Context, tasks []Task) []fame.HandlerResult {
	results := make([]fame.HandlerResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	semaphore := make(chan struct{}, e.maxConcurrency)
	done := make(chan struct{})
	var wg sync.WaitGroup

	// Once the deadline passes, results is frozen and late results are discarded.
	var mu sync.Mutex
	finished := false
	set := func(idx int, r fame.HandlerResult) {
		mu.Lock()
		defer mu.Unlock()
		if !finished {
			results[idx] = r
		}
	}

	for i, task := range tasks {
		wg.Add(1)
		go func(idx int, t Task) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				set(idx, timeoutResult(t.HandlerID))
				return
			}

			set(idx, e.runOne(ctx, t))
		}(i, task)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		finished = true
		for i, r := range results {
			if r.HandlerID == "" {
				results[i] = timeoutResult(tasks[i].HandlerID)
			}
		}
		mu.Unlock()
	}

	return results
}

// runOne invokes a single task, converting a panic into a failed
// HandlerResult rather than crashing the fan-out.
func (e *Engine) runOne(ctx context.Context, t Task) (result fame.HandlerResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("handler panicked", "handler_id", t.HandlerID, "panic", fmt.Sprint(r))
			result = fame.HandlerResult{
				HandlerID: t.HandlerID,
				OK:        false,
				ErrorKind: fame.ErrorKindException,
				LatencyMs: time.Since(start).Milliseconds(),
			}
		}
	}()

	select {
	case <-ctx.Done():
		return timeoutResult(t.HandlerID)
	default:
	}

	result = t.Invoke(ctx)
	if result.HandlerID == "" {
		result.HandlerID = t.HandlerID
	}
	if result.LatencyMs == 0 {
		result.LatencyMs = time.Since(start).Milliseconds()
	}
	return result
}

func timeoutResult(handlerID string) fame.HandlerResult {
	return fame.HandlerResult{
		HandlerID: handlerID,
		OK:        false,
		ErrorKind: fame.ErrorKindTimeout,
	}
}

// RunDeduped wraps Run with the single-flight spam guard: identical
// queryKey values arriving within the configured window share one
// execution, with later callers blocking on the first's result.
func (e *Engine) RunDeduped(ctx context.Context, queryKey string, tasks []Task) []fame.HandlerResult {
	return e.singleFlight.Do(queryKey, func() []fame.HandlerResult {
		return e.Run(ctx, tasks)
	})
}
