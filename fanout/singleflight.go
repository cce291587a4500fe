package fanout

import (
	"sync"
	"time"

	fame "github.com/fame-ai/orchestrator"
)

// singleFlightGroup shares one fan-out execution across identical
// queries that arrive within window. Hand-rolled rather than
// golang.org/x/sync/singleflight: that package forgets a call the
// instant it completes, but the spam guard needs the result to stay
// shared for the full window even after the first caller returns.
type singleFlightGroup struct {
	window time.Duration

	mu    sync.Mutex
	calls map[string]*inflightCall
}

type inflightCall struct {
	done      chan struct{}
	result    []fame.HandlerResult
	completed bool
	expires   time.Time
}

func newSingleFlightGroup(window time.Duration) *singleFlightGroup {
	return &singleFlightGroup{
		window: window,
		calls:  make(map[string]*inflightCall),
	}
}

// Do runs fn for key, or waits on an existing in-flight/recent call for
// the same key. If window is zero, single-flight is disabled and fn
// always runs.
func (g *singleFlightGroup) Do(key string, fn func() []fame.HandlerResult) []fame.HandlerResult {
	if g.window <= 0 {
		return fn()
	}

	g.mu.Lock()
	if existing, ok := g.calls[key]; ok && (!existing.completed || time.Now().Before(existing.expires)) {
		g.mu.Unlock()
		<-existing.done
		return existing.result
	}

	call := &inflightCall{done: make(chan struct{})}
	g.calls[key] = call
	g.mu.Unlock()

	result := fn()

	call.result = result
	call.completed = true
	call.expires = time.Now().Add(g.window)
	close(call.done)

	g.scheduleCleanup(key, call)

	return result
}

// scheduleCleanup removes the entry once its sharing window elapses, so
// the map does not grow without bound across distinct queries.
func (g *singleFlightGroup) scheduleCleanup(key string, call *inflightCall) {
	time.AfterFunc(g.window, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.calls[key] == call {
			delete(g.calls, key)
		}
	})
}
