package fanout_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	fame "github.com/fame-ai/orchestrator"
	"github.com/fame-ai/orchestrator/fanout"
)

func TestRunCollectsAllResults(t *testing.T) {
	engine := fanout.New(nil, 0)

	tasks := []fanout.Task{
		{HandlerID: "a", Invoke: func(ctx context.Context) fame.HandlerResult {
			return fame.HandlerResult{OK: true, Text: "a result"}
		}},
		{HandlerID: "b", Invoke: func(ctx context.Context) fame.HandlerResult {
			return fame.HandlerResult{OK: true, Text: "b result"}
		}},
	}

	results := engine.Run(context.Background(), tasks)

	assert.Len(t, results, 2)
	assert.Equal(t, "a", results[0].HandlerID)
	assert.Equal(t, "b", results[1].HandlerID)
}

func TestRunIsolatesPanickingInvoker(t *testing.T) {
	engine := fanout.New(nil, 0)

	tasks := []fanout.Task{
		{HandlerID: "ok", Invoke: func(ctx context.Context) fame.HandlerResult {
			return fame.HandlerResult{OK: true}
		}},
		{HandlerID: "panics", Invoke: func(ctx context.Context) fame.HandlerResult {
			panic("boom")
		}},
	}

	results := engine.Run(context.Background(), tasks)

	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.Equal(t, fame.ErrorKindException, results[1].ErrorKind)
}

func TestRunRecordsTimeoutOnDeadline(t *testing.T) {
	engine := fanout.New(nil, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	tasks := []fanout.Task{
		{HandlerID: "slow", Invoke: func(ctx context.Context) fame.HandlerResult {
			select {
			case <-time.After(200 * time.Millisecond):
				return fame.HandlerResult{OK: true}
			case <-ctx.Done():
				return fame.HandlerResult{OK: false, ErrorKind: fame.ErrorKindTimeout}
			}
		}},
	}

	results := engine.Run(ctx, tasks)

	assert.False(t, results[0].OK)
	assert.Equal(t, fame.ErrorKindTimeout, results[0].ErrorKind)
}

func TestRunDedupedSharesResultWithinWindow(t *testing.T) {
	engine := fanout.New(nil, 50*time.Millisecond)

	calls := 0
	tasks := []fanout.Task{
		{HandlerID: "search", Invoke: func(ctx context.Context) fame.HandlerResult {
			calls++
			return fame.HandlerResult{OK: true, Text: "result"}
		}},
	}

	var r1, r2 []fame.HandlerResult
	done := make(chan struct{})
	go func() {
		r1 = engine.RunDeduped(context.Background(), "same query", tasks)
		close(done)
	}()
	<-done
	r2 = engine.RunDeduped(context.Background(), "same query", tasks)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, calls)
}

func TestRunDedupedSharesInFlightCall(t *testing.T) {
	engine := fanout.New(nil, 50*time.Millisecond)

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	tasks := []fanout.Task{
		{HandlerID: "search", Invoke: func(ctx context.Context) fame.HandlerResult {
			atomic.AddInt32(&calls, 1)
			close(started)
			<-release
			return fame.HandlerResult{OK: true, Text: "result"}
		}},
	}

	var r1, r2 []fame.HandlerResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r1 = engine.RunDeduped(context.Background(), "same query", tasks)
	}()
	go func() {
		defer wg.Done()
		<-started
		r2 = engine.RunDeduped(context.Background(), "same query", tasks)
	}()

	<-started
	close(release)
	wg.Wait()

	assert.Equal(t, r1, r2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDedupAndRankCollapsesCanonicalURLs(t *testing.T) {
	results := []fanout.SearchResult{
		{Provider: "bing", URL: "https://Example.com/a/"},
		{Provider: "serpapi", URL: "https://example.com/a"},
		{Provider: "google_cse", URL: "https://example.com/a?utm_source=x"},
	}

	deduped := fanout.DedupAndRank(results, nil)

	assert.Len(t, deduped, 1)
	assert.Equal(t, "serpapi", deduped[0].Provider)
}

func TestDedupAndRankOrdersByProviderPriority(t *testing.T) {
	results := []fanout.SearchResult{
		{Provider: "news", URL: "https://a.example.com/x"},
		{Provider: "bing", URL: "https://b.example.com/y"},
		{Provider: "serpapi", URL: "https://c.example.com/z"},
	}

	deduped := fanout.DedupAndRank(results, nil)

	assert.Equal(t, "serpapi", deduped[0].Provider)
	assert.Equal(t, "bing", deduped[1].Provider)
	assert.Equal(t, "news", deduped[2].Provider)
}
