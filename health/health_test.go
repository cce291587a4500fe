package health_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/fame-ai/orchestrator/health"
)

type fakeResolver struct {
	handlers map[string][]string
}

func (f *fakeResolver) FindByCapability(tag string) []string {
	return f.handlers[tag]
}

func TestRecordInvocationUpdatesRollingStats(t *testing.T) {
	m := health.New(prometheus.NewRegistry(), health.Config{})

	m.RecordInvocation("finance_handler", true, "", 50)
	m.RecordInvocation("finance_handler", true, "", 60)
	m.RecordInvocation("finance_handler", false, "timeout", 500)

	snap, ok := m.HandlerSnapshot("finance_handler")
	assert.True(t, ok)
	assert.Equal(t, int64(3), snap.Invocations)
	assert.Equal(t, int64(2), snap.OK)
	assert.InDelta(t, 0.667, snap.OKRate, 0.01)
	assert.Equal(t, int64(1), snap.ErrorsByKind["timeout"])
}

func TestHandlerSnapshotPercentiles(t *testing.T) {
	m := health.New(prometheus.NewRegistry(), health.Config{})

	for i := 1; i <= 100; i++ {
		m.RecordInvocation("h", true, "", int64(i))
	}

	snap, ok := m.HandlerSnapshot("h")
	assert.True(t, ok)
	assert.InDelta(t, 50, snap.P50Ms, 2)
	assert.InDelta(t, 95, snap.P95Ms, 2)
	assert.InDelta(t, 99, snap.P99Ms, 2)
}

func TestUnknownHandlerSnapshotMissing(t *testing.T) {
	m := health.New(prometheus.NewRegistry(), health.Config{})

	_, ok := m.HandlerSnapshot("never-seen")
	assert.False(t, ok)
}

func TestHealthyAlwaysTrue(t *testing.T) {
	m := health.New(prometheus.NewRegistry(), health.Config{
		RegistryLoaded: func() bool { return false },
	})

	assert.True(t, m.Healthy())
}

func TestReadyFalseWhenRegistryNotLoaded(t *testing.T) {
	m := health.New(prometheus.NewRegistry(), health.Config{
		RegistryLoaded: func() bool { return false },
	})

	assert.False(t, m.Ready())
}

func TestReadyFalseWhenCoreCapabilityHasNoHealthyHandler(t *testing.T) {
	resolver := &fakeResolver{handlers: map[string][]string{"finance": {"finance_handler"}}}
	m := health.New(prometheus.NewRegistry(), health.Config{
		CoreCapabilities: []string{"finance"},
		RegistryLoaded:   func() bool { return true },
		Resolver:         resolver,
	})

	for i := 0; i < 10; i++ {
		m.RecordInvocation("finance_handler", false, "timeout", 100)
	}

	assert.False(t, m.Ready())
}

func TestReadyTrueWhenCoreCapabilityHealthy(t *testing.T) {
	resolver := &fakeResolver{handlers: map[string][]string{"finance": {"finance_handler"}}}
	m := health.New(prometheus.NewRegistry(), health.Config{
		CoreCapabilities: []string{"finance"},
		RegistryLoaded:   func() bool { return true },
		Resolver:         resolver,
	})

	for i := 0; i < 10; i++ {
		m.RecordInvocation("finance_handler", true, "", 50)
	}

	assert.True(t, m.Ready())
}

func TestProcessSnapshotReportsActiveRequests(t *testing.T) {
	m := health.New(prometheus.NewRegistry(), health.Config{
		ActiveRequests: func() int64 { return 7 },
		SessionCount:   func() int { return 3 },
	})

	snap := m.Process()
	assert.Equal(t, int64(7), snap.ActiveRequests)
	assert.Equal(t, 3, snap.SessionCount)
}
