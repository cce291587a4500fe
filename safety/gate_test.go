package safety_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fame-ai/orchestrator/safety"
)

func TestDefaultPolicyDeniesSecurityWithoutToken(t *testing.T) {
	g := safety.New(100, nil, nil)
	allowed := g.Allow(context.Background(), "sec-bot", "security", false, "filter")
	assert.False(t, allowed)
}

func TestAdminTokenOverridesSecurityPolicy(t *testing.T) {
	g := safety.New(100, nil, nil)
	allowed := g.Allow(context.Background(), "sec-bot", "security", true, "filter")
	assert.True(t, allowed)
}

func TestDefaultPolicyAllowsWebSearch(t *testing.T) {
	g := safety.New(100, nil, nil)
	allowed := g.Allow(context.Background(), "search-bot", "web_search", false, "filter")
	assert.True(t, allowed)
}

func TestFilterCandidatesRemovesDenied(t *testing.T) {
	g := safety.New(100, nil, nil)
	capOf := map[string]string{
		"search-bot": "web_search",
		"sec-bot":    "security",
	}
	out := g.FilterCandidates(context.Background(), []string{"search-bot", "sec-bot"}, func(id string) string {
		return capOf[id]
	}, false)
	assert.Equal(t, []string{"search-bot"}, out)
}

func TestAuditHistoryRecordsDecisions(t *testing.T) {
	g := safety.New(5, nil, nil)
	for i := 0; i < 10; i++ {
		g.Allow(context.Background(), "search-bot", "web_search", false, "filter")
	}
	history := g.AuditHistory()
	assert.Len(t, history, 5)
}

func TestSetPolicyOverridesDefault(t *testing.T) {
	g := safety.New(100, nil, nil)
	g.SetPolicy(safety.Policy{Capability: "web_search", Enabled: false, Risk: safety.RiskLow})
	allowed := g.Allow(context.Background(), "search-bot", "web_search", false, "filter")
	assert.False(t, allowed)
}

func TestRequiresSandboxReflectsPolicy(t *testing.T) {
	g := safety.New(100, nil, nil)
	assert.True(t, g.RequiresSandbox("code_generation"))
	assert.False(t, g.RequiresSandbox("web_search"))
}
