package synthesis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	fame "github.com/fame-ai/orchestrator"
	"github.com/fame-ai/orchestrator/synthesis"
)

func TestSynthesizeIdentityWinsUnconditionally(t *testing.T) {
	s := synthesis.New(nil)

	decision := fame.IntentDecision{PrimaryIntent: "identity", CandidateHandlers: []string{"identity"}}
	results := []fame.HandlerResult{
		{HandlerID: "identity", OK: true, Text: "I am the assistant.", Confidence: 0.2},
	}

	resp := s.Synthesize("q1", "s1", decision, results, nil)

	assert.Equal(t, "I am the assistant.", resp.Text)
	assert.False(t, resp.Partial)
}

func TestSynthesizePicksHighestComposite(t *testing.T) {
	s := synthesis.New(nil)

	decision := fame.IntentDecision{
		PrimaryIntent:     "finance",
		CandidateHandlers: []string{"finance_handler", "web_search_handler"},
	}
	results := []fame.HandlerResult{
		{HandlerID: "finance_handler", OK: true, Text: "AAPL is at $190", Confidence: 0.9},
		{HandlerID: "web_search_handler", OK: true, Text: "some snippet", Confidence: 0.5},
	}

	resp := s.Synthesize("q1", "s1", decision, results, nil)

	assert.Equal(t, "AAPL is at $190", resp.Text)
	assert.Equal(t, []string{"finance_handler"}, resp.ContributingHandlers)
}

func TestSynthesizeGracefulDegradationBelowFloor(t *testing.T) {
	s := synthesis.New(nil)

	decision := fame.IntentDecision{
		PrimaryIntent:     "web_search",
		CandidateHandlers: []string{"unrelated_handler_a", "unrelated_handler_b"},
	}
	results := []fame.HandlerResult{
		{HandlerID: "web_search_handler", OK: true, Text: "weak result", Confidence: 0.1},
		{HandlerID: "news_handler", OK: true, Text: "a weaker corroboration line", Confidence: 0.05},
	}

	resp := s.Synthesize("q1", "s1", decision, results, nil)

	assert.True(t, resp.Partial)
	assert.Contains(t, resp.Text, "not fully confident")
}

func TestSynthesizeAllFailedFallback(t *testing.T) {
	s := synthesis.New(nil)

	decision := fame.IntentDecision{PrimaryIntent: "finance", CandidateHandlers: []string{"finance_handler"}}
	results := []fame.HandlerResult{
		{HandlerID: "finance_handler", OK: false, ErrorKind: fame.ErrorKindTimeout},
	}

	resp := s.Synthesize("q1", "s1", decision, results, nil)

	assert.True(t, resp.Partial)
	assert.Equal(t, float64(0), resp.Confidence)
	assert.Len(t, resp.Errors, 1)
	assert.Equal(t, fame.ErrorKindTimeout, resp.Errors[0].Kind)
}

func TestSynthesizeAttachesSandboxReport(t *testing.T) {
	s := synthesis.New(nil)

	decision := fame.IntentDecision{PrimaryIntent: "code_generation", CandidateHandlers: []string{"code_gen_handler"}}
	results := []fame.HandlerResult{
		{HandlerID: "code_gen_handler", OK: true, Text: "here's your script", Confidence: 0.95},
	}
	reports := map[string]*fame.SandboxReport{
		"code_gen_handler": {ExitCode: 0, WallMs: 120},
	}

	resp := s.Synthesize("q1", "s1", decision, results, reports)

	assert.NotNil(t, resp.SandboxReport)
	assert.Equal(t, 0, resp.SandboxReport.ExitCode)
}

func TestSynthesizeTieBreakByHandlerID(t *testing.T) {
	s := synthesis.New(nil)

	decision := fame.IntentDecision{PrimaryIntent: "news", CandidateHandlers: []string{}}
	results := []fame.HandlerResult{
		{HandlerID: "zzz_handler", OK: true, Text: "z", Confidence: 0.9},
		{HandlerID: "aaa_handler", OK: true, Text: "a", Confidence: 0.9},
	}

	resp := s.Synthesize("q1", "s1", decision, results, nil)

	assert.Equal(t, []string{"aaa_handler"}, resp.ContributingHandlers)
}
