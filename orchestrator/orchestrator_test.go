package orchestrator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	fame "github.com/fame-ai/orchestrator"
	"github.com/fame-ai/orchestrator/fanout"
	"github.com/fame-ai/orchestrator/orchestrator"
	"github.com/fame-ai/orchestrator/registry"
	"github.com/fame-ai/orchestrator/safety"
	"github.com/fame-ai/orchestrator/sandbox"
	"github.com/fame-ai/orchestrator/session"
	"github.com/fame-ai/orchestrator/synthesis"
)

type echoPlugin struct {
	id   string
	caps []string
	text string
}

func (p *echoPlugin) ID() string                  { return p.id }
func (p *echoPlugin) Init(registry.Manager) error { return nil }
func (p *echoPlugin) Metadata() registry.Metadata {
	return registry.Metadata{Name: p.id, Capabilities: p.caps}
}
func (p *echoPlugin) Handle(req registry.Request) (registry.Result, error) {
	return registry.Result{OK: true, Text: p.text, Confidence: 0.9}, nil
}

type fakeRouter struct {
	decision fame.IntentDecision
}

func (r *fakeRouter) Classify(text string, recentTurns []fame.Turn) fame.IntentDecision {
	return r.decision
}

func buildTestOrchestrator(t *testing.T, decision fame.IntentDecision, plugins ...*echoPlugin) *orchestrator.Orchestrator {
	reg := registry.New(false, nil, nil)
	for i, p := range plugins {
		registry.RegisterKnownCapability(p.caps[0])
		err := reg.Register(p, false, len(plugins)-i, false)
		assert.NoError(t, err)
	}

	gate := safety.New(100, nil, nil)
	sessions := session.NewMemoryStore(5, 30*time.Minute)
	fanoutEng := fanout.New(nil, 0)
	synth := synthesis.New(nil)
	localExec := sandbox.NewLocalExecutor(nil)

	return orchestrator.New(orchestrator.Dependencies{
		Registry:    reg,
		Gate:        gate,
		SandboxExec: localExec,
		Sessions:    sessions,
		Router:      &fakeRouter{decision: decision},
		FanoutEng:   fanoutEng,
		Synth:       synth,
		Config:      fame.Load(),
	})
}

func TestProcessHappyPath(t *testing.T) {
	plugin := &echoPlugin{id: "finance_handler", caps: []string{"finance"}, text: "AAPL is at $190"}
	decision := fame.IntentDecision{PrimaryIntent: "finance", CandidateHandlers: []string{"finance_handler"}}

	o := buildTestOrchestrator(t, decision, plugin)

	resp := o.Process(t.Context(), fame.Query{SessionID: "s1", Text: "what is AAPL trading at"})

	assert.Equal(t, "AAPL is at $190", resp.Text)
	assert.False(t, resp.Partial)
}

func TestProcessDeniedCapabilityFallsBackToAllFailed(t *testing.T) {
	plugin := &echoPlugin{id: "sec_handler", caps: []string{"security"}, text: "should not appear"}
	decision := fame.IntentDecision{PrimaryIntent: "security", CandidateHandlers: []string{"sec_handler"}}

	o := buildTestOrchestrator(t, decision, plugin)

	resp := o.Process(t.Context(), fame.Query{SessionID: "s1", Text: "do something risky"})

	assert.True(t, resp.Partial)
	assert.NotEqual(t, "should not appear", resp.Text)
}

func TestProcessRecordsSessionTurns(t *testing.T) {
	plugin := &echoPlugin{id: "news_handler", caps: []string{"news"}, text: "today's headline"}
	decision := fame.IntentDecision{PrimaryIntent: "news", CandidateHandlers: []string{"news_handler"}}

	sessions := session.NewMemoryStore(5, 30*time.Minute)
	reg := registry.New(false, nil, nil)
	registry.RegisterKnownCapability("news")
	assert.NoError(t, reg.Register(plugin, false, 1, false))

	o := orchestrator.New(orchestrator.Dependencies{
		Registry:    reg,
		Gate:        safety.New(100, nil, nil),
		SandboxExec: sandbox.NewLocalExecutor(nil),
		Sessions:    sessions,
		Router:      &fakeRouter{decision: decision},
		FanoutEng:   fanout.New(nil, 0),
		Synth:       synthesis.New(nil),
		Config:      fame.Load(),
	})

	o.Process(t.Context(), fame.Query{SessionID: "s2", Text: "what's the news"})

	turns := sessions.Recent("s2", 5)
	assert.Len(t, turns, 2)
	assert.Equal(t, fame.RoleUser, turns[0].Role)
	assert.Equal(t, fame.RoleAssistant, turns[1].Role)
}

func TestProcessUnknownHandlerYieldsUnavailable(t *testing.T) {
	decision := fame.IntentDecision{PrimaryIntent: "finance", CandidateHandlers: []string{"nonexistent_handler"}}

	o := buildTestOrchestrator(t, decision)

	resp := o.Process(t.Context(), fame.Query{SessionID: "s1", Text: "anything"})

	assert.True(t, resp.Partial)
	assert.Equal(t, []fame.ResponseError{{HandlerID: "nonexistent_handler", Kind: fame.ErrorKindUnavailable}}, resp.Errors)
}
