// Package orchestrator implements the per-request lifecycle that
// wires the Router, Safety Gate, Fan-out Engine, Confidence
// Synthesizer, and Session Store into one state machine (Accepted →
// Classified → Gated → Dispatched → Synthesized → Recorded →
// Responded, with an Any → Failed escape).
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	fame "github.com/fame-ai/orchestrator"
	"github.com/fame-ai/orchestrator/fanout"
	"github.com/fame-ai/orchestrator/logger"
	"github.com/fame-ai/orchestrator/registry"
	"github.com/fame-ai/orchestrator/resilience"
	"github.com/fame-ai/orchestrator/safety"
	"github.com/fame-ai/orchestrator/sandbox"
	"github.com/fame-ai/orchestrator/session"
	"github.com/fame-ai/orchestrator/synthesis"
)

// Monitor is the subset of health.Monitor the orchestrator reports
// into. Declared locally so orchestrator never needs to import the
// prometheus-backed health package just for this narrow callback.
type Monitor interface {
	RecordInvocation(handlerID string, ok bool, errorKind string, latencyMs int64)
	RecordSandboxExecution()
}

type noopMonitor struct{}

func (noopMonitor) RecordInvocation(string, bool, string, int64) {}
func (noopMonitor) RecordSandboxExecution()                      {}

// Stage names the state machine's nodes, recorded on every transition
// for metrics. On timeout the last completed stage is logged; the
// timeout Response itself does not carry a stage.
type Stage string

const (
	StageAccepted    Stage = "accepted"
	StageClassified  Stage = "classified"
	StageGated       Stage = "gated"
	StageDispatched  Stage = "dispatched"
	StageSynthesized Stage = "synthesized"
	StageRecorded    Stage = "recorded"
	StageResponded   Stage = "responded"
	StageFailed      Stage = "failed"
)

// Router is the subset of router.Router the orchestrator depends on.
type Router interface {
	Classify(text string, recentTurns []fame.Turn) fame.IntentDecision
}

// TransitionObserver is notified at every state transition, letting a
// metrics collector record per-stage counters without the orchestrator
// importing it directly.
type TransitionObserver interface {
	OnTransition(stage Stage, queryID string, elapsed time.Duration)
}

// noopObserver discards transitions when none is configured.
type noopObserver struct{}

func (noopObserver) OnTransition(Stage, string, time.Duration) {}

// Orchestrator wires together every core component and drives one
// request through the fixed seven-state lifecycle.
type Orchestrator struct {
	registry    *registry.Registry
	gate        *safety.Gate
	sandboxExec sandbox.Executor
	sessions    session.Store
	router      Router
	fanoutEng   *fanout.Engine
	synth       *synthesis.Synthesizer

	config   *fame.Config
	log      logger.Logger
	observer TransitionObserver
	monitor  Monitor

	breaker *resilience.CircuitBreaker

	activeRequests int64
	mu             sync.Mutex
}

// Dependencies bundles every component the Orchestrator wires together,
// so New takes a single argument instead of eleven positional ones.
type Dependencies struct {
	Registry    *registry.Registry
	Gate        *safety.Gate
	SandboxExec sandbox.Executor
	Sessions    session.Store
	Router      Router
	FanoutEng   *fanout.Engine
	Synth       *synthesis.Synthesizer
	Config      *fame.Config
	Log         logger.Logger
	Observer    TransitionObserver
	Monitor     Monitor
}

// New builds an Orchestrator. A nil Observer is replaced with a no-op;
// a nil Config falls back to fame.Load()'s defaults.
func New(deps Dependencies) *Orchestrator {
	if deps.Log == nil {
		deps.Log = logger.NewDefaultLogger()
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.Config == nil {
		deps.Config = fame.Load()
	}
	if deps.Monitor == nil {
		deps.Monitor = noopMonitor{}
	}
	return &Orchestrator{
		registry:    deps.Registry,
		gate:        deps.Gate,
		sandboxExec: deps.SandboxExec,
		sessions:    deps.Sessions,
		router:      deps.Router,
		fanoutEng:   deps.FanoutEng,
		synth:       deps.Synth,
		config:      deps.Config,
		log:         deps.Log.WithField("component", "orchestrator"),
		observer:    deps.Observer,
		monitor:     deps.Monitor,
		breaker:     resilience.NewCircuitBreaker("orchestrator", 5, 30*time.Second),
	}
}

// Process drives one Query through the full lifecycle and always
// returns exactly one Response, even on timeout or internal failure.
func (o *Orchestrator) Process(ctx context.Context, q fame.Query) fame.Response {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}

	start := time.Now()
	o.beginRequest()
	defer o.endRequest()

	deadline := time.Duration(q.DeadlineMs) * time.Millisecond
	if deadline <= 0 {
		deadline = o.config.QueryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if !o.breaker.CanExecute() {
		return o.failureResponse(q, StageAccepted, "orchestrator circuit breaker open")
	}

	resp, err := o.runPipeline(ctx, q, start)
	if err != nil {
		o.breaker.RecordFailure()
		return o.failureResponse(q, StageFailed, err.Error())
	}

	o.breaker.RecordSuccess()
	o.transition(StageResponded, q.ID, start)
	return resp
}

// runPipeline executes the Accepted→Responded chain, recovering from
// any panic so the Any→Failed escape always yields a canonical
// Response rather than crashing the request.
func (o *Orchestrator) runPipeline(ctx context.Context, q fame.Query, start time.Time) (resp fame.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("orchestrator pipeline panicked", "query_id", q.ID, "panic", fmt.Sprint(r))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	o.transition(StageAccepted, q.ID, start)

	recentTurns := o.sessions.Recent(q.SessionID, o.config.SessionTurns)
	decision := o.router.Classify(q.Text, recentTurns)
	o.transition(StageClassified, q.ID, start)

	select {
	case <-ctx.Done():
		return o.timeoutResponse(q, StageClassified), nil
	default:
	}

	hasAdminToken := o.config.HasAdminToken(q.AdminToken())
	gated := o.gate.FilterCandidates(ctx, decision.CandidateHandlers, o.capabilityOf, hasAdminToken)
	o.transition(StageGated, q.ID, start)

	select {
	case <-ctx.Done():
		return o.timeoutResponse(q, StageGated), nil
	default:
	}

	results, sandboxReports := o.dispatch(ctx, q, decision, gated, hasAdminToken)
	o.transition(StageDispatched, q.ID, start)

	select {
	case <-ctx.Done():
		resp = o.synth.Synthesize(q.ID, q.SessionID, decision, results, sandboxReports)
		resp.Partial = true
		resp.Timestamp = time.Now()
		return resp, nil
	default:
	}

	resp = o.synth.Synthesize(q.ID, q.SessionID, decision, results, sandboxReports)
	resp.Timestamp = time.Now()
	o.transition(StageSynthesized, q.ID, start)

	o.record(q, resp)
	o.transition(StageRecorded, q.ID, start)

	return resp, nil
}

// dispatch invokes every gated handler id through the Fan-out Engine.
// A handler whose capability requires sandboxing runs through the
// configured sandbox.Executor instead of being invoked directly; its
// SandboxReport is threaded back to the synthesizer.
func (o *Orchestrator) dispatch(
	ctx context.Context,
	q fame.Query,
	decision fame.IntentDecision,
	handlerIDs []string,
	hasAdminToken bool,
) ([]fame.HandlerResult, map[string]*fame.SandboxReport) {
	if len(handlerIDs) == 0 {
		return nil, nil
	}

	reports := make(map[string]*fame.SandboxReport)
	var reportsMu sync.Mutex

	tasks := make([]fanout.Task, 0, len(handlerIDs))
	for _, id := range handlerIDs {
		id := id
		tasks = append(tasks, fanout.Task{
			HandlerID: id,
			Invoke: func(ctx context.Context) fame.HandlerResult {
				return o.invoke(ctx, q, id, hasAdminToken, &reportsMu, reports)
			},
		})
	}

	var results []fame.HandlerResult
	if decision.PrimaryIntent == "fallback_search" {
		results = o.fanoutEng.RunDeduped(ctx, normalizeQueryKey(q.Text), tasks)
	} else {
		results = o.fanoutEng.Run(ctx, tasks)
	}

	return results, reports
}

// invoke runs a single handler, honoring the "invoke" stage safety
// check (the race-safe final gate immediately before Handle) and
// routing through the Sandbox Executor when the capability's policy
// requires isolation.
func (o *Orchestrator) invoke(
	ctx context.Context,
	q fame.Query,
	handlerID string,
	hasAdminToken bool,
	reportsMu *sync.Mutex,
	reports map[string]*fame.SandboxReport,
) fame.HandlerResult {
	plugin, meta, ok := o.registry.Get(handlerID)
	if !ok {
		return fame.HandlerResult{HandlerID: handlerID, OK: false, ErrorKind: fame.ErrorKindUnavailable}
	}

	capability := capabilityFor(meta)
	if !o.gate.Allow(ctx, handlerID, capability, hasAdminToken, "invoke") {
		return fame.HandlerResult{HandlerID: handlerID, OK: false, ErrorKind: fame.ErrorKindDenied}
	}

	start := time.Now()
	result, err := plugin.Handle(registry.Request{
		QueryID:    q.ID,
		SessionID:  q.SessionID,
		Text:       q.Text,
		Metadata:   q.Metadata,
		DeadlineMs: int64(time.Until(deadlineFrom(ctx)).Milliseconds()),
	})
	if err != nil {
		o.monitor.RecordInvocation(handlerID, false, string(fame.ErrorKindException), time.Since(start).Milliseconds())
		return fame.HandlerResult{HandlerID: handlerID, OK: false, ErrorKind: fame.ErrorKindException}
	}

	if o.gate.RequiresSandbox(capability) && result.Structured != nil {
		if code, ok := result.Structured["code"].(string); ok && code != "" {
			language, _ := result.Structured["language"].(string)
			limits := sandbox.DefaultLimits()
			limits.RequireIsolation = true
			report, sandboxErr := o.sandboxExec.Run(ctx, code, language, limits)
			o.monitor.RecordSandboxExecution()
			if sandboxErr == nil && report != nil {
				reportsMu.Lock()
				reports[handlerID] = report
				reportsMu.Unlock()
			} else if sandboxErr != nil {
				o.monitor.RecordInvocation(handlerID, false, string(fame.ErrorKindSandboxFailed), time.Since(start).Milliseconds())
				return fame.HandlerResult{HandlerID: handlerID, OK: false, ErrorKind: fame.ErrorKindSandboxFailed}
			}
		}
	}

	latencyMs := time.Since(start).Milliseconds()
	o.monitor.RecordInvocation(handlerID, result.OK, result.ErrorKind, latencyMs)

	return fame.HandlerResult{
		HandlerID:  handlerID,
		OK:         result.OK,
		Text:       result.Text,
		Structured: result.Structured,
		Confidence: result.Confidence,
		Sources:    result.Sources,
		LatencyMs:  latencyMs,
	}
}

// capabilityOf adapts registry metadata lookups to the Safety Gate's
// capabilityOf(handlerID) → capability callback shape.
func (o *Orchestrator) capabilityOf(handlerID string) string {
	_, meta, ok := o.registry.Get(handlerID)
	if !ok {
		return ""
	}
	return capabilityFor(meta)
}

func capabilityFor(meta registry.Metadata) string {
	if len(meta.Capabilities) == 0 {
		return ""
	}
	return meta.Capabilities[0]
}

// record appends the user Turn and the synthesized assistant Turn to
// the session, completing the Synthesized → Recorded transition.
func (o *Orchestrator) record(q fame.Query, resp fame.Response) {
	o.sessions.Append(q.SessionID, fame.Turn{
		Role:      fame.RoleUser,
		Text:      q.Text,
		Timestamp: time.Now(),
	})
	o.sessions.Append(q.SessionID, fame.Turn{
		Role:             fame.RoleAssistant,
		Text:             resp.Text,
		IntentRecorded:   firstOrEmpty(resp.ContributingHandlers),
		ExpectedFollowUp: resp.ExpectedResponseTag,
		Timestamp:        time.Now(),
	})
}

func (o *Orchestrator) timeoutResponse(q fame.Query, stage Stage) fame.Response {
	o.log.Warn("request timed out", "query_id", q.ID, "stage", stage)
	return fame.Response{
		QueryID:   q.ID,
		SessionID: q.SessionID,
		Text:      "This is taking longer than expected. Please try again.",
		Partial:   true,
		Errors:    []fame.ResponseError{{Kind: fame.ErrorKindTimeout}},
		Timestamp: time.Now(),
	}
}

func (o *Orchestrator) failureResponse(q fame.Query, stage Stage, reason string) fame.Response {
	o.log.Error("request failed", "query_id", q.ID, "stage", stage, "reason", reason)
	return fame.Response{
		QueryID:   q.ID,
		SessionID: q.SessionID,
		Text:      "Something went wrong processing that request.",
		Partial:   true,
		Errors:    []fame.ResponseError{{Kind: fame.ErrorKindException}},
		Timestamp: time.Now(),
	}
}

func (o *Orchestrator) transition(stage Stage, queryID string, start time.Time) {
	o.observer.OnTransition(stage, queryID, time.Since(start))
}

func (o *Orchestrator) beginRequest() {
	o.mu.Lock()
	o.activeRequests++
	o.mu.Unlock()
}

func (o *Orchestrator) endRequest() {
	o.mu.Lock()
	o.activeRequests--
	o.mu.Unlock()
}

// ActiveRequests reports the number of requests currently in flight,
// exposed to the Health & Metrics component.
func (o *Orchestrator) ActiveRequests() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeRequests
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

// normalizeQueryKey collapses whitespace and case differences so that
// "What's AAPL at?" and "what's aapl at?" share the same single-flight
// dedup key.
func normalizeQueryKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func deadlineFrom(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now()
}
