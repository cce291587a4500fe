// Package synthesis merges concurrent HandlerResults into a single
// Response under a composite score.
package synthesis

import (
	"fmt"
	"sort"
	"strings"

	fame "github.com/fame-ai/orchestrator"
	"github.com/fame-ai/orchestrator/logger"
)

const (
	// synthesisFloor is the minimum composite score a winner must clear
	// to avoid graceful degradation.
	synthesisFloor = 0.30

	weightHandlerConfidence = 0.6
	weightRouterScore       = 0.3
	weightSourceQuality     = 0.1

	identityHandlerID = "identity"

	maxCorroboratingHandlers = 2
)

// sourceQuality is a fixed constant standing in for "how authoritative
// is this handler's source": identity/official handlers outrank
// structured APIs, which outrank raw search snippets. The table is keyed
// by capability tag but qualityFor looks it up by handler id, so only a
// handler whose id equals one of these tags gets its entry; every other
// handler scores 0.5.
var sourceQuality = map[string]float64{
	"identity":        1.0,
	"finance":         0.8,
	"code_generation": 0.8,
	"news":            0.6,
	"memory":          0.7,
	"web_search":      0.4,
	"fallback_search": 0.4,
}

func qualityFor(handlerID string) float64 {
	if q, ok := sourceQuality[handlerID]; ok {
		return q
	}
	return 0.5
}

// expectedResponseTags maps an intent to the tag recorded on the
// assistant's Turn, enabling the router's affirmative follow-up rule.
var expectedResponseTags = map[string]string{
	"code_generation":          "code_generation",
	"build_instructions_offer": "build_instructions",
	"finance":                  "finance",
	"news":                     "news",
	"memory":                   "memory",
	"web_search":               "web_search",
	"fallback_search":          "web_search",
	"identity":                 "identity",
}

func expectedTagFor(intent string) string {
	if tag, ok := expectedResponseTags[intent]; ok {
		return tag
	}
	return intent
}

// Synthesizer composes a Response from HandlerResults and the routing
// decision that produced them.
type Synthesizer struct {
	log logger.Logger
}

// New builds a Synthesizer.
func New(log logger.Logger) *Synthesizer {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Synthesizer{log: log.WithField("component", "synthesis")}
}

// scored pairs a HandlerResult with its composite score and router
// position, for sorting and tie-breaking.
type scored struct {
	result    fame.HandlerResult
	composite float64
	position  int
}

// Synthesize drops failed results, lets an identity responder win
// unconditionally, otherwise ranks by composite score and degrades
// gracefully below synthesisFloor.
func (s *Synthesizer) Synthesize(
	queryID, sessionID string,
	decision fame.IntentDecision,
	results []fame.HandlerResult,
	sandboxReports map[string]*fame.SandboxReport,
) fame.Response {
	resp := fame.Response{
		QueryID:   queryID,
		SessionID: sessionID,
		Intent:    decision.PrimaryIntent,
	}

	var ok []fame.HandlerResult
	for _, r := range results {
		if r.OK {
			ok = append(ok, r)
		} else if r.HandlerID != "" {
			resp.Errors = append(resp.Errors, fame.ResponseError{HandlerID: r.HandlerID, Kind: r.ErrorKind})
		}
	}

	if len(ok) == 0 {
		return s.allFailedFallback(resp)
	}

	for _, r := range ok {
		if r.HandlerID == identityHandlerID {
			resp.Text = r.Text
			resp.Confidence = r.Confidence
			resp.ExpectedResponseTag = expectedTagFor("identity")
			resp.ContributingHandlers = []string{r.HandlerID}
			s.attachSandboxReport(&resp, r.HandlerID, sandboxReports)
			return resp
		}
	}

	ranked := s.rank(ok, decision.CandidateHandlers)

	winner := ranked[0]
	resp.Confidence = winner.composite
	resp.ContributingHandlers = []string{winner.result.HandlerID}
	resp.ExpectedResponseTag = expectedTagFor(decision.PrimaryIntent)

	if winner.composite < synthesisFloor {
		return s.gracefulDegradation(resp, ranked)
	}

	resp.Text = winner.result.Text
	s.attachSandboxReport(&resp, winner.result.HandlerID, sandboxReports)

	return resp
}

// rank computes composite scores and orders results per the tie-break
// rules: higher handler_confidence first, then earlier router
// position, then alphabetical handler id.
func (s *Synthesizer) rank(results []fame.HandlerResult, candidateOrder []string) []scored {
	position := make(map[string]int, len(candidateOrder))
	for i, id := range candidateOrder {
		position[id] = i
	}
	positionOf := func(handlerID string) int {
		if p, ok := position[handlerID]; ok {
			return p
		}
		return len(candidateOrder)
	}

	routerScoreFor := func(handlerID string) float64 {
		p := positionOf(handlerID)
		if len(candidateOrder) == 0 {
			return 0.5
		}
		return 1.0 - float64(p)/float64(len(candidateOrder))
	}

	out := make([]scored, len(results))
	for i, r := range results {
		composite := weightHandlerConfidence*r.Confidence +
			weightRouterScore*routerScoreFor(r.HandlerID) +
			weightSourceQuality*qualityFor(r.HandlerID)
		out[i] = scored{result: r, composite: composite, position: positionOf(r.HandlerID)}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].composite != out[j].composite {
			return out[i].composite > out[j].composite
		}
		if out[i].result.Confidence != out[j].result.Confidence {
			return out[i].result.Confidence > out[j].result.Confidence
		}
		if out[i].position != out[j].position {
			return out[i].position < out[j].position
		}
		return out[i].result.HandlerID < out[j].result.HandlerID
	})

	return out
}

// gracefulDegradation composes a low-confidence response from the
// winner plus up to two corroborating handlers' top lines.
func (s *Synthesizer) gracefulDegradation(resp fame.Response, ranked []scored) fame.Response {
	var body strings.Builder
	body.WriteString("I'm not fully confident in this answer: ")
	body.WriteString(ranked[0].result.Text)

	corroborating := 0
	for _, r := range ranked[1:] {
		if corroborating >= maxCorroboratingHandlers {
			break
		}
		line := firstLine(r.result.Text)
		if line == "" {
			continue
		}
		body.WriteString(fmt.Sprintf("\n\nAlso worth noting (%s): %s", r.result.HandlerID, line))
		resp.ContributingHandlers = append(resp.ContributingHandlers, r.result.HandlerID)
		corroborating++
	}

	resp.Text = body.String()
	resp.Partial = true
	return resp
}

// allFailedFallback implements rule 7: every handler failed.
func (s *Synthesizer) allFailedFallback(resp fame.Response) fame.Response {
	resp.Text = "I wasn't able to get an answer for that. Please try rephrasing or try again shortly."
	resp.Partial = true
	resp.Confidence = 0
	return resp
}

func (s *Synthesizer) attachSandboxReport(resp *fame.Response, handlerID string, reports map[string]*fame.SandboxReport) {
	if reports == nil {
		return
	}
	if report, ok := reports[handlerID]; ok {
		resp.SandboxReport = report
	}
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
