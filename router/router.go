package router

import (
	"sort"
	"strings"

	fame "github.com/fame-ai/orchestrator"
	"github.com/fame-ai/orchestrator/logger"
)

const (
	// identityConfidence is the fixed confidence rule 1 reports.
	identityConfidence = 0.95
	// followUpConfidence is the fixed confidence rule 2 reports.
	followUpConfidence = 0.95
	// defaultLowThreshold is rule 5's retention floor.
	defaultLowThreshold = 0.30
	// defaultContextBoost is rule 4's fixed boost.
	defaultContextBoost = 0.30
	// defaultTopM bounds the candidate handler set.
	defaultTopM = 5

	identityHandlerID     = "identity"
	fallbackSearchIntent  = "fallback_search"
	fallbackSearchHandler = "fanout_web_search"
)

// Router implements the five-stage ordered classification pipeline.
type Router struct {
	keywords     KeywordTable
	resolver     CapabilityResolver
	lowThreshold float64
	contextBoost float64
	topM         int
	log          logger.Logger
}

// Option configures a Router at construction time using the
// functional-options pattern.
type Option func(*Router)

func WithKeywordTable(t KeywordTable) Option { return func(r *Router) { r.keywords = t } }
func WithLowThreshold(v float64) Option      { return func(r *Router) { r.lowThreshold = v } }
func WithContextBoost(v float64) Option      { return func(r *Router) { r.contextBoost = v } }
func WithTopM(n int) Option                  { return func(r *Router) { r.topM = n } }

// New builds a Router resolving capability candidates to handler ids
// via resolver (normally the Plugin Registry).
func New(resolver CapabilityResolver, log logger.Logger, opts ...Option) *Router {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	r := &Router{
		keywords:     DefaultKeywordTable(),
		resolver:     resolver,
		lowThreshold: defaultLowThreshold,
		contextBoost: defaultContextBoost,
		topM:         defaultTopM,
		log:          log.WithField("component", "router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify runs the ordered pipeline against text, given the recent
// session turns (most recent last). The first rule that fires
// terminates classification.
func (r *Router) Classify(text string, recentTurns []fame.Turn) fame.IntentDecision {
	normalized := strings.ToLower(strings.TrimSpace(text))

	if decision, ok := r.identityGuard(normalized); ok {
		return decision
	}

	if decision, ok := r.affirmativeFollowUpGuard(normalized, recentTurns); ok {
		return decision
	}

	scores, features := r.keywordClassifier(normalized)
	boosted := r.contextBoostStage(scores, recentTurns)

	return r.thresholdStage(boosted, features)
}

// identityGuard is rule 1.
func (r *Router) identityGuard(text string) (fame.IntentDecision, bool) {
	for _, pattern := range compiledIdentityPatterns {
		if pattern.MatchString(text) {
			r.log.Debug("identity guard fired", "pattern", pattern.String())
			return fame.IntentDecision{
				PrimaryIntent:     "identity",
				Confidence:        identityConfidence,
				CandidateHandlers: []string{identityHandlerID},
				FeatureVector:     map[string]float64{"identity_pattern": 1.0},
			}, true
		}
	}
	return fame.IntentDecision{}, false
}

// affirmativeFollowUpGuard is rule 2.
func (r *Router) affirmativeFollowUpGuard(text string, recentTurns []fame.Turn) (fame.IntentDecision, bool) {
	if !isShortAffirmativeOrNegative(text) {
		return fame.IntentDecision{}, false
	}

	lastAssistant, ok := lastAssistantTurn(recentTurns)
	if !ok || lastAssistant.ExpectedFollowUp == "" || lastAssistant.ExpectedFollowUp == "none" {
		return fame.IntentDecision{}, false
	}

	handlers := []string{}
	if lastAssistant.IntentRecorded != "" {
		handlers = []string{lastAssistant.IntentRecorded}
	}

	r.log.Debug("affirmative follow-up guard fired", "follow_up", lastAssistant.ExpectedFollowUp)
	return fame.IntentDecision{
		PrimaryIntent:       lastAssistant.ExpectedFollowUp,
		Confidence:          followUpConfidence,
		CandidateHandlers:   handlers,
		ExpectedResponseTag: lastAssistant.ExpectedFollowUp,
		FeatureVector:       map[string]float64{"affirmative_follow_up": 1.0},
	}, true
}

// keywordClassifier is rule 3: produces an unordered capability→score
// map plus the raw feature vector for observability.
func (r *Router) keywordClassifier(text string) (map[string]float64, map[string]float64) {
	scores := make(map[string]float64)
	features := make(map[string]float64)

	for capability, keywords := range r.keywords {
		if len(keywords) == 0 {
			continue
		}
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		score := float64(matches) / float64(len(keywords))
		if score > 1.0 {
			score = 1.0
		}
		scores[capability] = score
		features["keyword."+capability] = score
	}

	return scores, features
}

// contextBoostStage is rule 4: adds a fixed boost to capabilities
// related to the prior assistant turn's topic tag.
func (r *Router) contextBoostStage(scores map[string]float64, recentTurns []fame.Turn) map[string]float64 {
	lastAssistant, ok := lastAssistantTurn(recentTurns)
	if !ok || lastAssistant.ExpectedFollowUp == "" || lastAssistant.ExpectedFollowUp == "none" {
		return scores
	}

	related := relatedCapability(lastAssistant.ExpectedFollowUp)
	if related == "" {
		return scores
	}

	boosted := make(map[string]float64, len(scores)+1)
	for k, v := range scores {
		boosted[k] = v
	}
	boosted[related] += r.contextBoost
	if boosted[related] > 1.0 {
		boosted[related] = 1.0
	}
	return boosted
}

// relatedCapability maps an expected-follow-up tag to the capability
// it naturally boosts (e.g. a build_instructions offer boosts
// code_generation).
func relatedCapability(tag string) string {
	switch tag {
	case "build_instructions", "code_generation":
		return "code_generation"
	default:
		return ""
	}
}

// thresholdStage is rule 5: retains candidates at or above the low
// threshold, orders by score, resolves to handler ids via resolver,
// and falls back to fallback_search when nothing clears the bar.
func (r *Router) thresholdStage(scores map[string]float64, features map[string]float64) fame.IntentDecision {
	type candidate struct {
		capability string
		score      float64
	}

	var candidates []candidate
	for cap, score := range scores {
		if score >= r.lowThreshold {
			candidates = append(candidates, candidate{cap, score})
		}
	}

	if len(candidates) == 0 {
		r.log.Debug("no candidate cleared low threshold, falling back to search")
		return fame.IntentDecision{
			PrimaryIntent:     fallbackSearchIntent,
			Confidence:        r.lowThreshold,
			CandidateHandlers: []string{fallbackSearchHandler},
			FeatureVector:     features,
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var handlers []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		for _, h := range r.resolveHandlers(c.capability) {
			if !seen[h] {
				seen[h] = true
				handlers = append(handlers, h)
			}
		}
		if len(handlers) >= r.topM {
			break
		}
	}
	if len(handlers) > r.topM {
		handlers = handlers[:r.topM]
	}

	primary := candidates[0].capability
	boosted := scores[primary] > features["keyword."+primary]

	return fame.IntentDecision{
		PrimaryIntent:       primary,
		Confidence:          candidates[0].score,
		CandidateHandlers:   handlers,
		ContextBoostApplied: boosted,
		FeatureVector:       features,
	}
}

func (r *Router) resolveHandlers(capability string) []string {
	if r.resolver == nil {
		return nil
	}
	return r.resolver.FindByCapability(capability)
}

func isShortAffirmativeOrNegative(text string) bool {
	trimmed := strings.TrimRight(text, ".! ")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 || len(fields) > 3 {
		return false
	}
	if affirmativeWords[trimmed] || negativeWords[trimmed] {
		return true
	}
	first := strings.TrimRight(fields[0], ",.!")
	return affirmativeWords[first] || negativeWords[first]
}

func lastAssistantTurn(turns []fame.Turn) (fame.Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == fame.RoleAssistant {
			return turns[i], true
		}
	}
	return fame.Turn{}, false
}
