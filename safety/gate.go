// Package safety implements a per-capability allow/deny policy table
// with admin-token override, and an audit trail of every decision.
package safety

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fame-ai/orchestrator/logger"
)

// Risk is the declared severity of a capability.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// Policy is one row of the capability → policy table.
type Policy struct {
	Capability         string
	Enabled            bool
	Risk               Risk
	RequiresAdminToken bool
	RequiresSandbox    bool
}

// defaultPolicyTable is the shipped default: security, network_control
// and system_modify start disabled and need an admin token to enable.
func defaultPolicyTable() map[string]Policy {
	return map[string]Policy{
		"security": {
			Capability: "security", Enabled: false, Risk: RiskCritical,
			RequiresAdminToken: true, RequiresSandbox: true,
		},
		"network_control": {
			Capability: "network_control", Enabled: false, Risk: RiskHigh,
			RequiresAdminToken: true, RequiresSandbox: false,
		},
		"system_modify": {
			Capability: "system_modify", Enabled: false, Risk: RiskCritical,
			RequiresAdminToken: true, RequiresSandbox: true,
		},
		"finance":         {Capability: "finance", Enabled: true, Risk: RiskMedium},
		"web_search":      {Capability: "web_search", Enabled: true, Risk: RiskLow},
		"code_generation": {Capability: "code_generation", Enabled: true, Risk: RiskMedium, RequiresSandbox: true},
		"identity":        {Capability: "identity", Enabled: true, Risk: RiskLow},
		"memory":          {Capability: "memory", Enabled: true, Risk: RiskLow},
		"news":            {Capability: "news", Enabled: true, Risk: RiskLow},
	}
}

// AuditEntry is one recorded allow/deny decision.
type AuditEntry struct {
	Timestamp  time.Time
	Capability string
	PluginID   string
	Allowed    bool
	Reason     string
	Stage      string // "filter" or "invoke"
}

// AuditSink receives every audit decision in addition to the in-memory
// ring, for installations wanting durable audit storage.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Gate holds the policy table and the audit ring. Policy reads are
// lock-free (atomic pointer swap on enable/disable); the audit ring
// uses its own mutex since every decision writes to it.
type Gate struct {
	policies atomic.Pointer[map[string]Policy]

	auditMu   sync.Mutex
	auditRing []AuditEntry
	auditCap  int
	sink      AuditSink

	log logger.Logger
}

// New builds a Gate with the default policy table and an in-memory
// audit ring bounded to capacity (default 10,000).
func New(capacity int, sink AuditSink, log logger.Logger) *Gate {
	if capacity <= 0 {
		capacity = 10000
	}
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	g := &Gate{
		auditCap: capacity,
		sink:     sink,
		log:      log.WithField("component", "safety_gate"),
	}
	table := defaultPolicyTable()
	g.policies.Store(&table)
	return g
}

// SetPolicy atomically installs pol, replacing any existing row for
// pol.Capability. Used to enable a capability once an admin token is
// presented, or to adjust a plugin's RiskProfile-derived policy.
func (g *Gate) SetPolicy(pol Policy) {
	for {
		old := g.policies.Load()
		next := make(map[string]Policy, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		next[pol.Capability] = pol
		if g.policies.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Policy returns the current policy for a capability tag. Unknown
// capabilities default to enabled/low-risk.
func (g *Gate) Policy(capability string) Policy {
	table := *g.policies.Load()
	if p, ok := table[capability]; ok {
		return p
	}
	return Policy{Capability: capability, Enabled: true, Risk: RiskLow}
}

// Allow decides whether invoking pluginID (which declares capability)
// should proceed, given the admin tokens presented with the query.
// stage is "filter" (candidate filtering) or "invoke" (the race-safe
// final check before Handle is called).
func (g *Gate) Allow(ctx context.Context, pluginID, capability string, hasAdminToken bool, stage string) bool {
	pol := g.Policy(capability)

	allowed := pol.Enabled || (pol.RequiresAdminToken && hasAdminToken)
	reason := "capability enabled"
	if !pol.Enabled {
		if pol.RequiresAdminToken && hasAdminToken {
			reason = "enabled via admin token override"
		} else {
			reason = "capability disabled by default policy"
		}
	}

	g.audit(ctx, AuditEntry{
		Timestamp:  time.Now(),
		Capability: capability,
		PluginID:   pluginID,
		Allowed:    allowed,
		Reason:     reason,
		Stage:      stage,
	})

	return allowed
}

// RequiresSandbox reports whether capability's policy mandates
// sandbox enforcement for any invocation.
func (g *Gate) RequiresSandbox(capability string) bool {
	return g.Policy(capability).RequiresSandbox
}

func (g *Gate) audit(ctx context.Context, e AuditEntry) {
	g.auditMu.Lock()
	g.auditRing = append(g.auditRing, e)
	if len(g.auditRing) > g.auditCap {
		g.auditRing = g.auditRing[len(g.auditRing)-g.auditCap:]
	}
	g.auditMu.Unlock()

	g.log.Info("safety decision", "plugin_id", e.PluginID, "capability", e.Capability,
		"allowed", e.Allowed, "stage", e.Stage, "reason", e.Reason)

	if g.sink != nil {
		g.sink.Record(ctx, e)
	}
}

// AuditHistory returns a copy of the current audit ring, most recent
// last.
func (g *Gate) AuditHistory() []AuditEntry {
	g.auditMu.Lock()
	defer g.auditMu.Unlock()
	out := make([]AuditEntry, len(g.auditRing))
	copy(out, g.auditRing)
	return out
}

// FilterCandidates applies Allow at the "filter" stage, removing any
// handler id whose capability is denied. capabilityOf maps a handler
// id to the capability tag that governs it.
func (g *Gate) FilterCandidates(ctx context.Context, candidates []string, capabilityOf func(id string) string, hasAdminToken bool) []string {
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if g.Allow(ctx, id, capabilityOf(id), hasAdminToken, "filter") {
			out = append(out, id)
		}
	}
	return out
}
