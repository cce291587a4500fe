package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	fame "github.com/fame-ai/orchestrator"
	"github.com/fame-ai/orchestrator/logger"
)

// knownCapabilities is the closed set of capability tags the registry
// accepts; a plugin declaring anything outside it fails validation.
var knownCapabilities = map[string]bool{
	"finance":          true,
	"web_search":       true,
	"code_generation":  true,
	"identity":         true,
	"security":         true,
	"network_control":  true,
	"system_modify":    true,
	"memory":           true,
	"news":             true,
}

// RegisterKnownCapability extends the accepted capability set. Used by
// embedding binaries that introduce domain-specific capability tags
// beyond the reference set above.
func RegisterKnownCapability(tag string) {
	knownCapabilities[tag] = true
}

// StartupBudget is the maximum time Init may take (default 5s).
var StartupBudget = 5 * time.Second

// Registry holds validated plugin instances for the process lifetime.
// Registration is one-shot; reads after startup take the read side of
// the registry's own read-mostly RWMutex.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // registration order, for deterministic iteration
	log     logger.Logger

	quarantine bool
	allowList  map[string]bool
}

// New builds an empty Registry. When quarantine is true, only plugins
// whose id appears in allowList are accepted by Register; all others
// are skipped with a logged reason.
func New(quarantine bool, allowList []string, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	allow := make(map[string]bool, len(allowList))
	for _, id := range allowList {
		allow[id] = true
	}
	return &Registry{
		entries:    make(map[string]*entry),
		log:        log.WithField("component", "registry"),
		quarantine: quarantine,
		allowList:  allow,
	}
}

// manager is the default Manager handed to Init; sandboxAvailable is
// supplied by whoever wires the registry to a sandbox executor.
type manager struct {
	sandboxAvailable bool
}

func (m manager) SandboxAvailable() bool { return m.sandboxAvailable }

// Register validates and installs a plugin. Duplicate ids lose the
// second registration; this is logged and returned as an error wrapping
// fame.ErrDuplicatePlugin, and the first registration stays in place.
func (r *Registry) Register(p Plugin, dangerous bool, priority int, sandboxAvailable bool) error {
	if r.quarantine && !r.allowList[p.ID()] {
		r.log.Info("plugin skipped by quarantine allow-list", "plugin_id", p.ID())
		return nil
	}

	meta := p.Metadata()
	for _, cap := range meta.Capabilities {
		if !knownCapabilities[cap] {
			err := fmt.Errorf("%w: %s declares %q", fame.ErrUnknownCapability, p.ID(), cap)
			r.log.Error("plugin rejected", "plugin_id", p.ID(), "error", err.Error())
			return err
		}
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("%w: init panicked: %v", fame.ErrPluginLoad, rec)
			}
		}()
		done <- p.Init(manager{sandboxAvailable: sandboxAvailable})
	}()

	select {
	case err := <-done:
		if err != nil {
			wrapped := fmt.Errorf("%w: %s: %v", fame.ErrPluginLoad, p.ID(), err)
			r.log.Error("plugin init failed", "plugin_id", p.ID(), "error", wrapped.Error())
			return wrapped
		}
	case <-time.After(StartupBudget):
		err := fmt.Errorf("%w: %s: init exceeded startup budget %s", fame.ErrPluginLoad, p.ID(), StartupBudget)
		r.log.Error("plugin init timed out", "plugin_id", p.ID())
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[p.ID()]; exists {
		r.log.Warn("duplicate plugin id, second registration ignored", "plugin_id", p.ID())
		return fmt.Errorf("%w: %s", fame.ErrDuplicatePlugin, p.ID())
	}

	r.entries[p.ID()] = &entry{
		plugin:       p,
		meta:         meta,
		dangerous:    dangerous,
		priority:     priority,
		registeredAt: time.Now(),
	}
	r.order = append(r.order, p.ID())
	r.log.Info("plugin registered", "plugin_id", p.ID(), "capabilities", meta.Capabilities)
	return nil
}

// List returns every registered plugin id, in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the plugin registered under id, if any.
func (r *Registry) Get(id string) (Plugin, Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, Metadata{}, false
	}
	return e.plugin, e.meta, true
}

// IsDangerous reports whether id was registered with the danger flag.
func (r *Registry) IsDangerous(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return ok && e.dangerous
}

// FindByCapability returns plugin ids declaring tag, ordered by
// descending declared priority then registration order.
func (r *Registry) FindByCapability(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		id       string
		priority int
		order    int
	}
	var matches []scored
	for i, id := range r.order {
		e := r.entries[id]
		for _, c := range e.meta.Capabilities {
			if c == tag {
				matches = append(matches, scored{id: id, priority: e.priority, order: i})
				break
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].priority != matches[j].priority {
			return matches[i].priority > matches[j].priority
		}
		return matches[i].order < matches[j].order
	})

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.id
	}
	return out
}

// Len reports how many plugins are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
