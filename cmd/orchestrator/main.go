package main

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	fame "github.com/fame-ai/orchestrator"
	"github.com/fame-ai/orchestrator/fanout"
	"github.com/fame-ai/orchestrator/health"
	"github.com/fame-ai/orchestrator/logger"
	orch "github.com/fame-ai/orchestrator/orchestrator"
	"github.com/fame-ai/orchestrator/plugins/websearch"
	"github.com/fame-ai/orchestrator/registry"
	"github.com/fame-ai/orchestrator/router"
	"github.com/fame-ai/orchestrator/safety"
	"github.com/fame-ai/orchestrator/sandbox"
	"github.com/fame-ai/orchestrator/session"
	"github.com/fame-ai/orchestrator/synthesis"
	"github.com/fame-ai/orchestrator/telemetry"
)

// identityPlugin answers self-referential queries about the assistant.
type identityPlugin struct{}

func (identityPlugin) ID() string { return "identity" }
func (identityPlugin) Metadata() registry.Metadata {
	return registry.Metadata{
		Name:         "identity",
		Description:  "Answers questions about the assistant itself.",
		Capabilities: []string{"identity"},
	}
}
func (identityPlugin) Init(registry.Manager) error { return nil }
func (identityPlugin) Handle(req registry.Request) (registry.Result, error) {
	return registry.Result{
		OK:         true,
		Text:       "I'm an assistant that can look things up, check finance data, and write code for you.",
		Confidence: 0.95,
	}, nil
}

// buildWebSearchPlugin wires one HTTP provider per search API whose
// endpoint is configured via environment variable; an unconfigured
// provider is simply omitted rather than failing startup.
func buildWebSearchPlugin(log logger.Logger) *websearch.Plugin {
	var providers []websearch.Provider
	for _, p := range []struct {
		name      string
		endpoint  string
		apiKeyEnv string
	}{
		{"serpapi", os.Getenv("FAME_SERPAPI_URL"), "FAME_SERPAPI_KEY"},
		{"google_cse", os.Getenv("FAME_GOOGLE_CSE_URL"), "FAME_GOOGLE_CSE_KEY"},
		{"bing", os.Getenv("FAME_BING_SEARCH_URL"), "FAME_BING_SEARCH_KEY"},
		{"news", os.Getenv("FAME_NEWS_SEARCH_URL"), "FAME_NEWS_SEARCH_KEY"},
	} {
		if p.endpoint == "" {
			continue
		}
		providers = append(providers, websearch.NewHTTPProvider(p.name, p.endpoint, os.Getenv(p.apiKeyEnv), nil))
	}
	return websearch.New(providers, nil, log)
}

func main() {
	cfg := fame.Load()
	log := logger.NewDefaultLogger()

	tel, err := telemetry.NewOTELTelemetry("fame-orchestrator")
	if err != nil {
		log.Warn("telemetry disabled", "error", err.Error())
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tel.Shutdown(ctx)
		}()
	}

	reg := registry.New(cfg.QuarantineCore, nil, log)
	if err := reg.Register(identityPlugin{}, false, 100, false); err != nil {
		log.Error("failed to register identity plugin", "error", err.Error())
	}
	if err := reg.Register(buildWebSearchPlugin(log), false, 10, false); err != nil {
		log.Error("failed to register web search plugin", "error", err.Error())
	}

	gate := safety.New(10000, nil, log)
	sessions := session.NewMemoryStore(cfg.SessionTurns, cfg.SessionIdleTimeout)
	fanoutEng := fanout.New(log, 5*time.Second)
	synth := synthesis.New(log)
	r := router.New(reg, log)

	var sandboxExec sandbox.Executor
	dockerExec := sandbox.NewDockerExecutor(log)
	if !dockerExec.Available() {
		log.Warn("docker sandbox unavailable, falling back to local executor (dev only)")
		sandboxExec = sandbox.NewLocalExecutor(log)
	} else {
		sandboxExec = dockerExec
	}

	monitor := health.New(prometheus.DefaultRegisterer, health.Config{
		CoreCapabilities: []string{"identity", "web_search"},
		RegistryLoaded:   func() bool { return reg.Len() > 0 },
		Resolver:         reg,
	})

	o := orch.New(orch.Dependencies{
		Registry:    reg,
		Gate:        gate,
		SandboxExec: sandboxExec,
		Sessions:    sessions,
		Router:      r,
		FanoutEng:   fanoutEng,
		Synth:       synth,
		Config:      cfg,
		Log:         log,
		Monitor:     monitor,
		Observer:    monitor,
	})

	// main wires the core and demonstrates one call through it; the
	// transport that embeds this orchestrator (HTTP, gRPC, CLI) is an
	// external collaborator, not part of this module.
	resp := o.Process(context.Background(), fame.Query{
		SessionID: "demo-session",
		Text:      "who are you?",
		Source:    fame.SourceText,
	})

	log.Info("response", "text", resp.Text, "confidence", resp.Confidence, "intent", resp.Intent)
}
