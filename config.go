package fame

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config assembles the FAME_* environment variables recognized by the
// orchestrator. Zero values are never used directly; Load() always
// fills in the documented defaults.
type Config struct {
	QueryTimeout        time.Duration
	QuarantineCore      bool
	QuarantineAllowFile string
	SessionTurns        int
	SessionIdleTimeout  time.Duration
	SandboxWall         time.Duration
	SandboxMemMB        int
	SandboxCPU          float64
	AdminTokens         []string
}

// Load builds a Config from the environment, applying the default
// values for anything unset.
func Load() *Config {
	c := &Config{
		QueryTimeout:       durationSecondsEnv("FAME_QUERY_TIMEOUT", 60*time.Second),
		SessionTurns:       intEnv("FAME_SESSION_TURNS", 5),
		SessionIdleTimeout: durationSecondsEnv("FAME_SESSION_IDLE_TIMEOUT_S", 1800*time.Second),
		SandboxWall:        durationMsEnv("FAME_SANDBOX_WALL_MS", 30*time.Second),
		SandboxMemMB:       intEnv("FAME_SANDBOX_MEM_MB", 512),
		SandboxCPU:         floatEnv("FAME_SANDBOX_CPU", 0.5),
	}

	if v := os.Getenv("FAME_QUARANTINE_CORE"); v != "" {
		c.QuarantineCore = true
		// FAME_QUARANTINE_CORE may itself be "true"/"1" (quarantine with
		// whatever allow-list the registry was configured with) or a
		// path to a YAML allow-list file.
		if v != "true" && v != "1" {
			c.QuarantineAllowFile = v
		}
	}

	if v := os.Getenv("FAME_ADMIN_TOKENS"); v != "" {
		for _, tok := range strings.Split(v, ",") {
			tok = strings.TrimSpace(tok)
			if tok != "" {
				c.AdminTokens = append(c.AdminTokens, tok)
			}
		}
	}

	return c
}

// HasAdminToken reports whether tok is present in the configured
// admin token list.
func (c *Config) HasAdminToken(tok string) bool {
	if tok == "" {
		return false
	}
	for _, t := range c.AdminTokens {
		if t == tok {
			return true
		}
	}
	return false
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func durationSecondsEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

func durationMsEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Millisecond
}
