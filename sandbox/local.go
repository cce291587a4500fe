package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	fame "github.com/fame-ai/orchestrator"
	"github.com/fame-ai/orchestrator/logger"
)

// localRunCommand maps a language to the interpreter invoked directly
// on the host. There is no container, no network namespace, no cgroup
// — this executor exists purely for local development against a
// machine without Docker installed.
var localRunCommand = map[string]func(code string) *exec.Cmd{
	"python":     func(code string) *exec.Cmd { return exec.Command("python3", "-c", code) },
	"javascript": func(code string) *exec.Cmd { return exec.Command("node", "-e", code) },
}

// LocalExecutor runs code directly on the host with only a wall-clock
// timeout enforced. It MUST refuse whenever the caller's limits demand
// real isolation, since it cannot provide any.
type LocalExecutor struct {
	log logger.Logger
}

func NewLocalExecutor(log logger.Logger) *LocalExecutor {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &LocalExecutor{log: log.WithField("component", "sandbox_local")}
}

// Available always reports false: this executor never provides real
// process isolation, regardless of host capability.
func (l *LocalExecutor) Available() bool { return false }

func (l *LocalExecutor) Run(ctx context.Context, codeBlob, language string, limits Limits) (*fame.SandboxReport, error) {
	if limits.RequireIsolation {
		return nil, fmt.Errorf("%w: local executor cannot provide isolation", fame.ErrSandboxUnavailable)
	}

	build, ok := localRunCommand[language]
	if !ok {
		return nil, fmt.Errorf("sandbox: unsupported language %q for local executor", language)
	}

	runCtx, cancel := context.WithTimeout(ctx, limits.WallTimeout)
	defer cancel()

	cmd := build(codeBlob)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("sandbox: start local process: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	killedReason := fame.KilledNone
	var exitCode int

	select {
	case <-runCtx.Done():
		l.killProcessGroup(cmd)
		<-done // guarantee the process is reaped before we return
		killedReason = fame.KilledTimeout
		exitCode = -1
	case err := <-done:
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
			}
			if killedReason == fame.KilledNone && exitCode != 0 {
				killedReason = fame.KilledOther
			}
		}
	}

	stdoutStr, stdoutTrunc := truncate(stdout.Bytes())
	stderrStr, stderrTrunc := truncate(stderr.Bytes())

	return &fame.SandboxReport{
		ExitCode:        exitCode,
		Stdout:          stdoutStr,
		Stderr:          stderrStr,
		StdoutTruncated: stdoutTrunc,
		StderrTruncated: stderrTrunc,
		WallMs:          time.Since(start).Milliseconds(),
		KilledReason:    killedReason,
	}, nil
}

// killProcessGroup sends SIGKILL to cmd's own process only, ignoring
// errors — it may have already exited between the timeout firing and
// this call, which is not itself a failure. Child processes it started
// are not signalled.
func (l *LocalExecutor) killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGKILL)
}
