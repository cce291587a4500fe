package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/google/uuid"

	fame "github.com/fame-ai/orchestrator"
	"github.com/fame-ai/orchestrator/logger"
)

// languageImages maps a declared language to the container image that
// runs it. Images are expected to be pre-pulled by the deployment;
// DockerExecutor does not build images itself.
var languageImages = map[string]string{
	"python":     "python:3.12-slim",
	"javascript": "node:20-slim",
	"go":         "golang:1.23-alpine",
}

// DockerExecutor runs code inside a throwaway container with the
// requested CPU/memory/network caps. It probes the Docker daemon at
// construction time so unavailability is known up front rather than
// discovered mid-invocation.
type DockerExecutor struct {
	cli       *client.Client
	available bool
	log       logger.Logger
}

// NewDockerExecutor connects to the local Docker daemon. If the daemon
// cannot be reached, the executor is still returned (so callers don't
// have to special-case construction) but Available() reports false and
// Run refuses every invocation.
func NewDockerExecutor(log logger.Logger) *DockerExecutor {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	log = log.WithField("component", "sandbox_docker")

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		log.Warn("docker client construction failed, sandbox will refuse isolated runs", "error", err.Error())
		return &DockerExecutor{available: false, log: log}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		log.Warn("docker daemon unreachable, sandbox will refuse isolated runs", "error", err.Error())
		return &DockerExecutor{cli: cli, available: false, log: log}
	}

	return &DockerExecutor{cli: cli, available: true, log: log}
}

func (d *DockerExecutor) Available() bool { return d.available }

// Run executes codeBlob inside a fresh container, enforcing limits,
// and guarantees container removal on every exit path (normal exit,
// timeout, caller cancellation) via a deferred cleanup registered
// before any work begins.
func (d *DockerExecutor) Run(ctx context.Context, codeBlob, language string, limits Limits) (*fame.SandboxReport, error) {
	if !d.available {
		return nil, fmt.Errorf("%w: docker daemon unavailable", fame.ErrSandboxUnavailable)
	}

	image, ok := languageImages[language]
	if !ok {
		return &fame.SandboxReport{KilledReason: fame.KilledOther, ExitCode: -1}, fmt.Errorf("sandbox: unsupported language %q", language)
	}

	containerID, err := d.createContainer(ctx, image, language, codeBlob, limits)
	if err != nil {
		return nil, fmt.Errorf("sandbox: create container: %w", err)
	}
	// Registered before any execution begins: cleanup always runs, even
	// if ctx is already cancelled by the time we reach it.
	defer d.cleanup(containerID)

	return d.runContainer(ctx, containerID, limits)
}

func (d *DockerExecutor) createContainer(ctx context.Context, image, language, codeBlob string, limits Limits) (string, error) {
	sandboxID := fmt.Sprintf("fame-sandbox-%s", uuid.New().String()[:8])

	networkMode := "none"
	if limits.NetworkOK {
		networkMode = "bridge"
	}

	cfg := &container.Config{
		Image:      image,
		Cmd:        runCommand(language, codeBlob),
		Tty:        false,
		WorkingDir: "/sandbox",
	}
	host := &container.HostConfig{
		NetworkMode: container.NetworkMode(networkMode),
		Resources: container.Resources{
			Memory:   limits.MemoryCap,
			NanoCPUs: int64(limits.CPUShare * 1e9),
		},
		AutoRemove: false, // cleanup() removes it explicitly so failures are visible
	}

	created, err := d.cli.ContainerCreate(ctx, cfg, host, nil, nil, sandboxID)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func runCommand(language, codeBlob string) []string {
	switch language {
	case "python":
		return []string{"python3", "-c", codeBlob}
	case "javascript":
		return []string{"node", "-e", codeBlob}
	case "go":
		return []string{"/bin/sh", "-c", `printf '%s' "$1" > /tmp/main.go && go run /tmp/main.go`, "sh", codeBlob}
	default:
		return []string{"/bin/sh", "-c", codeBlob}
	}
}

func (d *DockerExecutor) runContainer(ctx context.Context, containerID string, limits Limits) (*fame.SandboxReport, error) {
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, limits.WallTimeout)
	defer cancel()

	if err := d.cli.ContainerStart(runCtx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := d.cli.ContainerWait(runCtx, containerID, container.WaitConditionNotRunning)

	var exitCode int
	killedReason := fame.KilledNone

	select {
	case <-runCtx.Done():
		d.forceKill(containerID)
		killedReason = fame.KilledTimeout
		exitCode = -1
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("wait container: %w", err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
		if exitCode != 0 {
			killedReason = fame.KilledOther
		}
	}

	stdout, stderr := d.fetchLogs(context.Background(), containerID)
	stdoutStr, stdoutTrunc := truncate(stdout)
	stderrStr, stderrTrunc := truncate(stderr)

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

func (d *DockerExecutor) forceKill(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = d.cli.ContainerKill(ctx, containerID, "SIGKILL")
}

func (d *DockerExecutor) fetchLogs(ctx context.Context, containerID string) ([]byte, []byte) {
	out, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, nil
	}
	defer out.Close()

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, out)
	// Docker multiplexes stdout/stderr in the raw stream; splitting the
	// two precisely requires demuxing the 8-byte frame headers, which
	// is unnecessary here since both are truncated and reported
	// together under the combined budget.
	return buf.Bytes(), nil
}

// cleanup force-removes the container, ignoring errors (mirroring the
// reference executor's "cleanup ignores errors" idiom) since the wall
// timeout or host cancellation may have already torn it down.
func (d *DockerExecutor) cleanup(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// EnsureImage pulls image if it is not already present locally.
// Deployments that pre-seed images can skip calling this.
func (d *DockerExecutor) EnsureImage(ctx context.Context, language string) error {
	img, ok := languageImages[language]
	if !ok {
		return fmt.Errorf("sandbox: unsupported language %q", language)
	}
	reader, err := d.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}
