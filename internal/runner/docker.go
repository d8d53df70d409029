package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"

	"github.com/adversim/warden/internal/audit"
	"github.com/adversim/warden/internal/gate"
	"github.com/adversim/warden/internal/metrics"
)

// DockerRunner executes gated commands inside a named lab container via the
// Docker exec API, for exercises where the target host is a container. Gate,
// audit, and status mapping are identical to the host runner.
type DockerRunner struct {
	cli       *client.Client
	container string
	policy    *gate.Policy
	log       *audit.Recorder
	session   *metrics.Session
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewDockerRunner connects to the Docker daemon and verifies it is reachable.
func NewDockerRunner(containerName string, policy *gate.Policy, log *audit.Recorder, session *metrics.Session, timeout time.Duration, logger zerolog.Logger) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("Docker not available: %w", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		cli.Close()
		return nil, fmt.Errorf("Docker not available: %w", err)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DockerRunner{
		cli:       cli,
		container: containerName,
		policy:    policy,
		log:       log,
		session:   session,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Run gates command and executes it inside the target container.
func (r *DockerRunner) Run(ctx context.Context, command string) (string, int) {
	if allowed, reason := r.policy.Approve(command); !allowed {
		r.logger.Warn().Str("command", command).Str("reason", reason).Msg("command blocked")
		r.record(command, true, reason, "", "", CodeBlocked)
		return fmt.Sprintf("BLOCKED: %s", reason), CodeBlocked
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stdout, stderr, code, err := r.execInContainer(execCtx, command)

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		msg := fmt.Sprintf("[TIMEOUT] Command exceeded %s", r.timeout)
		r.record(command, false, "", msg, stderr, CodeTimeout)
		return msg, CodeTimeout
	}
	if err != nil {
		msg := fmt.Sprintf("ERROR: %s", err)
		r.record(command, false, "", msg, stderr, CodeFault)
		return msg, CodeFault
	}

	r.record(command, false, "", stdout, stderr, code)
	return stdout, code
}

func (r *DockerRunner) execInContainer(ctx context.Context, command string) (string, string, int, error) {
	execResp, err := r.cli.ContainerExecCreate(ctx, r.container, types.ExecConfig{
		Cmd:          []string{"sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := r.cli.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return stdout.String(), stderr.String(), 0, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := r.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return stdout.String(), stderr.String(), 0, fmt.Errorf("failed to inspect exec: %w", err)
	}

	return stdout.String(), stderr.String(), inspect.ExitCode, nil
}

func (r *DockerRunner) record(command string, blocked bool, reason, output, stderr string, code int) {
	if r.log != nil {
		if err := r.log.Append(command, blocked, reason, output, stderr, code); err != nil {
			r.logger.Error().Err(err).Msg("audit append failed")
		}
	}
	if r.session != nil {
		r.session.RecordCommand(code)
	}
}

// Close releases the Docker client.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}
