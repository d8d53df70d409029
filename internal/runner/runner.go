// Package runner executes gate-approved shell commands with a hard wall-clock
// timeout and appends one audit record per invocation attempt, blocked
// attempts included.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/adversim/warden/internal/audit"
	"github.com/adversim/warden/internal/gate"
	"github.com/adversim/warden/internal/metrics"
)

// Exit statuses outside the process exit-code space. These are results, not
// errors: no condition here escalates past the runner boundary.
const (
	CodeBlocked = -1
	CodeTimeout = -2
	CodeFault   = -3
)

// DefaultTimeout bounds a single command's wall-clock time.
const DefaultTimeout = 30 * time.Second

// pipeWaitDelay bounds how long Run waits for stdio pipes to close once the
// process has exited or the deadline has killed it. Without it a backgrounded
// child inheriting stdout keeps Run blocked for the child's lifetime.
const pipeWaitDelay = time.Second

// Executor runs one command to completion and reports its output and exit
// status. Implementations never return an error; failures map into the
// status space above.
type Executor interface {
	Run(ctx context.Context, command string) (output string, exitCode int)
}

// Runner executes approved commands in a shell-interpreted subprocess on the
// local host.
type Runner struct {
	policy  *gate.Policy
	log     *audit.Recorder
	session *metrics.Session
	timeout time.Duration
	logger  zerolog.Logger
}

// New builds a host-shell runner. The metrics session is updated on every
// invocation so the command-counter conservation invariant holds regardless
// of which component issued the command.
func New(policy *gate.Policy, log *audit.Recorder, session *metrics.Session, timeout time.Duration, logger zerolog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		policy:  policy,
		log:     log,
		session: session,
		timeout: timeout,
		logger:  logger,
	}
}

// Run gates and executes command. The returned output is the full stdout;
// truncation applies only to the audit record. Exit status is the process's
// real code, or CodeBlocked/CodeTimeout/CodeFault.
func (r *Runner) Run(ctx context.Context, command string) (string, int) {
	if allowed, reason := r.policy.Approve(command); !allowed {
		r.logger.Warn().Str("command", command).Str("reason", reason).Msg("command blocked")
		r.record(command, true, reason, "", "", CodeBlocked)
		return fmt.Sprintf("BLOCKED: %s", reason), CodeBlocked
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = pipeWaitDelay

	r.logger.Debug().Str("command", command).Msg("executing")
	err := cmd.Run()

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		msg := fmt.Sprintf("[TIMEOUT] Command exceeded %s", r.timeout)
		r.record(command, false, "", msg, stderr.String(), CodeTimeout)
		return msg, CodeTimeout
	}

	// The shell exited cleanly but a background child held the pipes open past
	// the grace period. The shell's own status is success; return what it wrote.
	if errors.Is(err, exec.ErrWaitDelay) {
		r.record(command, false, "", stdout.String(), stderr.String(), 0)
		return stdout.String(), 0
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			msg := fmt.Sprintf("ERROR: %s", err)
			r.record(command, false, "", msg, stderr.String(), CodeFault)
			return msg, CodeFault
		}
		code := exitErr.ExitCode()
		r.record(command, false, "", stdout.String(), stderr.String(), code)
		return stdout.String(), code
	}

	r.record(command, false, "", stdout.String(), stderr.String(), 0)
	return stdout.String(), 0
}

func (r *Runner) record(command string, blocked bool, reason, output, stderr string, code int) {
	if r.log != nil {
		if err := r.log.Append(command, blocked, reason, output, stderr, code); err != nil {
			r.logger.Error().Err(err).Msg("audit append failed")
		}
	}
	if r.session != nil {
		r.session.RecordCommand(code)
	}
}
