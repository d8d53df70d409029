package patch

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adversim/warden/internal/metrics"
)

// scriptedExec fakes the gated runner: the respond func decides each
// command's output and exit code, and every command is recorded.
type scriptedExec struct {
	commands []string
	respond  func(command string) (string, int)
}

func (e *scriptedExec) Run(_ context.Context, command string) (string, int) {
	e.commands = append(e.commands, command)
	if e.respond != nil {
		return e.respond(command)
	}
	return "", 0
}

// queuedGen returns canned responses in order, then empty strings.
type queuedGen struct {
	responses []string
	calls     int
}

func (g *queuedGen) Generate(context.Context, string, string) (string, error) {
	g.calls++
	if len(g.responses) == 0 {
		return "", nil
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return resp, nil
}

func newManager(exec *scriptedExec, gen *queuedGen) (*Manager, *metrics.Session) {
	session := metrics.NewSession()
	return NewManager(exec, gen, session, true, zerolog.Nop()), session
}

func TestRemediateKnownSSHPasswordAuth(t *testing.T) {
	exec := &scriptedExec{
		respond: func(command string) (string, int) {
			if strings.HasPrefix(command, "grep") {
				return "PasswordAuthentication no\n", 0
			}
			return "", 0
		},
	}
	mgr, _ := newManager(exec, &queuedGen{})

	result := mgr.Remediate(context.Background(),
		"SSH password authentication enabled (brute force attack vector)",
		"PasswordAuthentication yes in sshd_config", "10.0.0.9")

	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, "Disable SSH password authentication", result.Description)
	assert.True(t, result.Validated)

	// Comment templates are dropped; the resolved set is backup, sed edit,
	// service restart.
	require.Len(t, result.PatchCommands, 3)
	assert.Contains(t, result.PatchCommands[0], "cp /etc/ssh/sshd_config /etc/ssh/sshd_config.bak."+result.Timestamp)
	assert.Contains(t, result.PatchCommands[1], "sed -i")
	assert.Contains(t, result.PatchCommands[1], "PasswordAuthentication no")
	assert.Equal(t, "systemctl restart sshd", result.PatchCommands[2])

	sedCount := 0
	restartCount := 0
	for _, cmd := range result.PatchCommands {
		if strings.HasPrefix(cmd, "sed") {
			sedCount++
		}
		if strings.HasPrefix(cmd, "systemctl restart") {
			restartCount++
		}
	}
	assert.Equal(t, 1, sedCount)
	assert.Equal(t, 1, restartCount)

	require.NotNil(t, result.Validation)
	assert.Equal(t, "PasswordAuthentication no", result.Validation.Expected)
	assert.Equal(t, 0, result.Validation.ExitCode)

	require.Len(t, result.RollbackCommands, 2)
	assert.Contains(t, result.RollbackCommands[0], result.Timestamp)
}

func TestRemediateCatalogOrderFirstMatchWins(t *testing.T) {
	exec := &scriptedExec{respond: func(string) (string, int) { return "PasswordAuthentication no", 0 }}
	mgr, _ := newManager(exec, &queuedGen{})

	// Context mentions both password auth and root login; the earlier
	// catalog entry must win.
	result := mgr.Remediate(context.Background(),
		"SSH misconfiguration",
		"PasswordAuthentication yes\nPermitRootLogin yes", "target")

	assert.Equal(t, "Disable SSH password authentication", result.Description)
}

func TestRemediateRollbackOnFailure(t *testing.T) {
	exec := &scriptedExec{
		respond: func(command string) (string, int) {
			if strings.HasPrefix(command, "sed") {
				return "sed: permission denied", 1
			}
			return "", 0
		},
	}
	mgr, _ := newManager(exec, &queuedGen{})

	result := mgr.Remediate(context.Background(),
		"SSH root login permitted",
		"PermitRootLogin yes", "target")

	assert.Equal(t, StatusFailed, result.Status)
	assert.False(t, result.Validated)
	assert.Contains(t, result.Error, "sed")

	// Apply stops at the failing sed; both rollback commands still run.
	var rollbacks []string
	for _, cmd := range exec.commands {
		if strings.HasPrefix(cmd, "cp /etc/ssh/sshd_config.bak.") || (strings.HasPrefix(cmd, "systemctl") && len(rollbacks) > 0) {
			rollbacks = append(rollbacks, cmd)
		}
	}
	assert.Len(t, rollbacks, 2)
	// No validation after a failed apply.
	assert.Nil(t, result.Validation)
}

func TestRemediateBlockedCommandFailsLifecycle(t *testing.T) {
	exec := &scriptedExec{
		respond: func(command string) (string, int) {
			if strings.HasPrefix(command, "sed") {
				return "BLOCKED: not in whitelist", -1
			}
			return "", 0
		},
	}
	mgr, _ := newManager(exec, &queuedGen{})

	result := mgr.Remediate(context.Background(),
		"SSH password authentication enabled",
		"PasswordAuthentication yes", "target")

	assert.Equal(t, StatusFailed, result.Status)
}

func TestRemediateWorldWritableSentinel(t *testing.T) {
	exec := &scriptedExec{
		respond: func(command string) (string, int) {
			if strings.HasPrefix(command, "stat -c") {
				return "755\n", 0
			}
			return "", 0
		},
	}
	mgr, _ := newManager(exec, &queuedGen{})

	result := mgr.Remediate(context.Background(),
		"World-writable files found: /var/www/uploads/a.php",
		"/var/www/uploads/a.php is 777", "target")

	assert.Equal(t, "Fix world-writable file permissions", result.Description)
	assert.Equal(t, StatusApplied, result.Status)
	// The not-777 sentinel validates on exit 0 regardless of the exact mode.
	assert.True(t, result.Validated)
	assert.Equal(t, ExpectNot777, result.Validation.Expected)

	// The target file resolved from the context, not the default.
	assert.Contains(t, result.PatchCommands[1], "/var/www/uploads/a.php")
}

func TestRemediateTargetFileFromContext(t *testing.T) {
	exec := &scriptedExec{respond: func(string) (string, int) { return "0", 0 }}
	mgr, _ := newManager(exec, &queuedGen{})

	result := mgr.Remediate(context.Background(),
		"Suspicious SUID binaries found somewhere with suid bits",
		"suspicious /tmp/rootsuid binary", "target")

	assert.Equal(t, "Remove SUID bit from suspicious binaries", result.Description)
	assert.Contains(t, result.PatchCommands[1], "/tmp/rootsuid")
}

func TestRemediateGeneratedFallback(t *testing.T) {
	exec := &scriptedExec{
		respond: func(command string) (string, int) {
			if strings.HasPrefix(command, "sysctl -n") {
				return "1\n", 0
			}
			return "", 0
		},
	}
	gen := &queuedGen{responses: []string{
		"```bash\nsysctl -w net.ipv4.conf.all.rp_filter=1\n```",
		"```bash\nsysctl -w net.ipv4.conf.all.rp_filter=0\n```",
		"```bash\nsysctl -n net.ipv4.conf.all.rp_filter\n```",
	}}
	mgr, session := newManager(exec, gen)

	result := mgr.Remediate(context.Background(),
		"Reverse path filtering disabled", "rp_filter is 0 on all interfaces", "target")

	assert.Equal(t, StatusApplied, result.Status)
	assert.Contains(t, result.Description, "Generated patch for:")
	assert.Equal(t, []string{"sysctl -w net.ipv4.conf.all.rp_filter=1"}, result.PatchCommands)
	assert.Equal(t, []string{"sysctl -w net.ipv4.conf.all.rp_filter=0"}, result.RollbackCommands)
	require.NotNil(t, result.Validation)
	assert.Equal(t, "sysctl -n net.ipv4.conf.all.rp_filter", result.Validation.Command)
	// Generated patches carry no expected-outcome string: exit 0 validates.
	assert.True(t, result.Validated)

	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, 3, session.LLMCalls)
}

func TestRemediateGenerationFailureHasNoSideEffects(t *testing.T) {
	exec := &scriptedExec{}
	gen := &queuedGen{responses: []string{"I am unable to determine a fix for this."}}
	mgr, _ := newManager(exec, gen)

	result := mgr.Remediate(context.Background(),
		"Unknown exotic vulnerability", "no useful signal here", "target")

	assert.Equal(t, StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, exec.commands, "nothing may execute when no patch was produced")

	// Every lifecycle, including aborted ones, lands in history.
	require.Len(t, mgr.History(), 1)
	assert.Equal(t, StatusFailed, mgr.History()[0].Status)
}

func TestRemediateDryRun(t *testing.T) {
	exec := &scriptedExec{}
	session := metrics.NewSession()
	mgr := NewManager(exec, &queuedGen{}, session, false, zerolog.Nop())

	result := mgr.Remediate(context.Background(),
		"SSH password authentication enabled",
		"PasswordAuthentication yes", "target")

	assert.Equal(t, StatusGeneratedOnly, result.Status)
	assert.NotEmpty(t, result.PatchCommands)
	assert.False(t, result.Validated)
	assert.Empty(t, exec.commands)
}

func TestRemediateValidationMismatch(t *testing.T) {
	exec := &scriptedExec{
		respond: func(command string) (string, int) {
			if strings.HasPrefix(command, "grep") {
				// Patch applied but the config still shows yes.
				return "PasswordAuthentication yes\n", 0
			}
			return "", 0
		},
	}
	mgr, _ := newManager(exec, &queuedGen{})

	result := mgr.Remediate(context.Background(),
		"SSH password authentication enabled",
		"PasswordAuthentication yes", "target")

	assert.Equal(t, StatusApplied, result.Status)
	assert.False(t, result.Validated)
}

func TestExtractTargetFile(t *testing.T) {
	tests := []struct {
		text     string
		expected string
	}{
		{"found /etc/cron.d/backup with mode 666", "/etc/cron.d/backup"},
		{"binary at /tmp/evil-suid here", "/tmp/evil-suid"},
		{"first /var/tmp/a then /etc/passwd", "/var/tmp/a"},
		{"no path here", ""},
		{"relative path ./foo/bar", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, extractTargetFile(tt.text), "text: %s", tt.text)
	}
}

func TestCatalogDetectPatterns(t *testing.T) {
	tests := []struct {
		key  string
		text string
	}{
		{"ssh_password_auth", "passwordauthentication yes in sshd_config"},
		{"ssh_root_login", "permitrootlogin yes"},
		{"suid_binary", "/tmp/rootsuid found"},
		{"sudo_misconfig", "webadmin all=(all) nopasswd: /usr/bin/find"},
		{"world_writable", "world-writable files found"},
		{"cron_insecure", "cron job world readable and writable"},
	}
	for _, tt := range tests {
		entry := matchKnown(tt.text, "")
		if assert.NotNil(t, entry, "no match for %s", tt.key) {
			assert.Equal(t, tt.key, entry.Key, fmt.Sprintf("text %q matched wrong entry", tt.text))
		}
	}

	assert.Nil(t, matchKnown("completely benign text", ""))
}
