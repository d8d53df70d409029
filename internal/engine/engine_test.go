package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adversim/warden/internal/knowledge"
	"github.com/adversim/warden/internal/metrics"
	"github.com/adversim/warden/internal/patch"
)

type stubSearch struct {
	excerpts []knowledge.Excerpt
	err      error
	queries  []string
}

func (s *stubSearch) Search(_ context.Context, query string, _ int) ([]knowledge.Excerpt, error) {
	s.queries = append(s.queries, query)
	return s.excerpts, s.err
}

type stubGen struct {
	respond func(prompt, system string) string
	prompts []string
}

func (g *stubGen) Generate(_ context.Context, prompt, system string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.respond != nil {
		return g.respond(prompt, system), nil
	}
	return "", nil
}

type stubExec struct {
	respond  func(command string) (string, int)
	commands []string
}

func (e *stubExec) Run(_ context.Context, command string) (string, int) {
	e.commands = append(e.commands, command)
	if e.respond != nil {
		return e.respond(command)
	}
	return "", 0
}

type stubPatcher struct {
	result patch.Result
	calls  []string
}

func (p *stubPatcher) Remediate(_ context.Context, vulnerability, _, _ string) patch.Result {
	p.calls = append(p.calls, vulnerability)
	return p.result
}

// planOnly answers planning prompts with one fenced command and feedback
// prompts with prose the controller must not parse.
func planOnly(command string) func(prompt, system string) string {
	return func(prompt, _ string) string {
		if strings.Contains(prompt, "What should I check or fix next?") ||
			strings.Contains(prompt, "what should I try next?") {
			return "Keep investigating the service configuration."
		}
		return "**Command**:\n```bash\n" + command + "\n```"
	}
}

func newEngine(exec *stubExec, gen *stubGen, search *stubSearch, patcher Remediator, maxIter int) (*Engine, *metrics.Session) {
	session := metrics.NewSession()
	eng := New(Options{
		Exec:          exec,
		Gen:           gen,
		Search:        search,
		Patcher:       patcher,
		Session:       session,
		Target:        "10.0.0.9",
		MaxIterations: maxIter,
		Logger:        zerolog.Nop(),
	})
	return eng, session
}

func TestDefendMeetsObjectiveAfterMinimumDwell(t *testing.T) {
	exec := &stubExec{respond: func(string) (string, int) {
		return "PasswordAuthentication yes\n", 0
	}}
	gen := &stubGen{respond: planOnly("cat /etc/ssh/sshd_config")}
	search := &stubSearch{excerpts: []knowledge.Excerpt{{Text: "Disable password auth."}}}
	patcher := &stubPatcher{result: patch.Result{Status: patch.StatusApplied, Validated: true, Description: "Disable SSH password authentication"}}

	eng, session := newEngine(exec, gen, search, patcher, 10)
	met := eng.Defend(context.Background(), "Detect and remediate SSH security weaknesses")

	assert.True(t, met)
	// A patched critical finding at iteration 1 must not end the run before
	// the minimum dwell.
	assert.Equal(t, 3, session.TotalIterations)
	assert.Equal(t, 1, session.HardeningActions)
	assert.Equal(t, 1, session.ObjectivesCompleted)
	assert.Equal(t, 0, session.ObjectivesFailed)

	// The same misconfiguration is re-detected each iteration until the stub
	// target changes state; each detection is remediated.
	assert.Equal(t, 3, session.VulnsDetected)
	assert.Equal(t, 3, session.PatchesApplied)
	assert.Equal(t, 3, session.PatchesValidated)
	require.Len(t, eng.Findings(), 3)
	for _, f := range eng.Findings() {
		assert.True(t, f.Patched)
	}

	// No feedback call after the final (successful) iteration: 3 plans + 2
	// feedbacks.
	assert.Len(t, gen.prompts, 5)
	assert.Len(t, session.IterationTimes, 3)
}

func TestDefendBudgetExhausted(t *testing.T) {
	exec := &stubExec{respond: func(string) (string, int) {
		return "PasswordAuthentication yes\n", 0
	}}
	gen := &stubGen{respond: planOnly("cat /etc/ssh/sshd_config")}
	patcher := &stubPatcher{result: patch.Result{Status: patch.StatusApplied, Validated: true}}

	eng, session := newEngine(exec, gen, &stubSearch{}, patcher, 2)
	met := eng.Defend(context.Background(), "harden ssh")

	assert.False(t, met)
	assert.Equal(t, 2, session.TotalIterations)
	assert.Equal(t, 0, session.HardeningActions)
	assert.Equal(t, 1, session.ObjectivesFailed)
}

func TestDefendUnpatchedCriticalBlocksCompletion(t *testing.T) {
	exec := &stubExec{respond: func(string) (string, int) {
		return "PermitRootLogin yes\n", 0
	}}
	gen := &stubGen{respond: planOnly("cat /etc/ssh/sshd_config")}
	patcher := &stubPatcher{result: patch.Result{Status: patch.StatusFailed, Error: "patch command failed: sed"}}

	eng, session := newEngine(exec, gen, &stubSearch{}, patcher, 4)
	met := eng.Defend(context.Background(), "harden ssh")

	assert.False(t, met)
	assert.Equal(t, 4, session.TotalIterations)
	assert.NotEmpty(t, patcher.calls)
	assert.Equal(t, 0, session.PatchesApplied)
	for _, f := range eng.Findings() {
		assert.False(t, f.Patched)
	}
}

func TestDefendStagnationTerminatesWithoutAlternative(t *testing.T) {
	exec := &stubExec{}
	gen := &stubGen{respond: func(prompt, _ string) string {
		if strings.Contains(prompt, "Suggest a DIFFERENT defensive technique.") {
			return "I have no further ideas."
		}
		if strings.Contains(prompt, "What should I check or fix next?") {
			return "Looks fine."
		}
		return "```bash\necho probe\n```"
	}}
	search := &stubSearch{}

	eng, session := newEngine(exec, gen, search, &stubPatcher{}, 10)
	met := eng.Defend(context.Background(), "audit the system")

	assert.False(t, met)
	// Three identical leading tokens fill the window; the fourth iteration
	// detects stagnation, re-queries, fails to replan, and terminates.
	assert.Len(t, exec.commands, 3)
	assert.Equal(t, 4, session.TotalIterations)
	assert.Contains(t, search.queries, "audit the system alternative defensive technique")
	assert.Equal(t, 1, session.ObjectivesFailed)
}

func TestDefendStagnationRecoversWithAlternative(t *testing.T) {
	exec := &stubExec{}
	gen := &stubGen{respond: func(prompt, _ string) string {
		if strings.Contains(prompt, "Suggest a DIFFERENT defensive technique.") {
			return "```bash\nfind / -perm -4000 2>/dev/null\n```"
		}
		if strings.Contains(prompt, "What should I check or fix next?") {
			return "Looks fine."
		}
		return "```bash\necho probe\n```"
	}}

	eng, _ := newEngine(exec, gen, &stubSearch{}, &stubPatcher{}, 4)
	eng.Defend(context.Background(), "audit the system")

	require.Len(t, exec.commands, 4)
	assert.Equal(t, "find / -perm -4000 2>/dev/null", exec.commands[3])
}

func TestDefendSkipsIterationWithoutCommand(t *testing.T) {
	exec := &stubExec{}
	gen := &stubGen{respond: func(string, string) string {
		return "I recommend reviewing the system documentation first."
	}}

	eng, session := newEngine(exec, gen, &stubSearch{}, &stubPatcher{}, 3)
	met := eng.Defend(context.Background(), "audit the system")

	assert.False(t, met)
	assert.Empty(t, exec.commands)
	assert.Equal(t, 3, session.TotalIterations)
	// Skipped iterations record no duration.
	assert.Empty(t, session.IterationTimes)
}

func TestDefendKnowledgeFailureDegrades(t *testing.T) {
	exec := &stubExec{}
	gen := &stubGen{respond: planOnly("echo ok")}
	search := &stubSearch{err: errors.New("connection refused")}

	eng, session := newEngine(exec, gen, search, &stubPatcher{}, 1)
	eng.Defend(context.Background(), "audit the system")

	assert.Equal(t, 1, session.RAGQueries)
	require.NotEmpty(t, gen.prompts)
	assert.Contains(t, gen.prompts[0], "No relevant defensive techniques found.")
	// The loop still executed the planned command.
	assert.Equal(t, []string{"echo ok"}, exec.commands)
}

func TestAttackSucceedsOnAccessMarker(t *testing.T) {
	exec := &stubExec{respond: func(command string) (string, int) {
		if strings.Contains(command, "ssh") {
			return "Welcome to Ubuntu 22.04\nLast login: Mon", 0
		}
		return "", 0
	}}
	gen := &stubGen{respond: planOnly("sshpass -p admin ssh root@10.0.0.9 id")}

	eng, session := newEngine(exec, gen, &stubSearch{}, nil, 5)
	success := eng.Attack(context.Background(), "Gain SSH access to target using weak credentials")

	assert.True(t, success)
	assert.Equal(t, 1, session.TotalIterations)
	assert.Equal(t, 1, session.ObjectivesCompleted)
	// Success ends the loop without a feedback call.
	assert.Len(t, gen.prompts, 1)
}

func TestAttackExhaustsBudget(t *testing.T) {
	exec := &stubExec{respond: func(string) (string, int) {
		return "Connection refused", 1
	}}
	gen := &stubGen{respond: func(prompt, _ string) string {
		if strings.Contains(prompt, "what should I try next?") {
			return "Try another port."
		}
		return "```bash\ncurl -s http://10.0.0.9:8080\n```"
	}}

	eng, session := newEngine(exec, gen, &stubSearch{}, nil, 2)
	success := eng.Attack(context.Background(), "gain access")

	assert.False(t, success)
	assert.Equal(t, 1, session.ObjectivesFailed)
	assert.Equal(t, 2, session.TotalIterations)
}

func TestAccessGained(t *testing.T) {
	tests := []struct {
		name    string
		command string
		output  string
		code    int
		want    bool
	}{
		{"ssh welcome banner", "ssh root@host", "Welcome to Ubuntu", 0, true},
		{"ssh last login", "sshpass -p x ssh user@host", "Last Login: yesterday", 0, true},
		{"flag capture", "cat /root/flag.txt", "FLAG{got-it}", 0, true},
		{"ssh marker with failure code", "ssh root@host", "Welcome", 1, false},
		{"marker without ssh", "curl http://host", "welcome page", 0, false},
		{"ssh without marker", "ssh root@host", "Permission denied", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, accessGained(tt.command, tt.output, tt.code))
		})
	}
}

func TestIsRepeatingComparesLeadingToken(t *testing.T) {
	eng := New(Options{Logger: zerolog.Nop(), Session: metrics.NewSession()})

	eng.history = []string{"nmap -sV host", "nmap -p- host", "nmap -sC host"}
	assert.True(t, eng.isRepeating("nmap -A host"))
	assert.False(t, eng.isRepeating("curl http://host"))

	// Window not yet full.
	eng.history = []string{"nmap -sV host", "nmap -p- host"}
	assert.False(t, eng.isRepeating("nmap -A host"))

	// Any differing leading token inside the window breaks the streak.
	eng.history = []string{"nmap -sV host", "curl http://host", "nmap -sC host"}
	assert.False(t, eng.isRepeating("nmap -A host"))
}
