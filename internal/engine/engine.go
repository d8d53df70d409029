// Package engine runs the iteration loop: query the knowledge base, plan one
// command, execute it through the gated runner, classify the result, and
// remediate critical findings. The loop terminates when the objective is met
// or the iteration budget runs out.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adversim/warden/internal/classify"
	"github.com/adversim/warden/internal/knowledge"
	"github.com/adversim/warden/internal/llm"
	"github.com/adversim/warden/internal/metrics"
	"github.com/adversim/warden/internal/parser"
	"github.com/adversim/warden/internal/patch"
	"github.com/adversim/warden/internal/runner"
)

// Loop defaults.
const (
	DefaultMaxIterations = 10
	// repetitionWindow is how many trailing commands are compared against a
	// candidate; minDwell is the earliest iteration an objective may be
	// declared met, so one lucky finding cannot end a run instantly.
	repetitionWindow = 3
	minDwell         = 3
)

const noKnowledgeContext = "No relevant defensive techniques found."

// Remediator is the patch lifecycle entry point the controller drives.
// *patch.Manager satisfies it.
type Remediator interface {
	Remediate(ctx context.Context, vulnerability, contextText, target string) patch.Result
}

// Options wires an Engine's collaborators. Exec, Gen, Search, and Session are
// required; Patcher is required for defensive runs.
type Options struct {
	Exec          runner.Executor
	Gen           llm.Generator
	Search        knowledge.Searcher
	Patcher       Remediator
	Session       *metrics.Session
	Target        string
	MaxIterations int
	Logger        zerolog.Logger
}

// Engine is one controller instance. Not safe for concurrent use; run one
// objective at a time.
type Engine struct {
	exec          runner.Executor
	gen           llm.Generator
	search        knowledge.Searcher
	patcher       Remediator
	session       *metrics.Session
	target        string
	maxIterations int
	logger        zerolog.Logger

	history  []string
	findings []*classify.Finding
}

// New builds an Engine from opts, applying loop defaults.
func New(opts Options) *Engine {
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	return &Engine{
		exec:          opts.Exec,
		gen:           opts.Gen,
		search:        opts.Search,
		patcher:       opts.Patcher,
		session:       opts.Session,
		target:        opts.Target,
		maxIterations: maxIter,
		logger:        opts.Logger,
	}
}

// Findings returns every finding detected this session, in detection order.
func (e *Engine) Findings() []*classify.Finding {
	return e.findings
}

// Defend runs the defensive loop for one objective and reports whether the
// objective was met: at least one finding, no critical finding left
// unpatched, and at least minDwell iterations completed.
func (e *Engine) Defend(ctx context.Context, objective string) bool {
	e.logger.Info().Str("objective", objective).Str("target", e.target).Msg("defensive objective started")

	met := false
	for iteration := 1; iteration <= e.maxIterations && !met; iteration++ {
		iterStart := time.Now()
		e.session.TotalIterations++
		e.logger.Info().Int("iteration", iteration).Int("max", e.maxIterations).Msg("iteration")

		knowledgeCtx := e.queryKnowledge(ctx, objective)

		plan := e.askLLM(ctx, e.planPrompt(objective, iteration), knowledgeCtx, blueSystemPrompt)
		commands := parser.ExtractCommands(plan)
		if len(commands) == 0 {
			e.logger.Warn().Msg("no executable command in plan")
			continue
		}
		command := commands[0]

		if e.isRepeating(command) {
			e.logger.Warn().Str("command", clip(command, 50)).Msg("repetition detected, replanning")
			altKnowledge := e.queryKnowledge(ctx, objective+" alternative defensive technique")
			altPrompt := fmt.Sprintf("Previous approach already tried: %s\n\nSuggest a DIFFERENT defensive technique.", command)
			plan = e.askLLM(ctx, altPrompt, altKnowledge, blueSystemPrompt)
			commands = parser.ExtractCommands(plan)
			if len(commands) == 0 {
				e.logger.Warn().Msg("no alternative command, terminating objective")
				break
			}
			command = commands[0]
		}

		e.history = append(e.history, command)
		output, code := e.exec.Run(ctx, command)

		if finding := classify.Classify(command, output, code); finding != nil {
			e.findings = append(e.findings, finding)
			e.session.VulnsDetected++
			e.logger.Warn().Str("severity", finding.Severity).Str("finding", finding.Description).Msg("finding detected")

			if finding.Critical() {
				e.remediate(ctx, finding, output)
			}
		}

		met = e.objectiveMet(iteration)
		if met {
			e.session.HardeningActions++
		} else {
			e.feedback(ctx, command, output, code)
		}

		e.session.RecordIteration(time.Since(iterStart))
	}

	if met {
		e.session.ObjectivesCompleted++
		e.logger.Info().Int("findings", len(e.findings)).Msg("defensive objective achieved")
	} else {
		e.session.ObjectivesFailed++
		e.logger.Info().Int("findings", len(e.findings)).Msg("iteration budget exhausted, objective unmet")
	}
	return met
}

// Attack runs the offensive loop: same plan/execute shape without
// classification or remediation. Success is an exit-0 command whose output
// carries an access marker or a captured flag.
func (e *Engine) Attack(ctx context.Context, objective string) bool {
	e.logger.Info().Str("objective", objective).Str("target", e.target).Msg("offensive objective started")

	success := false
	for iteration := 1; iteration <= e.maxIterations && !success; iteration++ {
		iterStart := time.Now()
		e.session.TotalIterations++
		e.logger.Info().Int("iteration", iteration).Int("max", e.maxIterations).Msg("iteration")

		knowledgeCtx := e.queryKnowledge(ctx, objective)

		planPrompt := fmt.Sprintf(`Objective: %s
Target: %s
Iteration: %d

Based on the knowledge base above, provide ONE specific command.
Be concise.`, objective, e.target, iteration)

		plan := e.askLLM(ctx, planPrompt, knowledgeCtx, redSystemPrompt)
		commands := parser.ExtractCommands(plan)
		if len(commands) == 0 {
			e.logger.Warn().Msg("no executable command in plan")
			continue
		}
		command := commands[0]

		if e.isRepeating(command) {
			e.logger.Warn().Str("command", clip(command, 50)).Msg("repetition detected, replanning")
			altKnowledge := e.queryKnowledge(ctx, objective+" alternative methods")
			altPrompt := fmt.Sprintf("Previous approach failed repeatedly: %s\n\nSuggest a DIFFERENT technique using different tools.", command)
			plan = e.askLLM(ctx, altPrompt, altKnowledge, redSystemPrompt)
			commands = parser.ExtractCommands(plan)
			if len(commands) == 0 {
				e.logger.Warn().Msg("no alternative command, terminating objective")
				break
			}
			command = commands[0]
		}

		e.history = append(e.history, command)
		output, code := e.exec.Run(ctx, command)

		success = accessGained(command, output, code)
		if success {
			e.logger.Info().Msg("objective achieved")
		} else {
			e.feedbackOffense(ctx, command, output, code)
		}

		e.session.RecordIteration(time.Since(iterStart))
	}

	if success {
		e.session.ObjectivesCompleted++
	} else {
		e.session.ObjectivesFailed++
	}
	return success
}

// queryKnowledge searches the knowledge base and formats the hits for prompt
// context. Search failure or an empty result set degrades to a fixed
// no-guidance marker; the loop always continues.
func (e *Engine) queryKnowledge(ctx context.Context, query string) string {
	e.session.RAGQueries++
	excerpts, err := e.search.Search(ctx, query, 3)
	if err != nil {
		e.logger.Warn().Err(err).Msg("knowledge search failed")
		return noKnowledgeContext
	}
	if len(excerpts) == 0 {
		return noKnowledgeContext
	}
	e.logger.Debug().Int("sources", len(excerpts)).Msg("knowledge retrieved")
	return knowledge.FormatContext(excerpts)
}

func (e *Engine) askLLM(ctx context.Context, prompt, contextText, system string) string {
	full := prompt
	if contextText != "" {
		full = fmt.Sprintf("Relevant techniques from knowledge base:\n%s\n\n%s", contextText, prompt)
	}

	e.session.LLMCalls++
	response, err := e.gen.Generate(ctx, full, system)
	if err != nil {
		e.logger.Warn().Err(err).Msg("llm call failed")
		return ""
	}
	return response
}

func (e *Engine) planPrompt(objective string, iteration int) string {
	findingsCtx := ""
	if len(e.findings) > 0 {
		var b strings.Builder
		b.WriteString("\n\nPrevious findings this session:\n")
		recent := e.findings
		if len(recent) > 5 {
			recent = recent[len(recent)-5:]
		}
		for _, f := range recent {
			fmt.Fprintf(&b, "- %s (severity: %s)\n", f.Description, f.Severity)
		}
		findingsCtx = b.String()
	}

	return fmt.Sprintf(`Objective: %s
Target: %s
Iteration: %d
%s

Based on the defensive knowledge base above, provide ONE specific diagnostic or remediation command.
Focus on the most critical unaddressed vulnerability first.
Be concise.`, objective, e.target, iteration, findingsCtx)
}

// isRepeating reports whether the candidate's leading token matches the
// leading token of every command in the trailing window.
func (e *Engine) isRepeating(command string) bool {
	if len(e.history) < repetitionWindow {
		return false
	}

	fields := strings.Fields(command)
	candidate := command
	if len(fields) > 0 {
		candidate = fields[0]
	}

	for _, prev := range e.history[len(e.history)-repetitionWindow:] {
		prevFields := strings.Fields(prev)
		if len(prevFields) == 0 || prevFields[0] != candidate {
			return false
		}
	}
	return true
}

// remediate drives one patch lifecycle for a critical or high finding and
// folds the outcome into the session counters.
func (e *Engine) remediate(ctx context.Context, finding *classify.Finding, output string) {
	result := e.patcher.Remediate(ctx, finding.Description, output, e.target)

	switch result.Status {
	case patch.StatusApplied:
		e.session.PatchesGenerated++
		e.session.PatchesApplied++
		finding.Patched = true
		if result.Validated {
			e.session.PatchesValidated++
			e.logger.Info().Str("patch", result.Description).Msg("patch applied and validated")
		} else {
			e.session.PatchesFailed++
			e.logger.Warn().Str("patch", result.Description).Msg("patch applied, validation pending")
		}
	case patch.StatusGeneratedOnly:
		e.session.PatchesGenerated++
		e.logger.Info().Str("patch", result.Description).Msg("patch generated but not applied")
	default:
		e.logger.Warn().Str("error", result.Error).Msg("patch lifecycle failed")
	}
}

// objectiveMet applies the termination predicate: at least one finding, no
// critical finding unpatched, and the minimum dwell reached.
func (e *Engine) objectiveMet(iteration int) bool {
	if len(e.findings) == 0 || iteration < minDwell {
		return false
	}
	for _, f := range e.findings {
		if f.Severity == classify.SeverityCritical && !f.Patched {
			return false
		}
	}
	return true
}

// feedback sends the iteration result back to the model. The response steers
// the next planning call through conversation state on the model side only;
// nothing is parsed from it.
func (e *Engine) feedback(ctx context.Context, command, output string, code int) {
	status := "[OK]"
	if code != 0 {
		status = "[FAIL]"
	}
	prompt := fmt.Sprintf(`Previous defensive action results:

Command: %s
Exit code: %d %s
Output (truncated):
%s

Findings so far: %d

What should I check or fix next? Provide ONE specific command.`,
		command, code, status, clip(output, 1024), len(e.findings))

	e.askLLM(ctx, prompt, "", "")
}

func (e *Engine) feedbackOffense(ctx context.Context, command, output string, code int) {
	status := "[OK]"
	if code != 0 {
		status = "[FAIL]"
	}
	prompt := fmt.Sprintf(`Previous action results:

Command executed: %s
Exit code: %d %s
Output (truncated):
%s

Based on this result, what should I try next? Provide ONE specific command.`,
		command, code, status, clip(output, 1024))

	e.askLLM(ctx, prompt, "", "")
}

// accessGained is the offensive success predicate.
func accessGained(command, output string, code int) bool {
	if code != 0 {
		return false
	}
	if strings.Contains(output, "FLAG{") {
		return true
	}
	if !strings.Contains(strings.ToLower(command), "ssh") {
		return false
	}
	lower := strings.ToLower(output)
	for _, marker := range []string{"password", "welcome", "last login"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
