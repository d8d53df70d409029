package patch

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adversim/warden/internal/llm"
	"github.com/adversim/warden/internal/metrics"
	"github.com/adversim/warden/internal/parser"
	"github.com/adversim/warden/internal/runner"
)

// Lifecycle statuses.
const (
	StatusApplied       = "applied"
	StatusGeneratedOnly = "generated-only"
	StatusFailed        = "failed"
)

const patchPrompt = `You are a security patch generator. Given a vulnerability description and system context, generate a precise remediation patch.

Rules:
- Output ONLY the remediation commands, one per line
- Each command must be safe and reversible
- Include comments explaining each step
- Do NOT include diagnostic or verification commands

Vulnerability: %s

System context:
%s

Generate the patch commands:`

const rollbackPrompt = `Given the following patch commands that were applied to fix a security vulnerability, generate the EXACT rollback commands to undo the changes.

Patch commands applied:
%s

Original vulnerability context:
%s

Generate rollback commands (one per line):`

const validationPrompt = `Given a security patch that was applied, generate ONE verification command to confirm the vulnerability is fixed.

Vulnerability: %s
Patch applied: %s

Generate a single verification command:`

// Validation records the single verification attempt of an applied patch.
type Validation struct {
	Command  string `json:"command"`
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
	Expected string `json:"expected"`
}

// Result is the immutable outcome of one remediation lifecycle.
type Result struct {
	Timestamp        string      `json:"timestamp"`
	Vulnerability    string      `json:"vulnerability"`
	Status           string      `json:"status"`
	Description      string      `json:"description"`
	PatchCommands    []string    `json:"patch_commands"`
	RollbackCommands []string    `json:"rollback_commands"`
	Validation       *Validation `json:"validation"`
	Validated        bool        `json:"validated"`
	Error            string      `json:"error,omitempty"`
}

// resolution is the outcome of patch resolution: either a catalog entry with
// its templates filled in, or a generated command set. Decided once per
// Remediate call.
type resolution struct {
	known           bool
	description     string
	patchCommands   []string
	rollbackCmds    []string
	validateCommand string
	validateExpect  string
}

// Manager drives the remediation lifecycle: resolve, apply, validate,
// roll back on partial failure. All command execution goes through the
// gated runner.
type Manager struct {
	exec    runner.Executor
	gen     llm.Generator
	session *metrics.Session
	apply   bool
	logger  zerolog.Logger
	history []Result
}

// NewManager builds a lifecycle manager. When apply is false, resolved
// patches are reported with status generated-only and never executed.
func NewManager(exec runner.Executor, gen llm.Generator, session *metrics.Session, apply bool, logger zerolog.Logger) *Manager {
	return &Manager{
		exec:    exec,
		gen:     gen,
		session: session,
		apply:   apply,
		logger:  logger,
	}
}

// History returns all lifecycle results of this session, in order.
func (m *Manager) History() []Result {
	return m.history
}

// Remediate resolves a patch for the vulnerability, applies it, validates
// the result, and rolls back on partial failure. The result is appended to
// the session history before return, whatever the outcome.
func (m *Manager) Remediate(ctx context.Context, vulnerability, contextText, target string) Result {
	timestamp := time.Now().UTC().Format("20060102150405")
	result := Result{
		Timestamp:     timestamp,
		Vulnerability: vulnerability,
		Status:        StatusFailed,
	}

	res, ok := m.resolve(ctx, vulnerability, contextText, timestamp)
	if !ok {
		result.Error = "failed to generate patch commands"
		m.finish(&result)
		return result
	}

	result.Description = res.description
	result.PatchCommands = res.patchCommands
	result.RollbackCommands = res.rollbackCmds

	if !m.apply {
		result.Status = StatusGeneratedOnly
		m.finish(&result)
		return result
	}

	m.logger.Info().Int("commands", len(res.patchCommands)).Str("patch", res.description).Msg("applying patch")
	if failed := m.applyCommands(ctx, res.patchCommands); failed != "" {
		result.Error = fmt.Sprintf("patch command failed: %s", failed)
		m.rollback(ctx, res.rollbackCmds)
		m.finish(&result)
		return result
	}

	result.Status = StatusApplied
	m.validate(ctx, res, &result)
	m.finish(&result)
	return result
}

// resolve matches the catalog first and falls back to generation. The
// returned bool is false only when generation produced no remediation
// commands; in that case nothing has been executed.
func (m *Manager) resolve(ctx context.Context, vulnerability, contextText, timestamp string) (resolution, bool) {
	if entry := matchKnown(vulnerability, contextText); entry != nil {
		m.logger.Info().Str("key", entry.Key).Msg("matched known patch")

		targetFile := extractTargetFile(vulnerability + "\n" + contextText)
		if targetFile == "" {
			targetFile = "/tmp/unknown"
		}
		fill := func(tmpl string) string {
			tmpl = strings.ReplaceAll(tmpl, "{timestamp}", timestamp)
			return strings.ReplaceAll(tmpl, "{target_file}", targetFile)
		}

		var patchCmds []string
		for _, tmpl := range entry.PatchCommands {
			if strings.HasPrefix(tmpl, "#") {
				continue
			}
			patchCmds = append(patchCmds, fill(tmpl))
		}
		var rollbackCmds []string
		for _, tmpl := range entry.RollbackCommands {
			rollbackCmds = append(rollbackCmds, fill(tmpl))
		}

		return resolution{
			known:           true,
			description:     entry.Description,
			patchCommands:   patchCmds,
			rollbackCmds:    rollbackCmds,
			validateCommand: fill(entry.ValidateCommand),
			validateExpect:  entry.ValidateExpect,
		}, true
	}

	m.logger.Info().Msg("no known patch matched, generating")
	return m.generate(ctx, vulnerability, contextText)
}

// generate issues three sequential prompts: remediation, then rollback, then
// one validation command. Missing rollback or validation output degrades to
// empty lists; missing remediation output aborts the lifecycle.
func (m *Manager) generate(ctx context.Context, vulnerability, contextText string) (resolution, bool) {
	patchResp := m.generateText(ctx, fmt.Sprintf(patchPrompt, vulnerability, clip(contextText, 1024)))
	patchCmds := parser.ExtractCommands(patchResp)
	if len(patchCmds) == 0 {
		return resolution{}, false
	}

	rollbackResp := m.generateText(ctx, fmt.Sprintf(rollbackPrompt, strings.Join(patchCmds, "\n"), clip(contextText, 512)))
	rollbackCmds := parser.ExtractCommands(rollbackResp)

	validateResp := m.generateText(ctx, fmt.Sprintf(validationPrompt, vulnerability, strings.Join(patchCmds, "\n")))
	validateCmds := parser.ExtractCommands(validateResp)
	validateCmd := ""
	if len(validateCmds) > 0 {
		validateCmd = validateCmds[0]
	}

	return resolution{
		description:     fmt.Sprintf("Generated patch for: %s", clip(vulnerability, 80)),
		patchCommands:   patchCmds,
		rollbackCmds:    rollbackCmds,
		validateCommand: validateCmd,
	}, true
}

func (m *Manager) generateText(ctx context.Context, prompt string) string {
	if m.session != nil {
		m.session.LLMCalls++
	}
	text, err := m.gen.Generate(ctx, prompt, "")
	if err != nil {
		m.logger.Warn().Err(err).Msg("patch generation call failed")
		return ""
	}
	return text
}

// applyCommands executes the remediation in order and returns the first
// command that was blocked or failed, or "" when all succeeded.
func (m *Manager) applyCommands(ctx context.Context, commands []string) string {
	for _, cmd := range commands {
		_, code := m.exec.Run(ctx, cmd)
		if code == runner.CodeBlocked {
			m.logger.Warn().Str("command", cmd).Msg("patch command blocked")
			return cmd
		}
		if code != 0 {
			m.logger.Warn().Str("command", cmd).Int("exit", code).Msg("patch command failed")
			return cmd
		}
	}
	return ""
}

// rollback runs every rollback command best-effort; a rollback command's own
// failure is logged but raises nothing further.
func (m *Manager) rollback(ctx context.Context, commands []string) {
	if len(commands) == 0 {
		return
	}
	m.logger.Info().Int("commands", len(commands)).Msg("rolling back")
	for _, cmd := range commands {
		if _, code := m.exec.Run(ctx, cmd); code != 0 {
			m.logger.Warn().Str("command", cmd).Int("exit", code).Msg("rollback command failed")
		}
	}
}

// validate runs the validation command when one exists. The patch counts as
// validated only on exit 0 with the expected text present in the output, or
// when the expectation is the not-777 sentinel. No validation command leaves
// validated=false without attempting verification.
func (m *Manager) validate(ctx context.Context, res resolution, result *Result) {
	if res.validateCommand == "" {
		return
	}

	output, code := m.exec.Run(ctx, res.validateCommand)
	result.Validation = &Validation{
		Command:  res.validateCommand,
		Output:   strings.TrimSpace(output),
		ExitCode: code,
		Expected: res.validateExpect,
	}

	if code != 0 {
		m.logger.Warn().Int("exit", code).Msg("validation command failed")
		return
	}
	if strings.Contains(output, res.validateExpect) || res.validateExpect == ExpectNot777 {
		result.Validated = true
		m.logger.Info().Msg("validation passed")
		return
	}
	m.logger.Warn().Str("expected", res.validateExpect).Str("got", result.Validation.Output).Msg("validation failed")
}

func (m *Manager) finish(result *Result) {
	m.history = append(m.history, *result)
}

func matchKnown(vulnerability, contextText string) *Entry {
	combined := strings.ToLower(vulnerability + " " + contextText)
	for i := range Catalog {
		if Catalog[i].Detect.MatchString(combined) {
			return &Catalog[i]
		}
	}
	return nil
}

var targetFilePattern = regexp.MustCompile(`(/(?:etc|tmp|home|var|usr|opt)/[\w./-]+)`)

// extractTargetFile returns the first path-shaped substring rooted at a
// standard system directory, or "".
func extractTargetFile(text string) string {
	return targetFilePattern.FindString(text)
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
