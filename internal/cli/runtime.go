package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adversim/warden/internal/audit"
	"github.com/adversim/warden/internal/config"
	"github.com/adversim/warden/internal/engine"
	"github.com/adversim/warden/internal/gate"
	"github.com/adversim/warden/internal/knowledge"
	"github.com/adversim/warden/internal/llm"
	"github.com/adversim/warden/internal/metrics"
	"github.com/adversim/warden/internal/patch"
	"github.com/adversim/warden/internal/runner"
)

// runtime is one fully wired engine instance plus the resources it owns.
type runtime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	session *metrics.Session
	engine  *engine.Engine
	patcher *patch.Manager

	recorder *audit.Recorder
	docker   *runner.DockerRunner
	store    *knowledge.LocalStore
}

// newRuntime builds the engine for cfg. The reasoning service is mandatory:
// an unreachable LLM endpoint aborts here with a diagnostic. The knowledge
// layer degrades instead: a failed MCP handshake falls back to the local
// store.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().
		Timestamp().
		Str("session", uuid.NewString()).
		Str("role", cfg.Role).
		Logger()

	rt := &runtime{cfg: cfg, logger: logger, session: metrics.NewSession()}

	rt.recorder, err = audit.NewRecorder(cfg.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	policy := gate.Defensive()
	if cfg.Role == config.RoleOffense {
		policy = gate.Offensive()
	}

	var exec runner.Executor
	if cfg.DockerContainer != "" {
		rt.docker, err = runner.NewDockerRunner(cfg.DockerContainer, policy, rt.recorder, rt.session, cfg.CommandTimeout, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		exec = rt.docker
		logger.Info().Str("container", cfg.DockerContainer).Msg("executing inside container")
	} else {
		exec = runner.New(policy, rt.recorder, rt.session, cfg.CommandTimeout, logger)
	}

	gen := llm.NewClient(cfg.LLMURL, cfg.LLMAPIKey, cfg.LLMModel)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := gen.Ping(pingCtx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("reasoning service at %s is not reachable: %w", cfg.LLMURL, err)
	}

	searcher, err := rt.openKnowledge(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.patcher = patch.NewManager(exec, gen, rt.session, cfg.ApplyPatches, logger)

	rt.engine = engine.New(engine.Options{
		Exec:          exec,
		Gen:           gen,
		Search:        searcher,
		Patcher:       rt.patcher,
		Session:       rt.session,
		Target:        cfg.Target,
		MaxIterations: cfg.MaxIterations,
		Logger:        logger,
	})
	return rt, nil
}

// openKnowledge picks the knowledge backend: MCP when configured and
// reachable, otherwise the local sqlite store (ingesting the advisory
// directory when one is given).
func (rt *runtime) openKnowledge(ctx context.Context) (knowledge.Searcher, error) {
	if rt.cfg.MCPURL != "" {
		client, err := knowledge.NewMCPClient(ctx, rt.cfg.MCPURL, "warden-"+rt.cfg.Role, "1.0.0", rt.logger)
		if err == nil {
			rt.logger.Info().Str("url", rt.cfg.MCPURL).Msg("connected to MCP knowledge server")
			return client, nil
		}
		rt.logger.Warn().Err(err).Msg("MCP handshake failed, falling back to local store")
	}

	store, err := knowledge.OpenLocalStore(rt.cfg.KnowledgeDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}
	rt.store = store

	if rt.cfg.AdvisoryDir != "" {
		n, err := store.Ingest(rt.cfg.AdvisoryDir)
		if err != nil {
			return nil, fmt.Errorf("failed to ingest advisories: %w", err)
		}
		rt.logger.Info().Int("documents", n).Str("dir", rt.cfg.AdvisoryDir).Msg("advisories ingested")
	}
	return store, nil
}

// finish stamps the session, exports the metrics document, and logs the run
// totals.
func (rt *runtime) finish() error {
	rt.session.Finish()

	var patches interface{} = []patch.Result{}
	if rt.patcher != nil {
		patches = rt.patcher.History()
	}

	if dir := filepath.Dir(rt.cfg.MetricsPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := rt.session.Export(rt.cfg.MetricsPath, rt.engine.Findings(), patches); err != nil {
		return err
	}

	rt.logger.Info().
		Int("iterations", rt.session.TotalIterations).
		Int("commands", rt.session.CommandsExecuted).
		Int("findings", rt.session.VulnsDetected).
		Int("patches_applied", rt.session.PatchesApplied).
		Str("metrics", rt.cfg.MetricsPath).
		Msg("session complete")
	return nil
}

// Close releases everything the runtime owns. Safe on a partially built
// runtime.
func (rt *runtime) Close() {
	if rt.docker != nil {
		rt.docker.Close()
	}
	if rt.store != nil {
		rt.store.Close()
	}
	if rt.recorder != nil {
		rt.recorder.Close()
	}
}
