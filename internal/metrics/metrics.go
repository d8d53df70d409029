// Package metrics accumulates per-session counters and timings for one
// engine instance. A Session is threaded explicitly through the controller,
// runner, and patch manager so multiple engines in one process never share
// state.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Session holds the full metrics record for one engine run. Field names are
// part of the metrics document contract consumed by the scorer.
type Session struct {
	StartTime           float64   `json:"start_time"`
	EndTime             float64   `json:"end_time"`
	TotalIterations     int       `json:"total_iterations"`
	CommandsExecuted    int       `json:"commands_executed"`
	CommandsSuccessful  int       `json:"commands_successful"`
	CommandsFailed      int       `json:"commands_failed"`
	CommandsBlocked     int       `json:"commands_blocked"`
	RAGQueries          int       `json:"rag_queries"`
	LLMCalls            int       `json:"llm_calls"`
	VulnsDetected       int       `json:"vulnerabilities_detected"`
	PatchesGenerated    int       `json:"patches_generated"`
	PatchesApplied      int       `json:"patches_applied"`
	PatchesValidated    int       `json:"patches_validated"`
	PatchesFailed       int       `json:"patches_failed"`
	HardeningActions    int       `json:"hardening_actions"`
	FalsePositives      int       `json:"false_positives"`
	ObjectivesCompleted int       `json:"objectives_completed"`
	ObjectivesFailed    int       `json:"objectives_failed"`
	IterationTimes      []float64 `json:"iteration_times"`
}

// NewSession returns a Session stamped with the current time.
func NewSession() *Session {
	return &Session{
		StartTime:      float64(time.Now().UnixNano()) / 1e9,
		IterationTimes: []float64{},
	}
}

// RecordCommand updates the command counters from an exit code. Blocked
// commands carry code -1; every other nonzero code is a failure. Keeping
// this as the single update path preserves the invariant
// executed == successful + failed + blocked.
func (s *Session) RecordCommand(exitCode int) {
	s.CommandsExecuted++
	switch {
	case exitCode == 0:
		s.CommandsSuccessful++
	case exitCode == -1:
		s.CommandsBlocked++
	default:
		s.CommandsFailed++
	}
}

// RecordIteration appends one iteration duration in seconds.
func (s *Session) RecordIteration(d time.Duration) {
	s.IterationTimes = append(s.IterationTimes, d.Seconds())
}

// Finish stamps the end time.
func (s *Session) Finish() {
	s.EndTime = float64(time.Now().UnixNano()) / 1e9
}

// Document is the JSON payload written at engine shutdown: the session
// metrics plus the finding and patch collections accumulated by the engine.
type Document struct {
	*Session
	Findings interface{} `json:"findings"`
	Patches  interface{} `json:"patches"`
}

// Export writes the metrics document to path as indented JSON.
func (s *Session) Export(path string, findings, patches interface{}) error {
	doc := Document{Session: s, Findings: findings, Patches: patches}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
