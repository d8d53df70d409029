// Package audit writes the append-only command trail: one JSON record per
// line, one file per engine role. Records are immutable once written.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// Caps applied to logged output so the audit file growth stays bounded.
	// They apply to the log only; callers always receive full output.
	MaxOutputLen = 1024
	MaxStderrLen = 512
)

// Record is one command invocation attempt, blocked attempts included.
type Record struct {
	Timestamp  string `json:"timestamp"`
	Command    string `json:"command"`
	Blocked    bool   `json:"blocked"`
	Reason     string `json:"reason"`
	Output     string `json:"output"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"return_code"`
}

// Recorder appends records to a single log file. Single writer, no locking:
// the engine is strictly sequential.
type Recorder struct {
	path string
	file *os.File
}

// NewRecorder opens (creating if needed) the audit log at path in append mode.
func NewRecorder(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &Recorder{path: path, file: file}, nil
}

// Path returns the log file location.
func (r *Recorder) Path() string {
	return r.path
}

// Append writes one record, truncating output and stderr to the log caps and
// stamping the current UTC time.
func (r *Recorder) Append(command string, blocked bool, reason, output, stderr string, code int) error {
	entry := Record{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Command:    command,
		Blocked:    blocked,
		Reason:     reason,
		Output:     truncate(output, MaxOutputLen),
		Stderr:     truncate(stderr, MaxStderrLen),
		ReturnCode: code,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	if _, err := r.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// Close closes the underlying log file.
func (r *Recorder) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
