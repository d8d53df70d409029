package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecordCommandConservation verifies the counter invariant holds after
// every update.
func TestRecordCommandConservation(t *testing.T) {
	s := NewSession()

	codes := []int{0, 1, -1, 0, -2, -3, 127, -1, 0}
	for _, code := range codes {
		s.RecordCommand(code)
		assert.Equal(t, s.CommandsExecuted,
			s.CommandsSuccessful+s.CommandsFailed+s.CommandsBlocked,
			"conservation violated after code %d", code)
	}

	assert.Equal(t, 9, s.CommandsExecuted)
	assert.Equal(t, 3, s.CommandsSuccessful)
	assert.Equal(t, 2, s.CommandsBlocked)
	assert.Equal(t, 4, s.CommandsFailed)
}

func TestRecordIteration(t *testing.T) {
	s := NewSession()
	s.RecordIteration(1500 * time.Millisecond)
	s.RecordIteration(250 * time.Millisecond)

	require.Len(t, s.IterationTimes, 2)
	assert.InDelta(t, 1.5, s.IterationTimes[0], 0.001)
	assert.InDelta(t, 0.25, s.IterationTimes[1], 0.001)
}

func TestExportDocument(t *testing.T) {
	s := NewSession()
	s.RecordCommand(0)
	s.VulnsDetected = 1
	s.Finish()

	path := filepath.Join(t.TempDir(), "metrics.json")
	findings := []map[string]string{{"description": "test finding"}}
	patches := []map[string]string{}

	require.NoError(t, s.Export(path, findings, patches))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, float64(1), doc["commands_executed"])
	assert.Equal(t, float64(1), doc["vulnerabilities_detected"])
	assert.Contains(t, doc, "start_time")
	assert.Contains(t, doc, "end_time")
	assert.Contains(t, doc, "iteration_times")
	assert.Len(t, doc["findings"], 1)
	assert.GreaterOrEqual(t, doc["end_time"].(float64), doc["start_time"].(float64))
}
