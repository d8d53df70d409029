package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, path string) []Record {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestAppendWritesOneLinePerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.log")
	rec, err := NewRecorder(path)
	require.NoError(t, err)
	defer rec.Close()

	require.NoError(t, rec.Append("cat /etc/ssh/sshd_config", false, "", "PasswordAuthentication yes", "", 0))
	require.NoError(t, rec.Append("rm -rf /", true, "Blocked pattern", "", "", -1))

	records := readRecords(t, path)
	require.Len(t, records, 2)

	assert.Equal(t, "cat /etc/ssh/sshd_config", records[0].Command)
	assert.False(t, records[0].Blocked)
	assert.Equal(t, 0, records[0].ReturnCode)

	assert.True(t, records[1].Blocked)
	assert.Equal(t, "Blocked pattern", records[1].Reason)
	assert.Equal(t, -1, records[1].ReturnCode)
	assert.NotEmpty(t, records[1].Timestamp)
}

func TestAppendTruncatesLoggedOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.log")
	rec, err := NewRecorder(path)
	require.NoError(t, err)
	defer rec.Close()

	longOut := strings.Repeat("a", 4096)
	longErr := strings.Repeat("b", 4096)
	require.NoError(t, rec.Append("find / -perm -4000", false, "", longOut, longErr, 0))

	records := readRecords(t, path)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Output, MaxOutputLen)
	assert.Len(t, records[0].Stderr, MaxStderrLen)
}

func TestNewRecorderCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "commands.log")
	rec, err := NewRecorder(path)
	require.NoError(t, err)
	defer rec.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
