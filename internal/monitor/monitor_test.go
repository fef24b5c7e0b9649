package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, interval time.Duration) (*Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{
		Snapshot: func() model.Snapshot {
			return model.Snapshot{Tick: 17, MotionState: "FIND_BALL", ThrowerState: "IDLE"}
		},
		Stats:      func() worker.Stats { return worker.Stats{Accepted: 5, Rejected: 1} },
		StatusFile: path,
		Interval:   interval,
		StartedAt:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	})
	return s, path
}

func readStatus(t *testing.T, path string) Status {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	return st
}

func TestGetStatus(t *testing.T) {
	s, _ := newService(t, time.Second)

	st := s.GetStatus(time.Date(2026, 1, 1, 12, 1, 30, 0, time.UTC))

	assert.Equal(t, "1m30s", st.Uptime)
	assert.Equal(t, uint64(17), st.AI.Tick)
	assert.Equal(t, uint64(5), st.Worker.Accepted)
}

func TestWriteStatus(t *testing.T) {
	s, path := newService(t, time.Second)

	require.NoError(t, s.WriteStatus(time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC)))

	st := readStatus(t, path)
	assert.Equal(t, "FIND_BALL", st.AI.MotionState)
	assert.Equal(t, uint64(1), st.Worker.Rejected)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are renamed away")
}

func TestStartStop(t *testing.T) {
	s, path := newService(t, 10*time.Millisecond)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "second start is a no-op")
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestStart_RequiresPath(t *testing.T) {
	s := NewService(Dependencies{})
	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}
