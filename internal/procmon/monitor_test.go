package procmon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitAlive(t *testing.T, m *Monitor, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Alive() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Alive() did not become %v in time", want)
}

func TestStart_ReportsPIDAndAliveness(t *testing.T) {
	m, err := Start("sh", []string{"-c", "sleep 0.3"}, 10)
	require.NoError(t, err)

	assert.Greater(t, m.PID(), 0)
	assert.True(t, m.Alive())

	waitAlive(t, m, false)
}

func TestPeekOutput_ReturnsTailOfStdout(t *testing.T) {
	m, err := Start("sh", []string{"-c", "for i in 1 2 3 4 5; do echo line$i; done"}, 3)
	require.NoError(t, err)
	waitAlive(t, m, false)

	// allow the tail goroutine to drain the pipe after process exit.
	time.Sleep(50 * time.Millisecond)

	out, err := m.PeekOutput(3)
	require.NoError(t, err)
	assert.Equal(t, "line3\nline4\nline5", out)
}

func TestPeekOutput_EmptyWhenNoOutputYet(t *testing.T) {
	m, err := Start("sh", []string{"-c", "sleep 0.2"}, 10)
	require.NoError(t, err)
	defer waitAlive(t, m, false)

	out, err := m.PeekOutput(5)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestCPUTime_ReturnsNonNegativeDuration(t *testing.T) {
	m, err := Start("sh", []string{"-c", "for i in $(seq 1 200000); do :; done"}, 10)
	require.NoError(t, err)

	d, err := m.CPUTime()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d, time.Duration(0))

	waitAlive(t, m, false)
}

func TestKill_TerminatesPayload(t *testing.T) {
	m, err := Start("sh", []string{"-c", "sleep 5"}, 10)
	require.NoError(t, err)
	require.True(t, m.Alive())

	require.NoError(t, m.Kill(false))
	waitAlive(t, m, false)
}

func TestKill_WithChildrenTargetsProcessGroup(t *testing.T) {
	m, err := Start("sh", []string{"-c", "sleep 5 & wait"}, 10)
	require.NoError(t, err)
	require.True(t, m.Alive())

	require.NoError(t, m.Kill(true))
	waitAlive(t, m, false)
}
