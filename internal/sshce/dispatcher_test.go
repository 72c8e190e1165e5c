package sshce

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gridforge/jobcore/internal/jobhandle"
	"github.com/gridforge/jobcore/internal/testutil"
)

func testConfig(sshHost string) Config {
	return Config{
		Queue:          "default",
		SharedArea:     "/shared",
		BatchOutput:    "out",
		BatchError:     "err",
		InfoArea:       "info",
		ExecutableArea: "bin",
		WorkArea:       "work",
		SSHHost:        sshHost,
	}
}

func newTestExecutable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0644))
	return path
}

func TestNewDispatcher_PreparesEachHost(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	exec.On("PrepareHost", "A", mock.Anything).Return(nil)
	exec.On("PrepareHost", "B", mock.Anything).Return(nil)

	d, err := NewDispatcher(exec, testConfig("A,B"))
	require.NoError(t, err)
	assert.NotNil(t, d)
	exec.AssertNumberOfCalls(t, "PrepareHost", 2)
}

func TestNewDispatcher_PrepareFailureIsFatal(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	exec.On("PrepareHost", "A", mock.Anything).Return(assert.AnError)

	_, err := NewDispatcher(exec, testConfig("A"))
	assert.Error(t, err)
}

func newDispatcherOK(t *testing.T, exec *testutil.MockHostExecutor, sshHost string) *Dispatcher {
	t.Helper()
	exec.On("PrepareHost", mock.Anything, mock.Anything).Return(nil)
	d, err := NewDispatcher(exec, testConfig(sshHost))
	require.NoError(t, err)
	return d
}

func TestSubmitJob_PrefersHostWithMoreFreeCapacity(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	d := newDispatcherOK(t, exec, "A/1,B/3")

	// status probe: A has 1 running (0 free of 1), B has 0 running (3 free).
	exec.On("RunCommand", "A", mock.MatchedBy(statusProbe)).Return("1", nil)
	exec.On("RunCommand", "B", mock.MatchedBy(statusProbe)).Return("0", nil)
	exec.On("RunCommand", "B", mock.MatchedBy(submitCmd)).Return("", nil)

	exe := newTestExecutable(t)
	handles, err := d.SubmitJob(exe, "", "", 2)
	require.NoError(t, err)
	assert.Len(t, handles, 2)
	for _, h := range handles {
		host, _, ok := parseHandle(t, h)
		assert.True(t, ok)
		assert.Equal(t, "B", host)
	}
	exec.AssertNotCalled(t, "RunCommand", "A", mock.MatchedBy(submitCmd))
}

func TestSubmitJob_SpillsOverToSecondHostWhenFirstIsFull(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	d := newDispatcherOK(t, exec, "A/1,B/1")

	exec.On("RunCommand", "A", mock.MatchedBy(statusProbe)).Return("0", nil)
	exec.On("RunCommand", "B", mock.MatchedBy(statusProbe)).Return("0", nil)
	exec.On("RunCommand", "A", mock.MatchedBy(submitCmd)).Return("", nil)
	exec.On("RunCommand", "B", mock.MatchedBy(submitCmd)).Return("", nil)

	exe := newTestExecutable(t)
	handles, err := d.SubmitJob(exe, "", "", 2)
	require.NoError(t, err)
	assert.Len(t, handles, 2)
}

func TestSubmitJob_NoReachableHostsErrors(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	d := newDispatcherOK(t, exec, "A")

	exec.On("RunCommand", "A", mock.MatchedBy(statusProbe)).Return("", assert.AnError)

	exe := newTestExecutable(t)
	_, err := d.SubmitJob(exe, "", "", 1)
	assert.Error(t, err)
}

func TestSubmitJob_MakesExecutableBitSet(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	d := newDispatcherOK(t, exec, "A")

	exec.On("RunCommand", "A", mock.MatchedBy(statusProbe)).Return("0", nil)
	exec.On("RunCommand", "A", mock.MatchedBy(submitCmd)).Return("", nil)

	path := filepath.Join(t.TempDir(), "payload.sh")
	require.NoError(t, os.WriteFile(path, []byte("echo hi\n"), 0644))

	_, err := d.SubmitJob(path, "", "", 1)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0111)
}

func TestSubmitJob_EmbedsExecutableContentInRemoteCommand(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	d := newDispatcherOK(t, exec, "A")

	exec.On("RunCommand", "A", mock.MatchedBy(statusProbe)).Return("0", nil)

	payload := []byte("#!/bin/sh\necho payload-marker\n")
	path := filepath.Join(t.TempDir(), "payload.sh")
	require.NoError(t, os.WriteFile(path, payload, 0755))
	encoded := base64.StdEncoding.EncodeToString(payload)

	var capturedCmd string
	exec.On("RunCommand", "A", mock.MatchedBy(submitCmd)).Run(func(args mock.Arguments) {
		capturedCmd = args.String(1)
	}).Return("", nil)

	_, err := d.SubmitJob(path, "", "", 1)
	require.NoError(t, err)

	assert.Contains(t, capturedCmd, "base64 -d")
	assert.Contains(t, capturedCmd, encoded)
}

func TestSubmitJob_WrapsCredentialBeforeShipping(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	d := newDispatcherOK(t, exec, "A")

	exec.On("RunCommand", "A", mock.MatchedBy(statusProbe)).Return("0", nil)

	path := newTestExecutable(t)
	credPath := filepath.Join(t.TempDir(), "credential.pem")
	require.NoError(t, os.WriteFile(credPath, []byte("FAKE-PEM"), 0600))

	var capturedCmd string
	exec.On("RunCommand", "A", mock.MatchedBy(submitCmd)).Run(func(args mock.Arguments) {
		capturedCmd = args.String(1)
	}).Return("", nil)

	_, err := d.SubmitJob(path, credPath, "X509_USER_PROXY", 1)
	require.NoError(t, err)

	require.NotEmpty(t, capturedCmd)
	// The shipped command embeds the wrapper script, not the local
	// filesystem path the credential lived at.
	assert.NotContains(t, capturedCmd, credPath)

	marker := strings.TrimPrefix(capturedCmd, "cd ")
	assert.Contains(t, marker, "base64 -d")
}

func TestKillJob_GroupsByHostAndAggregatesFailures(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	d := newDispatcherOK(t, exec, "A,B")

	exec.On("RunCommand", "A", mock.Anything).Return("", nil)
	exec.On("RunCommand", "B", mock.Anything).Return("", assert.AnError)

	handles := []string{
		formatHandle("A", "1"),
		formatHandle("A", "2"),
		formatHandle("B", "3"),
		"garbage",
	}

	err := d.KillJob(handles)
	require.Error(t, err)

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	require.Len(t, dispatchErr.Failed, 1)
	assert.Equal(t, "B", dispatchErr.Failed[0].Host)

	exec.AssertNumberOfCalls(t, "RunCommand", 2)
}

func TestKillJob_AllSucceedReturnsNil(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	d := newDispatcherOK(t, exec, "A")
	exec.On("RunCommand", "A", mock.Anything).Return("", nil)

	err := d.KillJob([]string{formatHandle("A", "1")})
	assert.NoError(t, err)
}

func TestGetJobStatus_ParsesPerHandleState(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	d := newDispatcherOK(t, exec, "A")
	exec.On("RunCommand", "A", mock.Anything).Return("1 RUNNING\n2 DONE\n3 WAITING\n", nil)

	h1, h2, h3 := formatHandle("A", "1"), formatHandle("A", "2"), formatHandle("A", "3")
	result := d.GetJobStatus([]string{h1, h2, h3})

	assert.Equal(t, StatusRunning, result[h1])
	assert.Equal(t, StatusDone, result[h2])
	assert.Equal(t, StatusWaiting, result[h3])
}

func TestGetJobStatus_UnreachableHostLeavesUnknown(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	d := newDispatcherOK(t, exec, "A")
	exec.On("RunCommand", "A", mock.Anything).Return("", assert.AnError)

	h := formatHandle("A", "1")
	result := d.GetJobStatus([]string{h})
	assert.Equal(t, StatusUnknown, result[h])
}

func TestGetJobStatus_MalformedHandleIsUnknown(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	d := newDispatcherOK(t, exec, "A")

	result := d.GetJobStatus([]string{"not-a-handle"})
	assert.Equal(t, StatusUnknown, result["not-a-handle"])
	exec.AssertNotCalled(t, "RunCommand", mock.Anything, mock.Anything)
}

func TestStatus_AggregatesRunningAcrossHosts(t *testing.T) {
	exec := new(testutil.MockHostExecutor)
	d := newDispatcherOK(t, exec, "A,B")
	exec.On("RunCommand", "A", mock.Anything).Return("2", nil)
	exec.On("RunCommand", "B", mock.Anything).Return("3", nil)

	status := d.Status()
	assert.Equal(t, 5, status.RunningJobs)
	assert.Equal(t, 0, status.WaitingJobs)
	assert.Equal(t, 0, status.SubmittedJobs)
}

func statusProbe(cmd string) bool {
	return len(cmd) > 0 && cmd[0] == 'n'
}

func submitCmd(cmd string) bool {
	return strings.HasPrefix(cmd, "cd ") && strings.Contains(cmd, "base64 -d")
}

func formatHandle(host, id string) string {
	return "ssh/" + host + "/" + id
}

func parseHandle(t *testing.T, handle string) (string, string, bool) {
	t.Helper()
	return jobhandle.Parse(handle)
}
