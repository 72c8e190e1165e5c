// Package testutil provides shared test mocks: one mock per external
// collaborator interface, built on testify/mock.
package testutil

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/gridforge/jobcore/internal/procfs"
	"github.com/gridforge/jobcore/internal/sshexec"
	"github.com/gridforge/jobcore/internal/watchdog"
)

// MockHostExecutor is a testify mock for sshexec.HostExecutor.
type MockHostExecutor struct {
	mock.Mock
}

var _ sshexec.HostExecutor = (*MockHostExecutor)(nil)

func (m *MockHostExecutor) RunCommand(host, cmd string) (string, error) {
	args := m.Called(host, cmd)
	return args.String(0), args.Error(1)
}

func (m *MockHostExecutor) PrepareHost(host string, dirs []string) error {
	args := m.Called(host, dirs)
	return args.Error(0)
}

// MockAdapters is a testify mock for procfs.Adapters.
type MockAdapters struct {
	mock.Mock
}

var _ procfs.Adapters = (*MockAdapters)(nil)

func (m *MockAdapters) LoadAverage() (float64, error) {
	args := m.Called()
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockAdapters) MemoryUsedKB() (uint64, error) {
	args := m.Called()
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockAdapters) DiskFreeMB(path string) (uint64, error) {
	args := m.Called(path)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockAdapters) NodeInformation() (procfs.NodeInfo, error) {
	args := m.Called()
	return args.Get(0).(procfs.NodeInfo), args.Error(1)
}

// MockPayloadMonitor is a testify mock for watchdog.PayloadMonitor.
type MockPayloadMonitor struct {
	mock.Mock
}

var _ watchdog.PayloadMonitor = (*MockPayloadMonitor)(nil)

func (m *MockPayloadMonitor) Alive() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockPayloadMonitor) PID() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockPayloadMonitor) CPUTime() (time.Duration, error) {
	args := m.Called()
	return args.Get(0).(time.Duration), args.Error(1)
}

func (m *MockPayloadMonitor) Kill(withChildren bool) error {
	args := m.Called(withChildren)
	return args.Error(0)
}

func (m *MockPayloadMonitor) PeekOutput(n int) (string, error) {
	args := m.Called(n)
	return args.String(0), args.Error(1)
}

// MockController is a testify mock for watchdog.Controller.
type MockController struct {
	mock.Mock
}

var _ watchdog.Controller = (*MockController)(nil)

func (m *MockController) SendHeartbeat(jobID int, heartbeat map[string]float64, static map[string]string) (watchdog.HeartbeatResponse, error) {
	args := m.Called(jobID, heartbeat, static)
	return args.Get(0).(watchdog.HeartbeatResponse), args.Error(1)
}

func (m *MockController) SetJobParameters(jobID int, pairs [][2]string) error {
	args := m.Called(jobID, pairs)
	return args.Error(0)
}

func (m *MockController) RenewProxy(minLifetime, newLifetime time.Duration, proxyPath string) error {
	args := m.Called(minLifetime, newLifetime, proxyPath)
	return args.Error(0)
}
