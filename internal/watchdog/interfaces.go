package watchdog

import "time"

// PayloadMonitor is the execution-thread collaborator: the Watchdog reads
// PID/CPU/liveness through it and requests kill through it, but never owns
// the payload process directly.
type PayloadMonitor interface {
	Alive() bool
	PID() int
	CPUTime() (time.Duration, error)
	Kill(withChildren bool) error
	PeekOutput(n int) (string, error)
}

// HeartbeatResponse is the optional control dictionary a heartbeat RPC may
// carry back.
type HeartbeatResponse struct {
	Control map[string]any
}

// Controller is the narrow RPC contract the Watchdog relies on:
// sendHeartBeat, setJobParameters and renewProxy. The transport itself (an
// HTTP+JSON client here, see internal/controllerclient) is an external
// collaborator; the Watchdog only depends on this interface.
type Controller interface {
	SendHeartbeat(jobID int, heartbeat map[string]float64, static map[string]string) (HeartbeatResponse, error)
	SetJobParameters(jobID int, pairs [][2]string) error
	RenewProxy(minLifetime, newLifetime time.Duration, proxyPath string) error
}
