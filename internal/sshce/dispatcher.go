// Package sshce implements the Multi-Host SSH Compute Element: it ranks a
// pool of SSH-reachable hosts by free capacity, submits executables
// (optionally wrapped with a delegated credential), and reports/terminates
// jobs by host-qualified handle.
package sshce

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/gridforge/jobcore/internal/credwrap"
	"github.com/gridforge/jobcore/internal/jobhandle"
	"github.com/gridforge/jobcore/internal/sshexec"
)

// Config is the Compute Element's configuration surface.
type Config struct {
	Queue          string
	ExecQueue      string
	SharedArea     string
	BatchOutput    string
	BatchError     string
	InfoArea       string
	ExecutableArea string
	WorkArea       string
	SSHHost        string
	SubmitOptions  string
	RemoveOutput   string
}

// resolved holds the post-_reset absolute paths and parsed host pool.
type resolved struct {
	execQueue      string
	batchOutput    string
	batchError     string
	infoArea       string
	executableArea string
	workArea       string
	hosts          []HostSpec
	removeOutput   bool
}

// Dispatcher is the Multi-Host SSH Compute Element. Beyond the host set it
// keeps only a count of the jobs it has submitted; running counts are
// probed from the hosts on demand. Choosing which jobs to run is left to an
// upstream matcher; the dispatcher itself never schedules.
type Dispatcher struct {
	exec sshexec.HostExecutor
	cfg  resolved

	submittedJobs int
}

// NewDispatcher runs the one-time `_reset` preparation: resolves paths,
// parses the host set, and primes each host's directory tree.
func NewDispatcher(exec sshexec.HostExecutor, cfg Config) (*Dispatcher, error) {
	r := resolved{
		execQueue:      firstNonEmpty(cfg.ExecQueue, cfg.Queue),
		batchOutput:    joinArea(cfg.SharedArea, cfg.BatchOutput),
		batchError:     joinArea(cfg.SharedArea, cfg.BatchError),
		infoArea:       joinArea(cfg.SharedArea, cfg.InfoArea),
		executableArea: joinArea(cfg.SharedArea, cfg.ExecutableArea),
		workArea:       joinArea(cfg.SharedArea, cfg.WorkArea),
		hosts:          ParseHostPool(cfg.SSHHost),
		removeOutput:   parseRemoveOutput(cfg.RemoveOutput),
	}

	for _, h := range r.hosts {
		dirs := []string{r.batchOutput, r.batchError, r.infoArea, r.executableArea, r.workArea}
		if err := exec.PrepareHost(h.Host, dirs); err != nil {
			return nil, fmt.Errorf("prepare host %s: %w", h.Host, err)
		}
	}

	return &Dispatcher{exec: exec, cfg: r}, nil
}

func joinArea(sharedArea, area string) string {
	if area == "" || filepath.IsAbs(area) {
		return area
	}
	return filepath.Join(sharedArea, area)
}

func parseRemoveOutput(v string) bool {
	switch strings.ToLower(v) {
	case "no", "false", "0":
		return false
	default:
		return true
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// hostRunningCounts probes every host once and returns a single snapshot of
// {host -> running}, used throughout one SubmitJob call so ranking is
// consistent for that call. Unreachable hosts are skipped silently.
func (d *Dispatcher) hostRunningCounts() map[string]int {
	counts := make(map[string]int, len(d.cfg.hosts))
	for _, h := range d.cfg.hosts {
		running, err := d.getHostStatus(h.Host)
		if err != nil {
			continue
		}
		counts[h.Host] = running
	}
	return counts
}

// getHostStatus counts the host's currently-live job processes by checking
// liveness of each recorded pid file under infoArea.
func (d *Dispatcher) getHostStatus(host string) (int, error) {
	cmd := fmt.Sprintf(
		`n=0; for f in %s/*.pid; do [ -e "$f" ] || continue; pid=$(cat "$f"); if kill -0 "$pid" 2>/dev/null; then n=$((n+1)); fi; done; echo $n`,
		shQuote(d.cfg.infoArea),
	)
	out, err := d.exec.RunCommand(host, cmd)
	if err != nil {
		return 0, err
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(out), "%d", &n); err != nil {
		return 0, fmt.Errorf("parse host status output %q: %w", out, err)
	}
	return n, nil
}

func shQuote(s string) string {
	return "'" + s + "'"
}

// SubmitJob dispatches up to numberOfJobs copies of executable, ranking
// hosts by free capacity and wrapping the executable with the credential
// at credentialPath when supplied. Returns the handles actually placed,
// possibly fewer than requested; the caller compares count vs. request.
func (d *Dispatcher) SubmitJob(executable, credentialPath, credentialEnvVar string, numberOfJobs int) ([]string, error) {
	if err := ensureExecutable(executable); err != nil {
		return nil, err
	}

	runFile := executable
	if credentialPath != "" {
		wrapped, cleanup, err := credwrap.Wrap(executable, credentialPath, credentialEnvVar)
		if err != nil {
			return nil, fmt.Errorf("wrap credential: %w", err)
		}
		defer cleanup()
		runFile = wrapped
	}

	running := d.hostRunningCounts()

	bySlots := make(map[int][]HostSpec)
	maxSlots := 0
	for _, h := range d.cfg.hosts {
		r, probed := running[h.Host]
		if !probed {
			continue
		}
		free := h.MaxSlots - r
		if free < 0 {
			free = 0
		}
		if free == 0 {
			continue
		}
		bySlots[free] = append(bySlots[free], h)
		if free > maxSlots {
			maxSlots = free
		}
	}

	if maxSlots == 0 {
		return nil, fmt.Errorf("No online node found on queue")
	}

	var handles []string
	remaining := numberOfJobs
	for s := maxSlots; s >= 1 && remaining > 0; s-- {
		for _, h := range bySlots[s] {
			if remaining <= 0 {
				break
			}
			n := s
			if remaining < n {
				n = remaining
			}
			got, err := d.submitJobToHost(runFile, n, h.Host)
			if err != nil {
				continue
			}
			handles = append(handles, got...)
			remaining -= len(got)
		}
	}

	d.submittedJobs += len(handles)
	return handles, nil
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat executable: %w", err)
	}
	if info.Mode()&0111 == 0 {
		if err := os.Chmod(path, info.Mode()|0755); err != nil {
			return fmt.Errorf("make executable: %w", err)
		}
	}
	return nil
}

// submitJobToHost places n copies of file on host and returns their
// handles, one per invocation. The file's bytes are base64-embedded
// directly in the remote command, since RunCommand only carries a single
// command string and not a separate data channel to push file contents
// through.
func (d *Dispatcher) submitJobToHost(file string, n int, host string) ([]string, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read executable %s: %w", file, err)
	}
	encoded := base64.StdEncoding.EncodeToString(content)

	var handles []string
	for i := 0; i < n; i++ {
		localID := uuid.New().String()
		remoteBin := filepath.Join(d.cfg.executableArea, filepath.Base(file)+"-"+localID)

		cmd := fmt.Sprintf(
			`cd %s && echo %s | base64 -d > %s && chmod +x %s && nohup %s > %s/%s.out 2> %s/%s.err < /dev/null & echo $! > %s/%s.pid`,
			shQuote(d.cfg.workArea),
			shQuote(encoded),
			shQuote(remoteBin), shQuote(remoteBin),
			shQuote(remoteBin),
			shQuote(d.cfg.batchOutput), localID,
			shQuote(d.cfg.batchError), localID,
			shQuote(d.cfg.infoArea), localID,
		)

		if _, err := d.exec.RunCommand(host, cmd); err != nil {
			return handles, fmt.Errorf("submit to %s: %w", host, err)
		}

		handles = append(handles, jobhandle.Format(host, localID))
	}
	return handles, nil
}

// groupByHost partitions handles by their Host fragment, dropping any
// handle that fails to parse.
func groupByHost(handles []string) map[string][]string {
	groups := make(map[string][]string)
	for _, h := range handles {
		host, _, ok := jobhandle.Parse(h)
		if !ok {
			continue
		}
		groups[host] = append(groups[host], h)
	}
	return groups
}

// HostFailure records one host group's failure during KillJob.
type HostFailure struct {
	Host string
	Err  error
}

// DispatchError carries the per-group failures from a partially-failed
// KillJob as a typed error, rather than a side-channelled `Failed` list.
type DispatchError struct {
	Failed []HostFailure
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("kill failed on %d host(s)", len(e.Failed))
}

// KillJob terminates the given handles, grouped by host so each host only
// sees one remote call regardless of how many of its jobs are named.
func (d *Dispatcher) KillJob(handles []string) error {
	groups := groupByHost(handles)

	var failed []HostFailure
	// Deterministic order keeps test assertions and logs stable.
	hosts := sortedKeys(groups)
	for _, host := range hosts {
		if err := d.killJobOnHost(groups[host], host); err != nil {
			failed = append(failed, HostFailure{Host: host, Err: err})
		}
	}

	if len(failed) > 0 {
		return &DispatchError{Failed: failed}
	}
	return nil
}

func (d *Dispatcher) killJobOnHost(handles []string, host string) error {
	var ids []string
	for _, h := range handles {
		_, localID, ok := jobhandle.Parse(h)
		if !ok {
			continue
		}
		ids = append(ids, localID)
	}
	if len(ids) == 0 {
		return nil
	}

	cmd := "for id in"
	for _, id := range ids {
		cmd += " " + id
	}
	cmd += fmt.Sprintf(`; do f=%s/$id.pid; [ -e "$f" ] && kill -9 "$(cat "$f")" 2>/dev/null; done`, shQuote(d.cfg.infoArea))

	_, err := d.exec.RunCommand(host, cmd)
	return err
}

// GetJobStatus reports per-handle status, grouped by host; any handle
// whose host probe fails is marked Unknown, and every input handle is
// guaranteed a result entry.
func (d *Dispatcher) GetJobStatus(handles []string) map[string]JobStatus {
	result := make(map[string]JobStatus, len(handles))
	for _, h := range handles {
		result[h] = StatusUnknown
	}

	groups := groupByHost(handles)
	for host, group := range groups {
		statuses, err := d.getJobStatusOnHost(group, host)
		if err != nil {
			continue // leave this group as Unknown
		}
		for h, s := range statuses {
			result[h] = s
		}
	}
	return result
}

func (d *Dispatcher) getJobStatusOnHost(handles []string, host string) (map[string]JobStatus, error) {
	byID := make(map[string]string, len(handles))
	for _, h := range handles {
		_, localID, ok := jobhandle.Parse(h)
		if !ok {
			continue
		}
		byID[localID] = h
	}
	if len(byID) == 0 {
		return nil, nil
	}

	cmd := "for id in"
	for id := range byID {
		cmd += " " + id
	}
	cmd += fmt.Sprintf(
		`; do p=%[1]s/$id.pid; if [ -e "$p" ] && kill -0 "$(cat "$p")" 2>/dev/null; then echo "$id RUNNING"; `+
			`elif [ -e %[2]s/$id.out ] || [ -e %[3]s/$id.err ]; then echo "$id DONE"; else echo "$id WAITING"; fi; done`,
		shQuote(d.cfg.infoArea), shQuote(d.cfg.batchOutput), shQuote(d.cfg.batchError),
	)

	out, err := d.exec.RunCommand(host, cmd)
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]JobStatus, len(byID))
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		id, state := fields[0], fields[1]
		handle, ok := byID[id]
		if !ok {
			continue
		}
		switch state {
		case "RUNNING":
			statuses[handle] = StatusRunning
		case "DONE":
			statuses[handle] = StatusDone
		case "WAITING":
			statuses[handle] = StatusWaiting
		default:
			statuses[handle] = StatusUnknown
		}
	}
	return statuses, nil
}

// CEStatus summarizes the compute element: submitted jobs (a counter owned
// here), aggregate running jobs across reachable hosts, and zero waiting
// jobs since there is no local queue.
type CEStatus struct {
	SubmittedJobs int
	RunningJobs   int
	WaitingJobs   int
}

func (d *Dispatcher) Status() CEStatus {
	running := 0
	for _, h := range d.cfg.hosts {
		n, err := d.getHostStatus(h.Host)
		if err != nil {
			continue
		}
		running += n
	}
	return CEStatus{
		SubmittedJobs: d.submittedJobs,
		RunningJobs:   running,
		WaitingJobs:   0,
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
