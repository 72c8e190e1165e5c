// Package watchdog is the in-process Job Watchdog: it periodically samples
// local resource counters, evaluates health predicates, streams heartbeats
// to a remote controller, interprets controller commands, and terminates
// the payload on policy violation.
package watchdog

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gridforge/jobcore/internal/procfs"
)

const (
	seriesLoadAverage = "LoadAverage"
	seriesMemoryUsed  = "MemoryUsed"
	seriesDiskSpace   = "DiskSpace"
	seriesCPUConsumed = "CPUConsumed"
	seriesWallClock   = "WallClockTime"
	peekLineCount     = 200
)

// batchEnvVars are consulted, in order, at calibration time to detect the
// local batch-system job identity.
var batchEnvVars = []string{"LSB_JOBID", "PBS_JOBID", "QSUB_REQNAME"}

// initialValues are the t=0 scalars captured once at calibration, used
// later to compute usage-summary deltas.
type initialValues struct {
	LoadAverage    float64
	MemoryUsedKB   float64
	DiskSpaceMB    float64
	CPUConsumedSec float64
}

// Watchdog supervises one payload process for its entire lifetime: created
// once, initialized, then ticked by an external driver until the payload
// exits or a check returns a fatal verdict.
type Watchdog struct {
	cfg        Config
	adapters   procfs.Adapters
	payload    PayloadMonitor
	controller Controller

	jobID      int
	jobCPUTime time.Duration // per-job CPU time budget (external, not a tunable)
	controlDir string

	series       *ParamSeries
	startTime    time.Time
	checkCount   int
	nullCPUCount int

	jobPeekFlag   bool
	peekFailCount int

	proxyLocation  string
	isGenericPilot bool

	initial    initialValues
	localJobID string
	nodeInfo   procfs.NodeInfo
}

// New constructs a Watchdog for one payload. jobCPUTime is the per-job CPU
// budget the CPULimit check compares against; it comes from the job
// descriptor (accounting, out of scope here), not from Config.
func New(cfg Config, adapters procfs.Adapters, payload PayloadMonitor, controller Controller, jobID int, jobCPUTime time.Duration, controlDir string) *Watchdog {
	return &Watchdog{
		cfg:         cfg,
		adapters:    adapters,
		payload:     payload,
		controller:  controller,
		jobID:       jobID,
		jobCPUTime:  jobCPUTime,
		controlDir:  controlDir,
		series:      NewParamSeries(),
		jobPeekFlag: true,
	}
}

func stopMarkerPath(controlDir string) string {
	return filepath.Join(controlDir, "stop_agent")
}

// Initialize clamps CheckingTime, clears any prior stop marker, resets the
// check counter, and calibrates. The tunables themselves are supplied to New.
func (w *Watchdog) Initialize() error {
	w.cfg.clamp()

	if err := os.Remove(stopMarkerPath(w.controlDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear stop marker: %w", err)
	}

	w.checkCount = 1
	return w.calibrate()
}

// calibrate acquires the t=0 values in a fixed order, so a missing
// collaborator fails fast instead of producing partial baselines. Any
// failure here is fatal to calibration.
func (w *Watchdog) calibrate() error {
	w.startTime = time.Now()
	w.series = NewParamSeries()

	cpu, err := w.payload.CPUTime()
	if err != nil {
		return fmt.Errorf("calibrate CPU: %w", err)
	}

	loadAvg, err := w.adapters.LoadAverage()
	if err != nil {
		return fmt.Errorf("calibrate load average: %w", err)
	}

	memUsed, err := w.adapters.MemoryUsedKB()
	if err != nil {
		return fmt.Errorf("calibrate memory: %w", err)
	}

	diskFree, err := w.adapters.DiskFreeMB(w.controlDir)
	if err != nil {
		return fmt.Errorf("calibrate disk space: %w", err)
	}

	nodeInfo, err := w.adapters.NodeInformation()
	if err != nil {
		return fmt.Errorf("calibrate node information: %w", err)
	}
	w.nodeInfo = nodeInfo

	w.initial = initialValues{
		LoadAverage:    loadAvg,
		MemoryUsedKB:   float64(memUsed),
		DiskSpaceMB:    float64(diskFree),
		CPUConsumedSec: cpu.Seconds(),
	}

	for _, envVar := range batchEnvVars {
		if v := os.Getenv(envVar); v != "" {
			w.localJobID = v
			break
		}
	}

	w.reportCalibration()
	return nil
}

func (w *Watchdog) reportCalibration() {
	if os.Getenv("JOBID") == "" {
		return
	}
	pairs := [][2]string{
		{"NodeInformation.Hostname", w.nodeInfo.Hostname},
		{"NodeInformation.CPUModel", w.nodeInfo.CPUModel},
		{"NodeInformation.CPUCount", fmt.Sprintf("%d", w.nodeInfo.CPUCount)},
		{"NodeInformation.MemTotalKB", fmt.Sprintf("%d", w.nodeInfo.MemTotalKB)},
		{"NodeInformation.OSRelease", w.nodeInfo.OSRelease},
		{"NodeInformation.LocalJobID", w.localJobID},
		{"InitialValues.LoadAverage", fmt.Sprintf("%v", w.initial.LoadAverage)},
		{"InitialValues.MemoryUsed", fmt.Sprintf("%v", w.initial.MemoryUsedKB)},
		{"InitialValues.DiskSpace", fmt.Sprintf("%v", w.initial.DiskSpaceMB)},
		{"InitialValues.CPUConsumed", fmt.Sprintf("%v", w.initial.CPUConsumedSec)},
	}
	if err := w.controller.SetJobParameters(w.jobID, pairs); err != nil {
		log.Printf("[watchdog] report calibration: %v", err)
	}
}

// SetPilotProxyLocation records the credential path and tags whether it is
// a generic pilot credential. Failures are logged, never fatal.
func (w *Watchdog) SetPilotProxyLocation(path string) {
	w.proxyLocation = path

	generic, err := isGenericPilotCredential(path)
	if err != nil {
		log.Printf("[watchdog] load credential metadata for %s: %v", path, err)
		return
	}
	w.isGenericPilot = generic
}

// isGenericPilotCredential is a stand-in for proxy inspection: generic
// pilot credentials are tagged by a sibling marker file, since the actual
// certificate parsing belongs to the proxy subsystem this core does not
// own.
func isGenericPilotCredential(path string) (bool, error) {
	_, err := os.Stat(path + ".generic")
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Execute runs one supervision tick. It always reports success outward;
// fatal conditions are handled internally by killing and finalizing the
// payload.
func (w *Watchdog) Execute() error {
	if !w.payload.Alive() {
		if err := w.finalize(); err != nil {
			log.Printf("[watchdog] finalize on payload exit: %v", err)
		}
		return nil
	}

	elapsed := time.Since(w.startTime)
	threshold := time.Duration(w.checkCount) * w.cfg.CheckingTime
	if elapsed < threshold {
		return nil
	}

	if err := w.performChecks(); err != nil {
		log.Printf("[watchdog] performChecks: %v", err)
	}
	return nil
}

// performChecks is the heavy-check algorithm: sample, optionally renew the
// pilot proxy, evaluate health, then heartbeat or kill depending on the
// verdict.
func (w *Watchdog) performChecks() error {
	defer func() { w.checkCount++ }()

	heartbeat, err := w.sample()
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}

	if w.isGenericPilot && w.proxyLocation != "" {
		if err := w.controller.RenewProxy(1*time.Hour, 12*time.Hour, w.proxyLocation); err != nil {
			log.Printf("[watchdog] proxy renewal: %v", err)
		}
	}

	verdict := w.checkProgress()
	if verdict.fatal {
		log.Printf("[watchdog] fatal check %q: %s", verdict.check, verdict.reason)
		w.peek()
		w.kill()
		if err := w.finalize(); err != nil {
			log.Printf("[watchdog] finalize after fatal check: %v", err)
		}
		return nil
	}

	static := map[string]string{}
	if output := w.peek(); output != "" {
		static["StandardOutput"] = output
	}

	resp, err := w.controller.SendHeartbeat(w.jobID, heartbeat, static)
	if err != nil {
		log.Printf("[watchdog] sendHeartBeat: %v", err)
		return nil
	}

	if kill, ok := resp.Control["Kill"]; ok {
		log.Printf("[watchdog] controller requested kill: %v", kill)
		w.kill()
		if err := w.finalize(); err != nil {
			log.Printf("[watchdog] finalize after control kill: %v", err)
		}
	} else if len(resp.Control) > 0 {
		log.Printf("[watchdog] ignoring unrecognized control signal: %v", resp.Control)
	}

	return nil
}

// sampleCPUSeconds reads the payload's cumulative CPU time and round-trips
// it through the HH:MM:SS textual form before use. The series and
// every comparison against it (checkCPUStall, checkCPULimit) therefore see
// values that have passed through ParseCPUTimeSeconds's "00"-stripping
// quirk, not the raw duration.
func (w *Watchdog) sampleCPUSeconds() (float64, error) {
	cpu, err := w.payload.CPUTime()
	if err != nil {
		return 0, err
	}
	return ParseCPUTimeSeconds(FormatCPUTime(cpu))
}

// sample appends one reading to each required series and builds the
// numeric heartbeat payload.
func (w *Watchdog) sample() (map[string]float64, error) {
	loadAvg, err := w.adapters.LoadAverage()
	if err != nil {
		log.Printf("[watchdog] load average unavailable: %v", err)
	} else {
		w.series.Append(seriesLoadAverage, loadAvg)
	}

	memUsed, err := w.adapters.MemoryUsedKB()
	if err != nil {
		log.Printf("[watchdog] memory unavailable: %v", err)
	} else {
		w.series.Append(seriesMemoryUsed, float64(memUsed))
	}

	diskFree, err := w.adapters.DiskFreeMB(w.controlDir)
	if err != nil {
		log.Printf("[watchdog] disk space unavailable: %v", err)
	} else {
		w.series.Append(seriesDiskSpace, float64(diskFree))
	}

	cpuSeconds, err := w.sampleCPUSeconds()
	if err != nil {
		log.Printf("[watchdog] CPU time unavailable: %v", err)
	} else {
		w.series.Append(seriesCPUConsumed, cpuSeconds)
	}

	wallSeconds := time.Since(w.startTime).Seconds()
	w.series.Append(seriesWallClock, wallSeconds)

	return map[string]float64{
		"LoadAverage":        loadAvg,
		"MemoryUsed":         float64(memUsed),
		"AvailableDiskSpace": float64(diskFree),
		"CPUConsumed":        cpuSeconds,
		"WallClockTime":      wallSeconds,
	}, nil
}

// verdict is the outcome of one checkProgress predicate.
type verdict struct {
	fatal  bool
	check  string
	reason string
}

func ok() verdict { return verdict{} }

func fatal(check, reason string) verdict {
	return verdict{fatal: true, check: check, reason: reason}
}

// checkProgress runs the ordered health predicates. It stops at the first
// fatal verdict; disabled checks short-circuit as success;
// measurement-unavailable is never fatal.
func (w *Watchdog) checkProgress() verdict {
	if v := w.checkWallClock(); v.fatal {
		return v
	}
	if v := w.checkDiskSpace(); v.fatal {
		return v
	}
	if v := w.checkLoadAverage(); v.fatal {
		return v
	}
	if v := w.checkCPUStall(); v.fatal {
		return v
	}
	if v := w.checkCPULimit(); v.fatal {
		return v
	}
	return ok()
}

func (w *Watchdog) checkWallClock() verdict {
	if !w.cfg.Flags.WallClock {
		return ok()
	}
	if time.Since(w.startTime) > w.cfg.MaxWallClockTime {
		return fatal("WallClock", "wall clock time limit exceeded")
	}
	return ok()
}

func (w *Watchdog) checkDiskSpace() verdict {
	if !w.cfg.Flags.DiskSpace {
		return ok()
	}
	last, has := w.series.Last(seriesDiskSpace)
	if !has {
		return ok()
	}
	if last < float64(w.cfg.MinDiskSpaceMB) {
		return fatal("DiskSpace", "disk space below floor")
	}
	return ok()
}

func (w *Watchdog) checkLoadAverage() verdict {
	if !w.cfg.Flags.LoadAverage {
		return ok()
	}
	last, has := w.series.Last(seriesLoadAverage)
	if !has {
		return ok()
	}
	if last > w.cfg.LoadAvgLimit {
		return fatal("LoadAverage", "load average limit exceeded")
	}
	return ok()
}

// checkCPUStall flags a payload that has stopped accumulating CPU time
// relative to wall clock, over a window sized by SampleCPUTime. A window
// of all-zero samples is treated as unmeasurable and never counts as a
// stall. nullCPUCount only ever increments here; it is never reset on a
// non-zero interval, so intermittent stalls accumulate toward
// NullCPULimit across the whole run rather than each needing to be
// consecutive.
func (w *Watchdog) checkCPUStall() verdict {
	if !w.cfg.Flags.CPUConsumed {
		return ok()
	}

	iterations := int(w.cfg.SampleCPUTime / w.cfg.CheckingTime)
	if iterations <= 0 {
		return ok()
	}
	if w.series.Len(seriesCPUConsumed) < iterations {
		return ok()
	}

	window := w.series.Window(seriesCPUConsumed, iterations)

	allZero := true
	for _, v := range window {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return ok()
	}

	delta := window[len(window)-1] - window[0]

	if delta == 0 {
		w.nullCPUCount++
		if w.nullCPUCount > w.cfg.NullCPULimit {
			return fatal("CPUConsumed", fmt.Sprintf(
				"stalled: no accumulated CPU for %d x %s",
				w.cfg.NullCPULimit, w.cfg.SampleCPUTime))
		}
		return ok()
	}

	ratio := 100 * delta / w.cfg.SampleCPUTime.Seconds()
	if ratio < w.cfg.MinCPUWallRatio {
		return fatal("CPUConsumed", "stalled: low CPU/wallclock ratio")
	}
	return ok()
}

// checkCPULimit evaluates cumulative CPU against the per-job budget plus
// margin.
//
// A prior version of this check had a branch referencing an undefined
// variable, unreachable under normal inputs and not mechanically
// reproducible here since Go has no equivalent of referencing an
// undefined name at runtime. This implements the evidently-intended,
// uncorrupted comparison instead; the dead branch is not carried over.
func (w *Watchdog) checkCPULimit() verdict {
	if !w.cfg.Flags.CPULimit {
		return ok()
	}
	last, has := w.series.Last(seriesCPUConsumed)
	if !has {
		return ok()
	}
	limit := w.jobCPUTime.Seconds() * (1 + w.cfg.JobCPUMarginPct/100)
	if last > limit {
		return fatal("CPULimit", "cumulative CPU exceeds job budget plus margin")
	}
	return ok()
}

// peek returns recent payload stdout, disabling further peeking after too
// many consecutive failures.
func (w *Watchdog) peek() string {
	if !w.jobPeekFlag {
		return ""
	}
	out, err := w.payload.PeekOutput(peekLineCount)
	if err != nil {
		w.peekFailCount++
		if w.peekFailCount > w.cfg.PeekRetry {
			w.jobPeekFlag = false
			log.Printf("[watchdog] disabling peek after %d consecutive failures", w.peekFailCount)
		}
		return ""
	}
	w.peekFailCount = 0
	return out
}

// kill requests the payload (and its descendants) be terminated. The
// result is logged but not acted on further, kill is best-effort from the
// Watchdog's perspective.
func (w *Watchdog) kill() {
	if err := w.payload.Kill(true); err != nil {
		log.Printf("[watchdog] kill payload: %v", err)
	}
}

// finalize writes the stop marker and emits the usage summary. It is safe
// to call twice, the second call just overwrites the marker with a new
// timestamp.
func (w *Watchdog) finalize() error {
	if err := os.MkdirAll(w.controlDir, 0755); err != nil {
		return fmt.Errorf("create control dir: %w", err)
	}

	msg := fmt.Sprintf("Watchdog Agent Stopped at %s", time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(stopMarkerPath(w.controlDir), []byte(msg), 0644); err != nil {
		return fmt.Errorf("write stop marker: %w", err)
	}

	w.sendUsageSummary()
	return nil
}

func (w *Watchdog) sendUsageSummary() {
	if os.Getenv("JOBID") == "" {
		return
	}

	lastMem, _ := w.series.Last(seriesMemoryUsed)
	lastDisk, _ := w.series.Last(seriesDiskSpace)
	lastCPU, _ := w.series.Last(seriesCPUConsumed)
	lastWall, _ := w.series.Last(seriesWallClock)

	pairs := [][2]string{
		{"AverageLoadAverage", fmt.Sprintf("%v", w.series.Mean(seriesLoadAverage))},
		{"MemoryUsedDelta", fmt.Sprintf("%v", absDelta(lastMem, w.initial.MemoryUsedKB))},
		{"DiskSpaceDelta", fmt.Sprintf("%v", absDelta(lastDisk, w.initial.DiskSpaceMB))},
		{"CPUConsumed", fmt.Sprintf("%v", lastCPU)},
		{"WallClockTime", fmt.Sprintf("%v", lastWall)},
	}

	if err := w.controller.SetJobParameters(w.jobID, pairs); err != nil {
		log.Printf("[watchdog] send usage summary: %v", err)
	}
}

func absDelta(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

// Run drives the Watchdog at PollingTime intervals until the payload has
// exited and been finalized, or ctx is cancelled.
func Run(ctx context.Context, w *Watchdog) error {
	if err := w.Initialize(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	ticker := time.NewTicker(w.cfg.PollingTime)
	defer ticker.Stop()

	for {
		if !w.payload.Alive() {
			return w.Execute()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Execute(); err != nil {
				return err
			}
		}
	}
}
