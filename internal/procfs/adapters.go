// Package procfs supplies the Watchdog's platform adapters: load average,
// memory, disk space and node identity. The base Watchdog type only knows
// about the Adapters interface; concrete measurement lives here so it can
// be swapped or mocked without touching supervision logic.
package procfs

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// NodeInfo is reported once at calibration time.
type NodeInfo struct {
	Hostname    string
	CPUModel    string
	CPUCount    int
	MemTotalKB  uint64
	OSRelease   string
}

// Adapters is the capability set the base Watchdog requires from the host
// platform. A concrete implementation is supplied at construction; there is
// no global registration of platform variants.
type Adapters interface {
	LoadAverage() (float64, error)
	MemoryUsedKB() (uint64, error)
	DiskFreeMB(path string) (uint64, error)
	NodeInformation() (NodeInfo, error)
}

// Linux reads the above directly from /proc and syscall.Statfs. It is the
// only Adapters implementation this module ships; additional platforms
// would add sibling types behind the same interface.
type Linux struct{}

// NewLinux returns the /proc-backed Adapters implementation.
func NewLinux() Linux { return Linux{} }

func (Linux) LoadAverage() (float64, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, fmt.Errorf("read loadavg: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) < 1 {
		return 0, fmt.Errorf("unexpected /proc/loadavg contents")
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("parse loadavg: %w", err)
	}
	return v, nil
}

func (Linux) MemoryUsedKB() (uint64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, fmt.Errorf("open meminfo: %w", err)
	}
	defer f.Close()

	var total, free, buffers, cached uint64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			total = parseMeminfoKB(line)
		case strings.HasPrefix(line, "MemFree:"):
			free = parseMeminfoKB(line)
		case strings.HasPrefix(line, "Buffers:"):
			buffers = parseMeminfoKB(line)
		case strings.HasPrefix(line, "Cached:"):
			cached = parseMeminfoKB(line)
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("could not determine MemTotal")
	}
	used := total - free - buffers - cached
	return used, nil
}

func parseMeminfoKB(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseUint(fields[1], 10, 64)
	return v
}

func (Linux) DiskFreeMB(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	freeBytes := stat.Bavail * uint64(stat.Bsize)
	return freeBytes / (1024 * 1024), nil
}

func (Linux) NodeInformation() (NodeInfo, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return NodeInfo{}, fmt.Errorf("hostname: %w", err)
	}

	info := NodeInfo{Hostname: hostname}

	if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
		sc := bufio.NewScanner(strings.NewReader(string(data)))
		for sc.Scan() {
			line := sc.Text()
			if strings.HasPrefix(line, "model name") {
				parts := strings.SplitN(line, ":", 2)
				if len(parts) == 2 {
					info.CPUModel = strings.TrimSpace(parts[1])
				}
			}
			if strings.HasPrefix(line, "processor") {
				info.CPUCount++
			}
		}
	}

	if data, err := os.ReadFile("/proc/meminfo"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "MemTotal:") {
				info.MemTotalKB = parseMeminfoKB(line)
				break
			}
		}
	}

	if data, err := os.ReadFile("/etc/os-release"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "PRETTY_NAME=") {
				info.OSRelease = strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), `"`)
				break
			}
		}
	}

	return info, nil
}
