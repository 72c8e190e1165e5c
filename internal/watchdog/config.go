package watchdog

import "time"

// CheckFlags independently enables/disables each checkProgress predicate.
type CheckFlags struct {
	WallClock   bool
	DiskSpace   bool
	LoadAverage bool
	CPUConsumed bool
	CPULimit    bool
}

// Config holds the Watchdog's tunables, with their documented defaults.
type Config struct {
	PollingTime      time.Duration // 10s
	CheckingTime     time.Duration // 1800s, clamped >= MinCheckingTime
	MinCheckingTime  time.Duration // 1200s
	MaxWallClockTime time.Duration // 345600s

	MinDiskSpaceMB uint64  // 10
	LoadAvgLimit   float64 // 1000

	SampleCPUTime    time.Duration // 1800s
	JobCPUMarginPct  float64       // 20
	MinCPUWallRatio  float64       // 5 (percent)
	NullCPULimit     int           // 5
	PeekRetry        int           // 5

	Flags CheckFlags
}

// DefaultConfig returns the tunables at their documented defaults.
func DefaultConfig() Config {
	return Config{
		PollingTime:      10 * time.Second,
		CheckingTime:     1800 * time.Second,
		MinCheckingTime:  1200 * time.Second,
		MaxWallClockTime: 345600 * time.Second,
		MinDiskSpaceMB:   10,
		LoadAvgLimit:     1000,
		SampleCPUTime:    1800 * time.Second,
		JobCPUMarginPct:  20,
		MinCPUWallRatio:  5,
		NullCPULimit:     5,
		PeekRetry:        5,
		Flags: CheckFlags{
			WallClock:   true,
			DiskSpace:   true,
			LoadAverage: true,
			CPUConsumed: true,
			CPULimit:    true,
		},
	}
}

// clamp enforces CheckingTime >= MinCheckingTime, per Initialize's contract.
func (c *Config) clamp() {
	if c.CheckingTime < c.MinCheckingTime {
		c.CheckingTime = c.MinCheckingTime
	}
}
