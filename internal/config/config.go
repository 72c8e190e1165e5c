// Package config loads and persists gridctl's on-disk configuration: the
// controller's bearer token, the SSH Compute Element's area layout, and the
// Watchdog's tunables.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/gridforge/jobcore/internal/watchdog"
)

const (
	ConfigDir  = ".gridctl"
	ConfigFile = "config.json"
)

// CEConfig holds the SSH Compute Element's area layout and submission
// knobs.
type CEConfig struct {
	Queue          string `json:"queue,omitempty"`
	ExecQueue      string `json:"exec_queue,omitempty"`
	SharedArea     string `json:"shared_area"`
	BatchOutput    string `json:"batch_output"`
	BatchError     string `json:"batch_error"`
	InfoArea       string `json:"info_area"`
	ExecutableArea string `json:"executable_area"`
	WorkArea       string `json:"work_area"`
	SSHHost        string `json:"ssh_host"`
	SSHUser        string `json:"ssh_user"`
	SubmitOptions  string `json:"submit_options,omitempty"`
	RemoveOutput   bool   `json:"remove_output"`
}

// WatchdogConfig mirrors watchdog.Config for JSON persistence; durations
// are stored in seconds for readability in the config file.
type WatchdogConfig struct {
	PollingTimeSec      float64 `json:"polling_time_sec"`
	CheckingTimeSec     float64 `json:"checking_time_sec"`
	MinCheckingTimeSec  float64 `json:"min_checking_time_sec"`
	MaxWallClockTimeSec float64 `json:"max_wall_clock_time_sec"`
	MinDiskSpaceMB      uint64  `json:"min_disk_space_mb"`
	LoadAvgLimit        float64 `json:"load_avg_limit"`
	SampleCPUTimeSec    float64 `json:"sample_cpu_time_sec"`
	JobCPUMarginPct     float64 `json:"job_cpu_margin_pct"`
	MinCPUWallRatio     float64 `json:"min_cpu_wall_ratio"`
	NullCPULimit        int     `json:"null_cpu_limit"`
	PeekRetry           int     `json:"peek_retry"`
}

// ToWatchdogConfig converts the persisted, second-denominated tunables into
// a watchdog.Config (flags stay at their package defaults; this struct
// only persists the numeric knobs that are commonly re-tuned per site).
func (w WatchdogConfig) ToWatchdogConfig() watchdog.Config {
	cfg := watchdog.DefaultConfig()
	cfg.PollingTime = time.Duration(w.PollingTimeSec * float64(time.Second))
	cfg.CheckingTime = time.Duration(w.CheckingTimeSec * float64(time.Second))
	cfg.MinCheckingTime = time.Duration(w.MinCheckingTimeSec * float64(time.Second))
	cfg.MaxWallClockTime = time.Duration(w.MaxWallClockTimeSec * float64(time.Second))
	cfg.MinDiskSpaceMB = w.MinDiskSpaceMB
	cfg.LoadAvgLimit = w.LoadAvgLimit
	cfg.SampleCPUTime = time.Duration(w.SampleCPUTimeSec * float64(time.Second))
	cfg.JobCPUMarginPct = w.JobCPUMarginPct
	cfg.MinCPUWallRatio = w.MinCPUWallRatio
	cfg.NullCPULimit = w.NullCPULimit
	cfg.PeekRetry = w.PeekRetry
	return cfg
}

func watchdogConfigFromDefaults(cfg watchdog.Config) WatchdogConfig {
	return WatchdogConfig{
		PollingTimeSec:      cfg.PollingTime.Seconds(),
		CheckingTimeSec:     cfg.CheckingTime.Seconds(),
		MinCheckingTimeSec:  cfg.MinCheckingTime.Seconds(),
		MaxWallClockTimeSec: cfg.MaxWallClockTime.Seconds(),
		MinDiskSpaceMB:      cfg.MinDiskSpaceMB,
		LoadAvgLimit:        cfg.LoadAvgLimit,
		SampleCPUTimeSec:    cfg.SampleCPUTime.Seconds(),
		JobCPUMarginPct:     cfg.JobCPUMarginPct,
		MinCPUWallRatio:     cfg.MinCPUWallRatio,
		NullCPULimit:        cfg.NullCPULimit,
		PeekRetry:           cfg.PeekRetry,
	}
}

// Config is the top-level on-disk configuration.
type Config struct {
	AuthToken string         `json:"auth_token"`
	CE        CEConfig       `json:"ce"`
	Watchdog  WatchdogConfig `json:"watchdog"`
}

// DefaultConfig returns a new config with a fresh bearer token and the
// package's documented Watchdog defaults.
func DefaultConfig() *Config {
	return &Config{
		AuthToken: uuid.New().String(),
		CE: CEConfig{
			SharedArea:     "shared",
			BatchOutput:    "output",
			BatchError:     "error",
			InfoArea:       "info",
			ExecutableArea: "executable",
			WorkArea:       "work",
			RemoveOutput:   true,
		},
		Watchdog: watchdogConfigFromDefaults(watchdog.DefaultConfig()),
	}
}

// ConfigPath returns the path to the config file under the user's home
// directory.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load loads the configuration from disk, creating a default one if it
// doesn't exist.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.Save(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save persists the configuration to disk with permissions restricted to
// the owner, since it carries a bearer token.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
