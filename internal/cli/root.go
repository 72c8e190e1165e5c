// Package cli wires gridctl's cobra commands to the SSH Compute Element,
// the Job Watchdog and the reference controller daemon.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridforge/jobcore/internal/config"
	"github.com/gridforge/jobcore/internal/sshce"
	"github.com/gridforge/jobcore/internal/sshexec"
)

var (
	cfg       *config.Config
	version   = "dev"
	buildTime = "unknown"
)

// SetVersion sets the version and build time reported by `gridctl version`.
func SetVersion(v, bt string) {
	version = v
	buildTime = bt
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gridctl",
		Short: "gridctl - grid job submission and supervision",
		Long: `gridctl submits, tracks and kills jobs across a pool of
SSH-reachable compute hosts, and supervises a running payload with the
Job Watchdog.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newSubmitCmd(),
		newKillCmd(),
		newStatusCmd(),
		newCEStatusCmd(),
		newWatchCmd(),
		newServeCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gridctl version %s (built %s)\n", version, buildTime)
		},
	}
}

// newDispatcher builds a sshce.Dispatcher over a real SSH executor from
// the loaded config.
func newDispatcher() (*sshce.Dispatcher, error) {
	sshCfg, err := sshexec.AgentClientConfig(cfg.CE.SSHUser)
	if err != nil {
		return nil, fmt.Errorf("build ssh client config: %w", err)
	}
	exec := sshexec.NewRealExecutor(sshCfg, 22)
	return sshce.NewDispatcher(exec, sshce.Config{
		Queue:          cfg.CE.Queue,
		ExecQueue:      cfg.CE.ExecQueue,
		SharedArea:     cfg.CE.SharedArea,
		BatchOutput:    cfg.CE.BatchOutput,
		BatchError:     cfg.CE.BatchError,
		InfoArea:       cfg.CE.InfoArea,
		ExecutableArea: cfg.CE.ExecutableArea,
		WorkArea:       cfg.CE.WorkArea,
		SSHHost:        cfg.CE.SSHHost,
		SubmitOptions:  cfg.CE.SubmitOptions,
		RemoveOutput:   removeOutputString(cfg.CE.RemoveOutput),
	})
}

func removeOutputString(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
