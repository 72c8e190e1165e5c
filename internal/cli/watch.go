package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridforge/jobcore/internal/controllerclient"
	"github.com/gridforge/jobcore/internal/procfs"
	"github.com/gridforge/jobcore/internal/procmon"
	"github.com/gridforge/jobcore/internal/watchdog"
)

func newWatchCmd() *cobra.Command {
	var (
		jobID         int
		jobCPUSeconds int
		controllerURL string
		controlDir    string
		proxyLocation string
		maxTailLines  int
	)

	cmd := &cobra.Command{
		Use:   "watch <executable> [args...]",
		Short: "Run a payload under the Job Watchdog",
		Long: `Launch the given executable and supervise it with the Job
Watchdog: periodic resource sampling, health checks, heartbeats to a
controller daemon, and kill-on-violation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			monitor, err := procmon.Start(args[0], args[1:], maxTailLines)
			if err != nil {
				return fmt.Errorf("start payload: %w", err)
			}

			controller := controllerclient.New(controllerURL, cfg.AuthToken)
			wd := watchdog.New(
				cfg.Watchdog.ToWatchdogConfig(),
				procfs.NewLinux(),
				monitor,
				controller,
				jobID,
				time.Duration(jobCPUSeconds)*time.Second,
				controlDir,
			)

			if proxyLocation != "" {
				wd.SetPilotProxyLocation(proxyLocation)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return watchdog.Run(ctx, wd)
		},
	}

	cmd.Flags().IntVar(&jobID, "job-id", 0, "job identifier reported to the controller")
	cmd.Flags().IntVar(&jobCPUSeconds, "job-cpu-seconds", 0, "per-job CPU time budget in seconds")
	cmd.Flags().StringVar(&controllerURL, "controller-url", "http://127.0.0.1:8080", "controller daemon base URL")
	cmd.Flags().StringVar(&controlDir, "control-dir", ".", "directory for the stop marker and scratch state")
	cmd.Flags().StringVar(&proxyLocation, "proxy", "", "path to the delegated credential, if any")
	cmd.Flags().IntVar(&maxTailLines, "tail-lines", 200, "number of stdout lines retained for peek")

	return cmd
}
