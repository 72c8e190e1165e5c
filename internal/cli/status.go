package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <handle>...",
		Short: "Report the status of one or more jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			disp, err := newDispatcher()
			if err != nil {
				return err
			}

			statuses := disp.GetJobStatus(args)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "HANDLE\tSTATUS")
			for _, h := range args {
				fmt.Fprintf(w, "%s\t%s\n", h, statuses[h])
			}
			return w.Flush()
		},
	}
}

func newCEStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ce-status",
		Short: "Report aggregate compute element status",
		RunE: func(cmd *cobra.Command, args []string) error {
			disp, err := newDispatcher()
			if err != nil {
				return err
			}

			s := disp.Status()
			fmt.Printf("SubmittedJobs: %d\n", s.SubmittedJobs)
			fmt.Printf("RunningJobs:   %d\n", s.RunningJobs)
			fmt.Printf("WaitingJobs:   %d\n", s.WaitingJobs)
			return nil
		},
	}
}
