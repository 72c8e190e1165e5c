package cli

import "github.com/spf13/cobra"

func newKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <handle>...",
		Short: "Kill one or more jobs by handle",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			disp, err := newDispatcher()
			if err != nil {
				return err
			}
			return disp.KillJob(args)
		},
	}
}
