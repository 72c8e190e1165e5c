package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var (
		credentialPath   string
		credentialEnvVar string
		numberOfJobs     int
	)

	cmd := &cobra.Command{
		Use:   "submit <executable>",
		Short: "Submit a job to the compute element",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			disp, err := newDispatcher()
			if err != nil {
				return err
			}

			handles, err := disp.SubmitJob(args[0], credentialPath, credentialEnvVar, numberOfJobs)
			if err != nil {
				return err
			}

			for _, h := range handles {
				fmt.Fprintln(os.Stdout, h)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&credentialPath, "credential", "", "path to a credential PEM to wrap with the payload")
	cmd.Flags().StringVar(&credentialEnvVar, "credential-env", "X509_USER_PROXY", "environment variable the payload expects the credential path in")
	cmd.Flags().IntVar(&numberOfJobs, "count", 1, "number of job copies to submit")

	return cmd
}
