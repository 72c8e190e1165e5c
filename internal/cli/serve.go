package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridforge/jobcore/internal/controllerd"
)

func newServeCmd() *cobra.Command {
	var (
		port   int
		domain string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the reference controller daemon",
		Long: `Start the reference controller daemon.

The daemon provides:
  - POST /api/heartbeat, /api/jobparameters, /api/renewproxy for Watchdogs
  - GET  /api/feed, a WebSocket live view of job accounting state

Note: port 80/443 require sudo or capabilities.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := controllerd.NewServer(controllerd.ServerConfig{
				Port:      port,
				Domain:    domain,
				AuthToken: cfg.AuthToken,
			})

			fmt.Printf("Starting controller daemon on port %d...\n", port)
			if domain != "" {
				fmt.Printf("TLS enabled for domain: %s\n", domain)
			}
			fmt.Printf("Auth token: %s\n", cfg.AuthToken)

			return srv.ListenAndServe()
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "port to listen on")
	cmd.Flags().StringVar(&domain, "domain", "", "domain for automatic TLS (Let's Encrypt)")

	return cmd
}
