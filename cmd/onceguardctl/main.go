// Command onceguardctl runs a onceguard coordinator daemon and drives it
// remotely.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// clientFlags holds the flags shared by every command that talks to a
// running coordinator over HTTP.
type clientFlags struct {
	ServerURL  string
	Credential string
	Insecure   bool
}

func buildRoot() *cobra.Command {
	cf := &clientFlags{}

	root := &cobra.Command{
		Use:   "onceguardctl",
		Short: "Exactly-once side-effect coordinator",
		Long: `onceguardctl runs and drives a dedup coordinator that protects
side effects (charges, emails, webhooks) from running twice for the
same id, even under concurrent or retried callers.

Examples:
  onceguardctl serve --config coordinator.toml
  onceguardctl try-start --id order-42
  onceguardctl status --id order-42`,
	}

	root.PersistentFlags().StringVar(&cf.ServerURL, "server-url", "http://localhost:8080", "coordinator base URL")
	root.PersistentFlags().StringVar(&cf.Credential, "credential", "", "bearer token or API key")
	root.PersistentFlags().BoolVar(&cf.Insecure, "insecure", false, "skip TLS certificate verification")

	root.AddCommand(
		createServeCommand(),
		createTryStartCommand(cf),
		createCompleteCommand(cf),
		createStatusCommand(cf),
		createSweepCommand(),
	)

	return root
}
