// Package cli holds the levelauth command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "levelauth",
		Short: "Browser-facing authentication with access-level routing",
		Long: `levelauth issues and validates signed session cookies for browser
front ends and routes signed-in users to the dashboard of their access level.

Commands:
  serve          Run the HTTP auth server
  hash-password  Produce an argon2id hash for seeding accounts
  authmap        Print the authorization rules derived from a guard config
  guard check    Decide where a visitor would be sent for a path
  loadtest       Measure login and session validation throughput`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.AddCommand(
		newServeCommand(),
		newHashPasswordCommand(),
		newAuthMapCommand(),
		newGuardCommand(),
		newLoadTestCommand(),
	)
	return root
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
