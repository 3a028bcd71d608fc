package cli

import (
	"fmt"

	"github.com/MrEthical07/levelAuth/guard"
	"github.com/spf13/cobra"
)

func newGuardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Inspect route guard decisions",
	}
	cmd.AddCommand(newGuardCheckCommand())
	return cmd
}

func newGuardCheckCommand() *cobra.Command {
	var (
		configPath string
		level      int
	)
	cmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Decide where a visitor would be sent for a path",
		Long: `Run the route guard for one path and print the decision.

A level of 0 checks an anonymous visitor.

Examples:
  levelauth guard check /campus/admin --level 1
  levelauth guard check /dashboard --config guard.toml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if level < 0 {
				return fmt.Errorf("level must be >= 0, got %d", level)
			}
			cfg, err := loadGuardConfig(configPath)
			if err != nil {
				return err
			}

			var sess guard.Session = guard.Anonymous{}
			if level > 0 {
				sess = guard.Authenticated{User: guard.User{ID: "cli", AccessLevel: level}}
			}

			path := guard.NormalizePath(args[0])
			d := guard.NewPolicy(cfg).Decide(sess, path)
			out := cmd.OutOrStdout()
			if d.Allowed() {
				fmt.Fprintf(out, "allow %s (%s)\n", path, d.Reason)
				return nil
			}
			fmt.Fprintf(out, "redirect %s -> %s (%s)\n", path, d.Redirect, d.Reason)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the guard TOML config")
	cmd.Flags().IntVarP(&level, "level", "l", 0, "access level of the visitor, 0 for anonymous")
	return cmd
}
