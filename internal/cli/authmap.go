package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/MrEthical07/levelAuth/guard"
	"github.com/spf13/cobra"
)

// loadGuardConfig reads path, or returns the defaults when path is empty.
func loadGuardConfig(path string) (guard.Config, error) {
	if path == "" {
		return guard.DefaultConfig(), nil
	}
	return guard.LoadConfig(path)
}

func newAuthMapCommand() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "authmap",
		Short: "Print the authorization rules derived from a guard config",
		Long: `Print the prefix rules the route guard derives from its dashboard paths,
in the order they are matched.

Examples:
  levelauth authmap
  levelauth authmap --config guard.toml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadGuardConfig(configPath)
			if err != nil {
				return err
			}
			rules := guard.BuildAuthorizationMap(cfg.DashboardPaths)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rules)
			}
			return printRules(cmd.OutOrStdout(), rules)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the guard TOML config")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the rules as JSON")
	return cmd
}

func printRules(w io.Writer, rules []guard.Rule) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tPREFIX")
	for _, r := range rules {
		fmt.Fprintf(tw, "%d\t%s\n", r.RequiredLevel, r.PathPrefix)
	}
	return tw.Flush()
}
