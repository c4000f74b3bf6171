package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newHealthCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check relay health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFor(v, false)
			if err != nil {
				return err
			}

			resp, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}

			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (version %s)\n", resp.Status, resp.Version)
			names := make([]string, 0, len(resp.Checks))
			for name := range resp.Checks {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				check := resp.Checks[name]
				fmt.Fprintf(out, "  %-10s %s %s\n", name, check["status"], check["latency"])
			}
			return nil
		},
	}
}

func newStatsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show mailbox counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFor(v, false)
			if err != nil {
				return err
			}

			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}

			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend:    %s\n", stats.Backend)
			fmt.Fprintf(out, "Pending:    %d\n", stats.Pending)
			fmt.Fprintf(out, "Delivered:  %d\n", stats.Delivered)
			fmt.Fprintf(out, "Recipients: %d\n", stats.Recipients)
			return nil
		},
	}
}
