// Package cli implements the relay command line client.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/treksavvysky/a2a-protocol/clients/go/relay"
)

// NewRootCommand builds the relay command tree. Each call gets its own viper
// instance so commands can be executed repeatedly in tests.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "relay",
		Short: "Send and fetch agent messages through a relay",
		Long: `relay is a command line client for the agent mailbox relay.

Every flag can also be set through the environment with the RELAY_ prefix,
e.g. RELAY_URL and RELAY_AGENT.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("url", relay.DefaultBaseURL, "relay base URL")
	root.PersistentFlags().String("agent", "", "agent id to send as and fetch for")
	root.PersistentFlags().Bool("json", false, "print raw JSON")
	_ = v.BindPFlag("url", root.PersistentFlags().Lookup("url"))
	_ = v.BindPFlag("agent", root.PersistentFlags().Lookup("agent"))
	_ = v.BindPFlag("json", root.PersistentFlags().Lookup("json"))

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(
		newSendCommand(v),
		newFetchCommand(v),
		newHealthCommand(v),
		newStatsCommand(v),
	)
	return root
}

// Execute runs the relay command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// clientFor builds a client from the resolved flags. requireAgent is set by
// commands that act as a particular agent.
func clientFor(v *viper.Viper, requireAgent bool) (*relay.Client, error) {
	agent := v.GetString("agent")
	if requireAgent && agent == "" {
		return nil, fmt.Errorf("agent id is required (--agent or RELAY_AGENT)")
	}
	return relay.NewClient(v.GetString("url"), agent), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
