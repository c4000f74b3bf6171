package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/treksavvysky/a2a-protocol/internal/models"
)

func newSendCommand(v *viper.Viper) *cobra.Command {
	var (
		msgType string
		payload string
	)

	cmd := &cobra.Command{
		Use:   "send <recipient>",
		Short: "Deposit a message for another agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFor(v, true)
			if err != nil {
				return err
			}

			var body map[string]any
			if err := json.Unmarshal([]byte(payload), &body); err != nil {
				return fmt.Errorf("payload must be a JSON object: %w", err)
			}

			msg, err := client.Send(cmd.Context(), args[0], msgType, body)
			if err != nil {
				return err
			}

			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), msg)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", msg.ID, msg.Recipient)
			return nil
		},
	}

	cmd.Flags().StringVarP(&msgType, "type", "t", "command", "message type")
	cmd.Flags().StringVarP(&payload, "payload", "p", "{}", "message payload as a JSON object")
	return cmd
}

func newFetchCommand(v *viper.Viper) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Collect pending messages for the agent",
		Long: `Collect every pending message addressed to the agent.

Collected messages are handed out once; a second fetch will not return them.
With --watch the mailbox is polled until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFor(v, true)
			if err != nil {
				return err
			}
			if interval <= 0 {
				return fmt.Errorf("interval must be positive, got %s", interval)
			}
			asJSON := v.GetBool("json")
			ctx := cmd.Context()

			if !watch {
				messages, err := client.Fetch(ctx)
				if err != nil {
					return err
				}
				return printMessages(cmd.OutOrStdout(), messages, asJSON, true)
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				messages, err := client.Fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				if err := printMessages(cmd.OutOrStdout(), messages, asJSON, false); err != nil {
					return err
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling for new messages")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval for --watch")
	return cmd
}

func printMessages(w io.Writer, messages []models.Message, asJSON, reportEmpty bool) error {
	if asJSON {
		if len(messages) == 0 && !reportEmpty {
			return nil
		}
		return printJSON(w, messages)
	}

	if len(messages) == 0 {
		if reportEmpty {
			fmt.Fprintln(w, "No pending messages")
		}
		return nil
	}

	for _, msg := range messages {
		fmt.Fprintf(w, "[%s] %s (%s): %s\n",
			msg.Timestamp.Local().Format("2006-01-02 15:04:05"),
			msg.Sender, msg.Type, string(msg.Payload))
	}
	return nil
}
