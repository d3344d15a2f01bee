package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"agri-price-notify/internal/app"
)

var (
	sendMessage    string
	sendRecipients []string
	sendProvider   string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Dispatch a single message to one or more recipients",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendMessage == "" {
			return fmt.Errorf("--message must be provided")
		}
		if len(sendRecipients) == 0 {
			return fmt.Errorf("--to must be provided at least once")
		}

		return getApp().Send(cmd.Context(), app.SendOptions{
			Message:    sendMessage,
			Recipients: sendRecipients,
			Provider:   sendProvider,
		})
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendMessage, "message", "", "Message body to send")
	sendCmd.Flags().StringSliceVar(&sendRecipients, "to", nil, "Recipient phone number (repeatable)")
	sendCmd.Flags().StringVar(&sendProvider, "provider", "", "Provider to route through (defaults to config)")
}
