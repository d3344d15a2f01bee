package cli

import (
	"github.com/spf13/cobra"

	"agri-price-notify/internal/app"
)

var (
	trendsNames      []string
	trendsRecipients []string
	trendsProvider   string
)

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Preview or send the current price trend notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Trends(cmd.Context(), app.TrendsOptions{
			Names:      trendsNames,
			Recipients: trendsRecipients,
			Provider:   trendsProvider,
		})
	},
}

func init() {
	trendsCmd.Flags().StringSliceVar(&trendsNames, "name", nil, "Recipient name for the greeting (repeatable)")
	trendsCmd.Flags().StringSliceVar(&trendsRecipients, "to", nil, "Recipient phone number; omit to preview only (repeatable)")
	trendsCmd.Flags().StringVar(&trendsProvider, "provider", "", "Provider to route through (defaults to config)")
}
