package cli

import (
	"github.com/spf13/cobra"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the scheduled dispatch drain loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunScheduler(cmd.Context())
	},
}
