package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var applicationsCmd = &cobra.Command{
	Use:     "applications",
	Short:   "Inspect registered applications",
	Aliases: []string{"application", "apps"},
}

var applicationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active applications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		count, _ := cmd.Flags().GetInt("count")
		offset, _ := cmd.Flags().GetInt("offset")

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		apps, err := c.ListApplications(ctx, count, offset)
		if err != nil {
			return fmt.Errorf("failed to list applications: %w", err)
		}
		if len(apps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No applications found.")
			return nil
		}
		return render(cmd.OutOrStdout(), apps)
	},
}

var applicationsGetCmd = &cobra.Command{
	Use:   "get <client-id>",
	Short: "Show the application registered under a client id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		app, err := c.GetApplication(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get application %q: %w", args[0], err)
		}
		return render(cmd.OutOrStdout(), app)
	},
}

func init() {
	applicationsListCmd.Flags().Int("count", 0, "maximum number of applications, 0 for all")
	applicationsListCmd.Flags().Int("offset", 0, "number of applications to skip")

	applicationsCmd.AddCommand(applicationsListCmd, applicationsGetCmd)
}
