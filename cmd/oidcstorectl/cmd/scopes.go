package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scopesCmd = &cobra.Command{
	Use:     "scopes",
	Short:   "Inspect scopes",
	Aliases: []string{"scope"},
}

var scopesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scopes",
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

		scopes, err := c.ListScopes(ctx, count, offset)
		if err != nil {
			return fmt.Errorf("failed to list scopes: %w", err)
		}
		return render(cmd.OutOrStdout(), scopes)
	},
}

var scopesGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show a scope by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		scope, err := c.GetScope(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get scope %q: %w", args[0], err)
		}
		return render(cmd.OutOrStdout(), scope)
	},
}

func init() {
	scopesListCmd.Flags().Int("count", 0, "maximum number of scopes, 0 for all")
	scopesListCmd.Flags().Int("offset", 0, "number of scopes to skip")

	scopesCmd.AddCommand(scopesListCmd, scopesGetCmd)
}
