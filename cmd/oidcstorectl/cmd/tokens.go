package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Short:   "Inspect tokens",
	Aliases: []string{"token"},
}

var tokensGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a token's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		token, err := c.GetToken(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get token %q: %w", args[0], err)
		}
		return render(cmd.OutOrStdout(), token)
	},
}

func init() {
	tokensCmd.AddCommand(tokensGetCmd)
}
