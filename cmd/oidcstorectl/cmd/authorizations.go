package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var authorizationsCmd = &cobra.Command{
	Use:     "authorizations",
	Short:   "Inspect authorizations",
	Aliases: []string{"authorization", "auths"},
}

var authorizationsFindCmd = &cobra.Command{
	Use:   "find",
	Short: "Find the authorizations a subject gave a client",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		clientID, _ := cmd.Flags().GetString("client")
		scopes, _ := cmd.Flags().GetStringSlice("scope")

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		auths, err := c.FindAuthorizations(ctx, subject, clientID, scopes)
		if err != nil {
			return fmt.Errorf("failed to find authorizations: %w", err)
		}
		if len(auths) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No matching authorizations.")
			return nil
		}
		return render(cmd.OutOrStdout(), auths)
	},
}

func init() {
	authorizationsFindCmd.Flags().String("subject", "", "subject the authorization was given by")
	authorizationsFindCmd.Flags().String("client", "", "client id the authorization was given to")
	authorizationsFindCmd.Flags().StringSlice("scope", nil, "scopes the authorization must grant")
	_ = authorizationsFindCmd.MarkFlagRequired("subject")
	_ = authorizationsFindCmd.MarkFlagRequired("client")

	authorizationsCmd.AddCommand(authorizationsFindCmd)
}
