package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Create a session token",
	Long: `Create a session token for a user, signed with auth.secret.

Use it as auth.token for the CLI, or as a bearer token for the API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		name, _ := cmd.Flags().GetString("name")

		application, _, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		token, err := application.IssueToken(user, name)
		if err != nil {
			return fmt.Errorf("failed to create token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("user", "", "user id (required)")
	tokenCmd.Flags().String("name", "", "display name")
	tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}
