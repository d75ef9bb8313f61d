package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the status database",
	Long: `Migrate creates the user_anime_list table and applies pending schema
migrations for the configured database.driver. Other commands migrate on
start as well; this command only does that.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.Migrate(); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		log := application.Logger()
		log.Info().Str("driver", string(application.Config().DatabaseDriver)).Msg("Migration completed successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
