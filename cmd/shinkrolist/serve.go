package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API",
	Long: `Serve exposes the catalog, your statuses and your list over HTTP:

  GET    /api/anime               browse (status, type, rating, sort, genre, q, page)
  GET    /api/anime/{id}          anime details
  GET    /api/genres              genre vocabulary
  GET    /api/anime/{id}/status   your status
  PUT    /api/anime/{id}/status   set your status {"status": "watching"}
  GET    /api/list                your list (status, page) with counts
  PATCH  /api/list/{id}           edit {"status", "score", "episodes_watched"}
  DELETE /api/list/{id}           remove from your list
  GET    /metrics, /healthz

Personal routes need "Authorization: Bearer <token>".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			viper.Set("server.addr", addr)
		}

		application, _, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.Serve(cmd.Context()); err != nil {
			return fmt.Errorf("serve failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	rootCmd.AddCommand(serveCmd)
}
