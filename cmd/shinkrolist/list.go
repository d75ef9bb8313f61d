package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/varoOP/shinkrolist/internal/domain"
	"github.com/varoOP/shinkrolist/internal/watchlist"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show your watch list",
	Long: `Show one page of your watch list, newest first.

--status filters to one status (` + statusChoices() + `) or "all".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var q watchlist.Query
		if v, _ := cmd.Flags().GetString("status"); v != "" && v != "all" {
			s, err := domain.ParseWatchStatus(v)
			if err != nil {
				return fmt.Errorf("invalid --status %q (must be all or one of: %s)", v, statusChoices())
			}
			q.Status = &s
		}
		q.Page, _ = cmd.Flags().GetInt("page")

		application, ctx, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		counts, err := application.List().Counts(ctx)
		if err != nil {
			return fmt.Errorf("failed to count list: %w", err)
		}
		page, err := application.List().List(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to get list: %w", err)
		}

		out := cmd.OutOrStdout()
		printCounts(out, counts)
		fmt.Fprintln(out)

		if len(page.Records) == 0 {
			fmt.Fprintln(out, "Nothing here yet")
			return nil
		}

		printRecords(out, page.Records)
		fmt.Fprintf(out, "\nPage %d of %d (%d total)\n", page.Page, page.TotalPages, page.Total)
		if len(page.Pager) > 0 {
			fmt.Fprintln(out, renderPager(page.Pager, page.Page))
		}
		return nil
	},
}

var listEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit the status, score or progress of a list entry",
	Long: `Edit an entry of your list. Only the given flags change.
Scores above 10 and episode counts above the total are clamped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		var edit domain.Edit
		flags := cmd.Flags()
		if flags.Changed("status") {
			v, _ := flags.GetString("status")
			s, err := domain.ParseWatchStatus(v)
			if err != nil {
				return fmt.Errorf("invalid --status %q (must be one of: %s)", v, statusChoices())
			}
			edit.Status = &s
		}
		if flags.Changed("score") {
			v, _ := flags.GetInt("score")
			edit.Score = &v
		}
		if flags.Changed("episodes") {
			v, _ := flags.GetInt("episodes")
			edit.EpisodesWatched = &v
		}
		if edit.Empty() {
			return fmt.Errorf("nothing to change: pass --status, --score or --episodes")
		}

		application, ctx, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		out, err := application.Status().Update(ctx, id, edit)
		if err != nil {
			return fmt.Errorf("failed to edit anime %d: %w", id, err)
		}
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	},
}

var listRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove an anime from your list",
	Args:    cobra.ExactArgs(1),
	RunE:    runRemove,
}

func init() {
	listCmd.Flags().String("status", "all", "status filter")
	listCmd.Flags().Int("page", 1, "page number")

	listEditCmd.Flags().String("status", "", "new status")
	listEditCmd.Flags().Int("score", 0, "score from 0 to 10")
	listEditCmd.Flags().Int("episodes", 0, "episodes watched")

	listCmd.AddCommand(listEditCmd, listRemoveCmd)
	rootCmd.AddCommand(listCmd)
}
