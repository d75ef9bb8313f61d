package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/varoOP/shinkrolist/internal/filter"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the anime catalog",
	Long: `Browse lists one page of the catalog for the selected filters.

Filters use the catalog labels:
  --status   Ongoing, Finished, Announced
  --type     TV, Movie, OVA, ONA, Special, Music
  --rating   All Ages, Children, Teens 13+, 17+ (Violence/Profanity), Mild Nudity, Hentai
  --sort     Score (default), Favorites
  --genre    genre names, repeatable ("shinkrolist genres" lists them)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := browseState(cmd)
		if err != nil {
			return err
		}

		application, ctx, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		res, err := application.Catalog().Browse(ctx, state)
		if err != nil {
			return fmt.Errorf("browse failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(res.Page.Items) == 0 {
			fmt.Fprintln(out, "No anime found")
			return nil
		}

		printItems(out, res.Page.Items)
		fmt.Fprintf(out, "\nPage %d of %d\n", res.Key.Page, res.Page.LastPage)
		if len(res.Pager) > 0 {
			fmt.Fprintln(out, renderPager(res.Pager, res.Key.Page))
		}
		return nil
	},
}

func browseState(cmd *cobra.Command) (filter.FilterState, error) {
	flags := cmd.Flags()
	state := filter.NewFilterState()

	for _, opt := range []struct {
		flag    string
		options []string
		set     func(string)
	}{
		{"status", filter.StatusOptions(), state.SetStatus},
		{"type", filter.TypeOptions(), state.SetType},
		{"rating", filter.RatingOptions(), state.SetRating},
		{"sort", filter.SortOptions(), state.SetSort},
	} {
		if !flags.Changed(opt.flag) {
			continue
		}
		v, _ := flags.GetString(opt.flag)
		if v != "" && !slices.Contains(opt.options, v) {
			return state, fmt.Errorf("invalid --%s %q (must be one of: %s)", opt.flag, v, strings.Join(opt.options, ", "))
		}
		opt.set(v)
	}

	genres, _ := flags.GetStringSlice("genre")
	state.SetGenres(genres)

	query, _ := flags.GetString("query")
	state.SetSearch(query)

	page, _ := flags.GetInt("page")
	state.SetPage(page)

	return state, nil
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one anime and your status for it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		application, ctx, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		item, err := application.Catalog().Detail(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get anime %d: %w", id, err)
		}

		out := cmd.OutOrStdout()
		printItem(out, item)

		rec, err := application.Status().Status(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		if rec != nil {
			fmt.Fprintln(out)
			printRecord(out, rec)
		}
		return nil
	},
}

var genresCmd = &cobra.Command{
	Use:   "genres",
	Short: "List the catalog genres",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, ctx, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		genres, err := application.Catalog().Genres(ctx)
		if err != nil {
			return fmt.Errorf("failed to get genres: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, g := range genres {
			fmt.Fprintf(out, "%-24s %d\n", g.Name, g.Count)
		}
		return nil
	},
}

func init() {
	browseCmd.Flags().String("status", "", "airing status label")
	browseCmd.Flags().String("type", "", "type label")
	browseCmd.Flags().String("rating", "", "rating label")
	browseCmd.Flags().String("sort", "Score", "sort label")
	browseCmd.Flags().StringSlice("genre", nil, "genre name (repeatable)")
	browseCmd.Flags().StringP("query", "q", "", "search text")
	browseCmd.Flags().Int("page", 1, "page number")

	rootCmd.AddCommand(browseCmd, showCmd, genresCmd)
}
