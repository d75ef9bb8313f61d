package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/varoOP/shinkrolist/internal/domain"
	"github.com/varoOP/shinkrolist/pkg/pagerange"
)

// renderPager prints tokens on one line with the current page in brackets.
func renderPager(tokens []pagerange.Token, current int) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		if !t.Ellipsis && t.Page == current {
			parts[i] = "[" + t.String() + "]"
			continue
		}
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

func printItems(w io.Writer, items []domain.CatalogItem) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tEPISODES\tSCORE")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", it.ID, it.Title, orDash(it.Type), count(it.Episodes), score(it.Score))
	}
	tw.Flush()
}

func printItem(w io.Writer, it *domain.CatalogItem) {
	fmt.Fprintf(w, "%s (#%d)\n", it.Title, it.ID)
	if it.TitleEnglish != "" && it.TitleEnglish != it.Title {
		fmt.Fprintf(w, "  English:  %s\n", it.TitleEnglish)
	}
	fmt.Fprintf(w, "  Type:     %s\n", orDash(it.Type))
	fmt.Fprintf(w, "  Episodes: %s\n", count(it.Episodes))
	fmt.Fprintf(w, "  Status:   %s\n", orDash(it.Status))
	fmt.Fprintf(w, "  Score:    %s\n", score(it.Score))
	if it.Season != "" || it.Year > 0 {
		fmt.Fprintf(w, "  Aired:    %s %s\n", it.Season, count(it.Year))
	}
	if it.Rating != "" {
		fmt.Fprintf(w, "  Rating:   %s\n", it.Rating)
	}
	if len(it.Genres) > 0 {
		names := make([]string, len(it.Genres))
		for i, g := range it.Genres {
			names[i] = g.Name
		}
		fmt.Fprintf(w, "  Genres:   %s\n", strings.Join(names, ", "))
	}
	if len(it.Studios) > 0 {
		fmt.Fprintf(w, "  Studios:  %s\n", strings.Join(it.Studios, ", "))
	}
	if it.Synopsis != "" {
		fmt.Fprintf(w, "\n%s\n", it.Synopsis)
	}
}

func printRecord(w io.Writer, rec *domain.UserStatus) {
	if rec == nil {
		fmt.Fprintln(w, "Not on your list")
		return
	}
	fmt.Fprintf(w, "%s (#%d)\n", rec.Title, rec.ItemID)
	fmt.Fprintf(w, "  Status:   %s\n", rec.Status.Label())
	fmt.Fprintf(w, "  Score:    %s\n", userScore(rec.Score))
	fmt.Fprintf(w, "  Progress: %s\n", progress(rec))
}

func printRecords(w io.Writer, records []domain.UserStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tSCORE\tPROGRESS")
	for i := range records {
		rec := &records[i]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", rec.ItemID, rec.Title, rec.Status.Label(), userScore(rec.Score), progress(rec))
	}
	tw.Flush()
}

func printCounts(w io.Writer, counts domain.StatusCounts) {
	parts := []string{fmt.Sprintf("All (%d)", counts.All)}
	for _, s := range domain.AllWatchStatuses() {
		parts = append(parts, fmt.Sprintf("%s (%d)", s.Label(), counts.Get(s)))
	}
	fmt.Fprintln(w, strings.Join(parts, " | "))
}

func progress(rec *domain.UserStatus) string {
	if rec.EpisodesTotal > 0 {
		return fmt.Sprintf("%d/%d", rec.EpisodesWatched, rec.EpisodesTotal)
	}
	return fmt.Sprintf("%d/?", rec.EpisodesWatched)
}

func userScore(v int) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", v, domain.MaxScore)
}

func score(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

func count(n int) string {
	if n <= 0 {
		return "?"
	}
	return fmt.Sprintf("%d", n)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
