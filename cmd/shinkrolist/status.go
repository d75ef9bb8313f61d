package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/varoOP/shinkrolist/internal/domain"
	"github.com/varoOP/shinkrolist/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read or change your status for an anime",
}

var statusGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show your status for an anime",
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

		rec, err := application.Status().Status(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		printRecord(cmd.OutOrStdout(), rec)
		return nil
	},
}

var statusSetCmd = &cobra.Command{
	Use:   "set <id> <status>",
	Short: "Set your status for an anime",
	Long: `Set your status for an anime, adding it to your list if needed.

Status is one of: ` + statusChoices() + `.
Setting Completed fills in the watched episodes when the total is known.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		s, err := domain.ParseWatchStatus(args[1])
		if err != nil {
			return fmt.Errorf("invalid status %q (must be one of: %s)", args[1], statusChoices())
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

		out, err := application.Status().SetStatus(ctx, item.Ref(), s)
		if err != nil {
			return fmt.Errorf("failed to set status: %w", err)
		}
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	},
}

var statusRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove an anime from your list",
	Args:    cobra.ExactArgs(1),
	RunE:    runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	application, ctx, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	if _, err := application.Status().Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove anime %d: %w", id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d from your list\n", id)
	return nil
}

func printOutcome(w io.Writer, out status.Outcome) {
	if out.Superseded {
		fmt.Fprintln(w, "Replaced by a newer change")
		return
	}
	printRecord(w, out.Record)
}

func statusChoices() string {
	all := domain.AllWatchStatuses()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.String()
	}
	return strings.Join(names, ", ")
}

func init() {
	statusCmd.AddCommand(statusGetCmd, statusSetCmd, statusRemoveCmd)
	rootCmd.AddCommand(statusCmd)
}
