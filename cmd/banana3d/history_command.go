package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"banana3d/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listHistory(cmd, ctx, limit)
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))
	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listHistory(cmd, ctx, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			entry, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if entry == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			out := cmd.OutOrStdout()
			rows := [][]string{
				{"Run", entry.RunID},
				{"Source", entry.SourceName},
				{"Mode", string(entry.Mode)},
				{"Stage", entry.Stage},
				{"Views", strconv.Itoa(entry.ViewCount)},
				{"Status checks", strconv.Itoa(entry.Checks)},
				{"Started", entry.StartedAt.Local().Format(time.RFC3339)},
				{"Duration", entry.Duration().Round(time.Millisecond).String()},
			}
			if entry.ModelURL != "" {
				rows = append(rows, []string{"Model", entry.ModelURL})
			}
			if entry.OutputDir != "" {
				rows = append(rows, []string{"Output", entry.OutputDir})
			}
			if !entry.Succeeded() {
				rows = append(rows, []string{"Error", fmt.Sprintf("%s: %s", entry.ErrorKind, entry.ErrorMessage)})
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s)\n", removed)
			return nil
		},
	}
}

func listHistory(cmd *cobra.Command, ctx *commandContext, limit int) error {
	store, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := "ok"
		if !e.Succeeded() {
			status = e.ErrorKind
		}
		rows = append(rows, []string{
			shortRunID(e.RunID),
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.SourceName,
			string(e.Mode),
			e.Stage,
			strconv.Itoa(e.ViewCount),
			e.Duration().Round(time.Second).String(),
			status,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Started", "Source", "Mode", "Stage", "Views", "Took", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	return nil
}

func openHistory(ctx *commandContext) (*history.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, fmt.Errorf("run history is disabled (set history.enabled = true)")
	}
	store, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
