package main

import (
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"banana3d/internal/config"
	"banana3d/internal/history"
	"banana3d/internal/runner"
	"banana3d/internal/services/generator"
)

type runFlags struct {
	viewsOnly     bool
	noExport      bool
	skipPreflight bool
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "generate <image>",
		Short: "Generate three views and a 3D model from a source image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := history.ModeGenerate
			if flags.viewsOnly {
				mode = history.ModeViewsOnly
			}
			return runWorkflow(cmd, ctx, args[0], mode, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.viewsOnly, "views-only", false, "Stop after the views are ready")
	addRunFlags(cmd, &flags)
	return cmd
}

func newAttachCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "attach <image>",
		Short: "Collect views the service already generated, then build the model",
		Long: "Attach polls for views that are already rendering on the service without\n" +
			"uploading the source image again. The image is still required so the run\n" +
			"has a source to record and export against.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, ctx, args[0], history.ModeAttach, flags)
		},
	}
	addRunFlags(cmd, &flags)
	return cmd
}

func addRunFlags(cmd *cobra.Command, flags *runFlags) {
	cmd.Flags().BoolVar(&flags.noExport, "no-export", false, "Do not write views or model to the output directory")
	cmd.Flags().BoolVar(&flags.skipPreflight, "skip-check", false, "Skip the service reachability check")
}

func runWorkflow(cmd *cobra.Command, ctx *commandContext, sourcePath string, mode history.Mode, flags runFlags) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	path, err := config.ExpandPath(sourcePath)
	if err != nil {
		return fmt.Errorf("resolve source path: %w", err)
	}

	var opts []runner.Option
	if cfg.History.Enabled {
		store, err := history.Open(cfg)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		opts = append(opts, runner.WithHistory(store))
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	progress := newProgressPrinter(out)
	for _, line := range renderSectionHeader("banana3d "+filepath.Base(path), progress.colorize) {
		fmt.Fprintln(out, line)
	}

	result, runErr := runner.New(cfg, logger, opts...).Run(runCtx, runner.Request{
		SourcePath:    path,
		Mode:          mode,
		SkipExport:    flags.noExport,
		SkipPreflight: flags.skipPreflight,
		OnSnapshot:    progress.observe,
	})
	renderRunSummary(out, result, progress.colorize)
	return runErr
}

func renderRunSummary(out io.Writer, result runner.Result, colorize bool) {
	if result.RunID == "" {
		return
	}
	snap := result.Snapshot
	fmt.Fprintln(out)
	if len(snap.Views) > 0 {
		rows := make([][]string, 0, len(snap.Views))
		for _, id := range generator.ViewIDs() {
			view, ok := snap.View(id)
			if !ok {
				rows = append(rows, []string{titleCaser.String(string(id)), "-", "-", "missing"})
				continue
			}
			file := exportedPath(result, "view", string(id))
			if file == "" {
				file = "-"
			}
			rows = append(rows, []string{titleCaser.String(string(id)), view.MediaType, formatBytes(int64(view.Size)), file})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"View", "Type", "Size", "File"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
		))
	}
	if snap.Model != nil {
		location := exportedPath(result, "model", "")
		if location == "" {
			location = snap.Model.Ref
		}
		fmt.Fprintln(out, renderStatusLine("Model", statusOK, location, colorize))
	}
	if result.Export.Dir != "" {
		fmt.Fprintln(out, renderStatusLine("Output", statusInfo, result.Export.Dir, colorize))
	}
	elapsed := result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond)
	fmt.Fprintln(out, renderStatusLine("Run", statusInfo, fmt.Sprintf("%s (%s)", result.RunID, elapsed), colorize))
}

// exportedPath finds the exported file of kind whose base name is stem. An
// empty stem matches the first file of that kind.
func exportedPath(result runner.Result, kind, stem string) string {
	for _, f := range result.Export.Files {
		if f.Kind != kind {
			continue
		}
		if stem == "" || strings.TrimSuffix(f.Name, filepath.Ext(f.Name)) == stem {
			return f.Path
		}
	}
	return ""
}
