package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"banana3d/internal/workflow"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var titleCaser = cases.Title(language.English)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// stageLabel turns "views_generating" into "Views Generating".
func stageLabel(stage workflow.Stage) string {
	return titleCaser.String(strings.ReplaceAll(stage.String(), "_", " "))
}

// progressPrinter renders snapshots as status lines, one per stage change
// and one per new error.
type progressPrinter struct {
	out       io.Writer
	colorize  bool
	lastStage workflow.Stage
	lastErr   *workflow.Error
	started   bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, colorize: shouldColorize(out)}
}

func (p *progressPrinter) observe(snap workflow.Snapshot) {
	if snap.Error != nil && snap.Error != p.lastErr {
		p.lastErr = snap.Error
		fmt.Fprintln(p.out, renderStatusLine(stageLabel(snap.Stage), statusError, snap.Error.Error(), p.colorize))
	}
	if p.started && snap.Stage == p.lastStage {
		return
	}
	p.started = true
	p.lastStage = snap.Stage
	if snap.Stage == workflow.StageIdle || snap.Error != nil {
		return
	}
	fmt.Fprintln(p.out, renderStatusLine(stageLabel(snap.Stage), stageKind(snap.Stage), stageMessage(snap), p.colorize))
}

func stageKind(stage workflow.Stage) statusKind {
	switch stage {
	case workflow.StageViewsReady, workflow.StageModelReady:
		return statusOK
	default:
		return statusInfo
	}
}

func stageMessage(snap workflow.Snapshot) string {
	switch snap.Stage {
	case workflow.StageSourceSelected:
		if snap.Source != nil {
			return fmt.Sprintf("%s (%s, %s)", snap.Source.Name, snap.Source.MediaType, formatBytes(int64(snap.Source.Size)))
		}
	case workflow.StageViewsGenerating:
		return "waiting for the service to render views"
	case workflow.StageViewsReady:
		return fmt.Sprintf("%d of 3 views", len(snap.Views))
	case workflow.StageModelGenerating:
		return "building the 3D model"
	case workflow.StageModelReady:
		if snap.Model != nil {
			return fmt.Sprintf("%s (%s)", snap.Model.Name, formatBytes(int64(snap.Model.Size)))
		}
	}
	return ""
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
