package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"banana3d/internal/config"
	"banana3d/internal/export"
	"banana3d/internal/history"
	"banana3d/internal/logging"
	"banana3d/internal/notifications"
	"banana3d/internal/preflight"
	"banana3d/internal/resources"
	"banana3d/internal/runlock"
	"banana3d/internal/scheduler"
	"banana3d/internal/services"
	"banana3d/internal/services/generator"
	"banana3d/internal/workflow"
)

// Service is the generation backend a run talks to.
type Service interface {
	workflow.Service
	preflight.Pinger
}

// Request describes one run.
type Request struct {
	SourcePath string
	Mode       history.Mode
	// SkipExport leaves generated assets in memory only.
	SkipExport bool
	// SkipPreflight does not ping the service before submitting.
	SkipPreflight bool
	// OnSnapshot runs on the scheduler after every transition.
	OnSnapshot func(workflow.Snapshot)
}

// Result is what a run produced. Snapshot is the last state before the
// machine was closed.
type Result struct {
	RunID      string
	Snapshot   workflow.Snapshot
	Export     export.Result
	StartedAt  time.Time
	FinishedAt time.Time
}

// Runner drives a workflow.Machine from the command line: it loads the
// source, dispatches intents in order, and records the outcome.
type Runner struct {
	cfg      *config.Config
	base     *slog.Logger
	logger   *slog.Logger
	svc      Service
	notifier notifications.Service
	journal  *history.Store
	newRunID func() string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithService replaces the HTTP generator client.
func WithService(svc Service) Option {
	return func(r *Runner) { r.svc = svc }
}

// WithNotifier replaces the notifier built from config.
func WithNotifier(n notifications.Service) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithHistory records finished runs in store.
func WithHistory(store *history.Store) Option {
	return func(r *Runner) { r.journal = store }
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(fn func() string) Option {
	return func(r *Runner) { r.newRunID = fn }
}

// New constructs a runner for cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:      cfg,
		base:     logger,
		logger:   logging.NewComponentLogger(logger, "runner"),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.svc == nil {
		r.svc = generator.NewFromConfig(cfg)
	}
	if r.notifier == nil {
		r.notifier = notifications.NewService(cfg)
	}
	return r
}

// Run executes one run to completion. The returned error is the workflow
// error that ended the run, if any; Result is populated either way.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	if req.Mode == "" {
		req.Mode = history.ModeGenerate
	}
	source, err := LoadSource(req.SourcePath)
	if err != nil {
		return Result{}, err
	}

	lock := runlock.New(r.cfg.LockPath())
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			return Result{}, services.Wrap(services.ErrConfiguration, "", "acquire run lock", lock.Path(), err)
		}
		return Result{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			r.logger.Warn("run lock release failed", logging.Error(err))
		}
	}()

	if !req.SkipPreflight {
		if check := preflight.CheckService(ctx, r.cfg.Service.BaseURL, r.svc); !check.Passed {
			return Result{}, services.Wrap(services.ErrTransport, "", "preflight", check.Detail, nil)
		}
	}

	runID := r.newRunID()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, r.logger)
	result := Result{RunID: runID, StartedAt: time.Now()}

	loop := scheduler.NewLoop()
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(loopCtx)
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	spool := filepath.Join(r.cfg.SpoolDir(), runID)
	defer func() {
		if err := os.RemoveAll(spool); err != nil {
			logger.Warn("spool cleanup failed", logging.String("spool", spool), logging.Error(err))
		}
	}()
	res := resources.NewManager(resources.WithSpoolDir(spool), resources.WithLogger(logging.WithContext(ctx, r.base)))
	machine := workflow.New(loop, r.svc, res, workflow.Options{
		PollInterval: r.cfg.PollInterval(),
		PollTimeout:  r.cfg.PollTimeout(),
		ModelTimeout: r.cfg.ModelTimeout(),
		RunID:        runID,
		Logger:       r.base,
		Context:      ctx,
	})
	if req.OnSnapshot != nil {
		machine.Subscribe(req.OnSnapshot)
	}

	logger.Info("run started",
		logging.String("source", source.Name),
		logging.String("mode", string(req.Mode)),
		logging.String(logging.FieldEventType, "run_started"),
	)

	snap, err := r.drive(ctx, machine, source, req.Mode)
	result.Snapshot = snap
	if err == nil && !req.SkipExport && len(snap.Views) > 0 {
		exported, exportErr := export.Write(r.cfg.Paths.OutputDir, snap, res)
		if exportErr != nil {
			logger.Warn("export failed", logging.Error(exportErr), logging.String(logging.FieldEventType, "export_failed"))
			err = exportErr
		}
		result.Export = exported
	}

	closeMachine(machine)
	result.FinishedAt = time.Now()
	r.publish(ctx, logger, source, result, err)
	r.record(logger, source, req.Mode, result, err)

	logger.Info("run finished",
		logging.String(logging.FieldStage, snap.Stage.String()),
		logging.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
		logging.String(logging.FieldEventType, "run_finished"),
	)
	return result, err
}

// drive dispatches the intents for mode and waits for each to settle.
func (r *Runner) drive(ctx context.Context, m *workflow.Machine, source Source, mode history.Mode) (workflow.Snapshot, error) {
	before := m.Snapshot().Version
	m.SelectSource(source.Name, source.Data)
	snap, err := settle(ctx, m, before)
	if err != nil {
		return snap, err
	}
	if snap.Error != nil {
		return snap, snap.Error
	}

	before = snap.Version
	if mode == history.ModeAttach {
		m.AttachViews()
	} else {
		m.GenerateViews()
	}
	if snap, err = settle(ctx, m, before); err != nil {
		return snap, err
	}
	if snap.Error != nil {
		return snap, snap.Error
	}
	if mode == history.ModeViewsOnly {
		return snap, nil
	}

	before = snap.Version
	m.GenerateModel()
	if snap, err = settle(ctx, m, before); err != nil {
		return snap, err
	}
	if snap.Error != nil {
		return snap, snap.Error
	}
	return snap, nil
}

// settle waits for the first idle-stage snapshot published after version.
func settle(ctx context.Context, m *workflow.Machine, version uint64) (workflow.Snapshot, error) {
	snap, err := m.Await(ctx, version, func(s workflow.Snapshot) bool {
		return !s.Stage.Busy()
	})
	if err != nil {
		return snap, fmt.Errorf("wait for %s: %w", snap.Stage, err)
	}
	return snap, nil
}

func closeMachine(m *workflow.Machine) {
	version := m.Snapshot().Version
	m.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = m.Await(ctx, version, func(s workflow.Snapshot) bool { return s.Stage == workflow.StageIdle })
}

func (r *Runner) publish(ctx context.Context, logger *slog.Logger, source Source, result Result, runErr error) {
	ctx = context.WithoutCancel(ctx)
	snap := result.Snapshot
	var event notifications.Event
	payload := notifications.Payload{"source": source.Name}
	switch {
	case runErr != nil:
		event = notifications.EventWorkflowFailed
		payload["stage"] = snap.Stage.String()
		payload["error"] = runErr
		var werr *workflow.Error
		if errors.As(runErr, &werr) {
			payload["kind"] = string(werr.Kind)
		}
	case snap.Stage == workflow.StageModelReady:
		event = notifications.EventModelReady
		payload["output"] = result.Export.Dir
	case snap.Stage == workflow.StageViewsReady:
		event = notifications.EventViewsReady
		payload["views"] = len(snap.Views)
	default:
		return
	}
	if err := r.notifier.Publish(ctx, event, payload); err != nil {
		logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
		)
	}
}

func (r *Runner) record(logger *slog.Logger, source Source, mode history.Mode, result Result, runErr error) {
	if r.journal == nil {
		return
	}
	snap := result.Snapshot
	entry := history.Entry{
		RunID:      result.RunID,
		SourceName: source.Name,
		Mode:       mode,
		Stage:      snap.Stage.String(),
		ViewCount:  len(snap.Views),
		Checks:     snap.Checks,
		OutputDir:  result.Export.Dir,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	if snap.Model != nil {
		entry.ModelURL = snap.Model.Ref
	}
	if runErr != nil {
		entry.ErrorMessage = runErr.Error()
		entry.ErrorKind = "error"
		var werr *workflow.Error
		if errors.As(runErr, &werr) {
			entry.ErrorKind = string(werr.Kind)
			entry.ErrorMessage = werr.Message
		} else if errors.Is(runErr, context.Canceled) {
			entry.ErrorKind = "cancelled"
		}
	}
	if _, err := r.journal.Record(context.Background(), entry); err != nil {
		logger.Warn("history record failed", logging.Error(err), logging.String(logging.FieldEventType, "history_record_failed"))
	}
}
