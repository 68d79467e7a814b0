package runner_test

import (
	"context"
	"errors"
	"image/color"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"banana3d/internal/config"
	"banana3d/internal/history"
	"banana3d/internal/notifications"
	"banana3d/internal/runlock"
	"banana3d/internal/runner"
	"banana3d/internal/services"
	"banana3d/internal/services/generator/generatortest"
	"banana3d/internal/testsupport"
	"banana3d/internal/workflow"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.last = payload
	return nil
}

func (r *recordingNotifier) Events() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

type fixture struct {
	srv      *generatortest.Server
	runner   *runner.Runner
	notifier *recordingNotifier
	journal  *history.Store
	source   string
	cfg      *config.Config
	output   string
}

func newFixture(t *testing.T, serverOpts ...generatortest.Option) *fixture {
	t.Helper()
	srv := generatortest.New(t, serverOpts...)
	cfg := testsupport.NewConfig(t,
		testsupport.WithServiceURL(srv.URL),
		testsupport.WithPolling(10, 2000),
		testsupport.WithModelTimeout(2000),
	)
	journal := testsupport.MustOpenHistory(t, cfg)
	notifier := &recordingNotifier{}
	ids := 0
	r := runner.New(cfg, nil,
		runner.WithNotifier(notifier),
		runner.WithHistory(journal),
		runner.WithRunIDs(func() string {
			ids++
			return "run-" + string(rune('a'+ids-1)) + "-0000000000"
		}),
	)
	source := testsupport.WriteImage(t, t.TempDir(), "hero.png", testsupport.PNG(t, color.RGBA{R: 200, A: 255}))
	return &fixture{srv: srv, runner: r, notifier: notifier, journal: journal, source: source, cfg: cfg, output: cfg.Paths.OutputDir}
}

func TestRunGeneratesAndExportsModel(t *testing.T) {
	f := newFixture(t, generatortest.WithPendingPolls(2))

	var stages []workflow.Stage
	result, err := f.runner.Run(context.Background(), runner.Request{
		SourcePath: f.source,
		OnSnapshot: func(s workflow.Snapshot) { stages = append(stages, s.Stage) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Snapshot.Stage != workflow.StageModelReady {
		t.Fatalf("expected model_ready, got %s", result.Snapshot.Stage)
	}
	if len(result.Export.Files) != 4 {
		t.Fatalf("expected 3 views and a model exported, got %+v", result.Export.Files)
	}
	model, ok := result.Export.Model()
	if !ok {
		t.Fatal("expected exported model")
	}
	data, err := os.ReadFile(model.Path)
	if err != nil || string(data) != string(generatortest.ModelBytes) {
		t.Fatalf("unexpected model file %q, %v", data, err)
	}
	if filepath.Dir(result.Export.Dir) != f.output {
		t.Fatalf("expected export under %s, got %s", f.output, result.Export.Dir)
	}
	if len(stages) == 0 || stages[len(stages)-1] != workflow.StageIdle {
		t.Fatalf("expected machine closed to idle, got %v", stages)
	}

	uploads := f.srv.Uploads()
	if len(uploads) != 1 || uploads[0].Filename != "hero.png" || uploads[0].ContentType != "image/png" {
		t.Fatalf("unexpected uploads %+v", uploads)
	}
	if events := f.notifier.Events(); len(events) != 1 || events[0] != notifications.EventModelReady {
		t.Fatalf("expected model ready notification, got %v", events)
	}

	entry, err := f.journal.Get(context.Background(), result.RunID)
	if err != nil || entry == nil {
		t.Fatalf("expected history entry, got %v, %v", entry, err)
	}
	if entry.Stage != "model_ready" || entry.ViewCount != 3 || !entry.Succeeded() || entry.ModelURL == "" {
		t.Fatalf("unexpected history entry %+v", entry)
	}

	lock := runlock.New(f.cfg.LockPath())
	if err := lock.Acquire(); err != nil {
		t.Fatalf("expected run lock released: %v", err)
	}
	_ = lock.Release()
}

func TestRunViewsOnly(t *testing.T) {
	f := newFixture(t)

	result, err := f.runner.Run(context.Background(), runner.Request{SourcePath: f.source, Mode: history.ModeViewsOnly})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Snapshot.Stage != workflow.StageViewsReady {
		t.Fatalf("expected views_ready, got %s", result.Snapshot.Stage)
	}
	if f.srv.ModelRequests() != 0 {
		t.Fatalf("expected no model request, got %d", f.srv.ModelRequests())
	}
	if len(result.Export.Files) != 3 {
		t.Fatalf("expected three exported views, got %d", len(result.Export.Files))
	}
	if events := f.notifier.Events(); len(events) != 1 || events[0] != notifications.EventViewsReady {
		t.Fatalf("expected views ready notification, got %v", events)
	}
}

func TestRunAttachSkipsSubmission(t *testing.T) {
	f := newFixture(t)

	result, err := f.runner.Run(context.Background(), runner.Request{SourcePath: f.source, Mode: history.ModeAttach, SkipExport: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Snapshot.Stage != workflow.StageModelReady {
		t.Fatalf("expected model_ready, got %s", result.Snapshot.Stage)
	}
	if len(f.srv.Uploads()) != 0 {
		t.Fatal("attach must not upload the source")
	}
	if result.Export.Dir != "" {
		t.Fatalf("expected no export, got %s", result.Export.Dir)
	}
}

func TestRunSubmissionFailure(t *testing.T) {
	f := newFixture(t, generatortest.WithSubmitFailure(http.StatusInternalServerError, "model offline"))

	result, err := f.runner.Run(context.Background(), runner.Request{SourcePath: f.source})
	var werr *workflow.Error
	if !errors.As(err, &werr) || werr.Kind != workflow.KindSubmission {
		t.Fatalf("expected submission error, got %v", err)
	}
	if result.Snapshot.Stage != workflow.StageSourceSelected {
		t.Fatalf("expected source_selected, got %s", result.Snapshot.Stage)
	}
	if events := f.notifier.Events(); len(events) != 1 || events[0] != notifications.EventWorkflowFailed {
		t.Fatalf("expected failure notification, got %v", events)
	}
	entry, _ := f.journal.Get(context.Background(), result.RunID)
	if entry == nil || entry.ErrorKind != "submission" || entry.ErrorMessage != workflow.MsgSubmitFailed {
		t.Fatalf("unexpected history entry %+v", entry)
	}
}

func TestRunViewsTimeout(t *testing.T) {
	f := newFixture(t, generatortest.WithPendingPolls(1_000_000))
	result, err := f.runner.Run(context.Background(), runner.Request{SourcePath: f.source})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if result.Snapshot.Stage != workflow.StageSourceSelected || result.Snapshot.Error == nil {
		t.Fatalf("unexpected final snapshot %+v", result.Snapshot)
	}
	if checks := f.srv.StatusChecks(); checks > 200 {
		t.Fatalf("expected bounded polling, got %d checks", checks)
	}
}

func TestRunModelFailureKeepsViews(t *testing.T) {
	f := newFixture(t, generatortest.WithModelFailure(http.StatusFailedDependency, "views missing"))
	result, err := f.runner.Run(context.Background(), runner.Request{SourcePath: f.source})
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if result.Snapshot.Stage != workflow.StageViewsReady || len(result.Snapshot.Views) != 3 || result.Snapshot.Model != nil {
		t.Fatalf("unexpected final snapshot %+v", result.Snapshot)
	}
	if result.Export.Dir != "" {
		t.Fatal("failed runs are not exported")
	}
}

func TestRunRejectsNonImageSource(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("just text"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := f.runner.Run(context.Background(), runner.Request{SourcePath: path})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.srv.StatusChecks() != 0 || len(f.srv.Uploads()) != 0 {
		t.Fatal("validation failures must not reach the service")
	}
}

func TestRunRefusesWhenLocked(t *testing.T) {
	f := newFixture(t)
	lock := runlock.New(f.cfg.LockPath())
	if err := lock.Acquire(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lock.Release() }()

	_, err := f.runner.Run(context.Background(), runner.Request{SourcePath: f.source})
	if !errors.Is(err, services.ErrConfiguration) || !errors.Is(err, runlock.ErrHeld) {
		t.Fatalf("expected held lock error, got %v", err)
	}
}

func TestRunFailsPreflightWhenServiceDown(t *testing.T) {
	f := newFixture(t)
	f.srv.Close()

	_, err := f.runner.Run(context.Background(), runner.Request{SourcePath: f.source})
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	f := newFixture(t, generatortest.WithPendingPolls(1_000_000))
	ctx, cancel := context.WithCancel(context.Background())
	result, err := f.runner.Run(ctx, runner.Request{
		SourcePath: f.source,
		OnSnapshot: func(s workflow.Snapshot) {
			if s.Checks >= 2 {
				cancel()
			}
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	entry, _ := f.journal.Get(context.Background(), result.RunID)
	if entry == nil || entry.ErrorKind != "cancelled" {
		t.Fatalf("expected cancelled history entry, got %+v", entry)
	}
}

func TestLoadSource(t *testing.T) {
	dir := t.TempDir()
	jpeg := testsupport.WriteImage(t, dir, "cat.jpg", testsupport.JPEG(t, color.White))
	src, err := runner.LoadSource(jpeg)
	if err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	if src.MediaType != "image/jpeg" || src.Name != "cat.jpg" {
		t.Fatalf("unexpected source %+v", src)
	}

	empty := testsupport.WriteImage(t, dir, "empty.png", nil)
	for _, path := range []string{empty, dir, filepath.Join(dir, "missing.png")} {
		if _, err := runner.LoadSource(path); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %s, got %v", path, err)
		}
	}
}
