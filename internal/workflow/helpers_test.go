package workflow_test

import (
	"context"
	"errors"
	"time"

	"banana3d/internal/resources"
	"banana3d/internal/scheduler"
	"banana3d/internal/services"
	"banana3d/internal/services/generator"
	"banana3d/internal/workflow"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	pollInterval = 2000 * time.Millisecond
	pollTimeout  = 120000 * time.Millisecond
	modelTimeout = 30 * time.Second
)

// heldScheduler defers off-loop work until release is called, standing in
// for requests that are still on the wire.
type heldScheduler struct {
	*scheduler.Manual
	hold bool
	held []func()
}

func (h *heldScheduler) Spawn(work func()) {
	if h.hold {
		h.held = append(h.held, work)
		return
	}
	h.Manual.Spawn(work)
}

func (h *heldScheduler) release() {
	pending := h.held
	h.held = nil
	for _, work := range pending {
		work()
	}
	h.Flush()
}

type fakeService struct {
	submitErr  error
	pending    int
	statusErr  error
	views      map[generator.ViewID]string
	resolveErr error
	modelErr   error
	modelURL   string

	submits       int
	checks        int
	modelRequests int
	resolves      int
}

func newFakeService() *fakeService {
	return &fakeService{
		views: map[generator.ViewID]string{
			generator.ViewFront: "data:front",
			generator.ViewBack:  "data:back",
			generator.ViewLeft:  "data:left",
		},
		modelURL: "https://cdn.example.com/models/mesh.glb?sig=1",
	}
}

func (f *fakeService) SubmitViewGeneration(context.Context, generator.Image) error {
	f.submits++
	return f.submitErr
}

func (f *fakeService) CheckViewGenerationStatus(context.Context) (generator.ViewStatus, error) {
	f.checks++
	if f.statusErr != nil {
		return generator.ViewStatus{}, f.statusErr
	}
	if f.pending < 0 || f.checks <= f.pending {
		return generator.ViewStatus{}, nil
	}
	return generator.ViewStatus{Complete: true, Views: f.views}, nil
}

func (f *fakeService) RequestModelGeneration(context.Context) (generator.ModelResult, error) {
	f.modelRequests++
	if f.modelErr != nil {
		return generator.ModelResult{}, f.modelErr
	}
	return generator.ModelResult{URL: f.modelURL}, nil
}

func (f *fakeService) Resolve(_ context.Context, ref string) (generator.Asset, error) {
	f.resolves++
	if f.resolveErr != nil {
		return generator.Asset{}, f.resolveErr
	}
	mediaType := "image/png"
	if ref == f.modelURL {
		mediaType = "model/gltf-binary"
	}
	return generator.Asset{MediaType: mediaType, Data: []byte("bytes:" + ref)}, nil
}

// tb is the subset of testing.TB that *rapid.T also satisfies.
type tb interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

type harness struct {
	t     tb
	clock *heldScheduler
	svc   *fakeService
	res   *resources.Manager
	m     *workflow.Machine
	seen  []workflow.Snapshot
}

func newHarness(t tb, svc *fakeService) *harness {
	t.Helper()
	clock := &heldScheduler{Manual: scheduler.NewManual(epoch)}
	res := resources.NewManager()
	m := workflow.New(clock, svc, res, workflow.Options{
		PollInterval: pollInterval,
		PollTimeout:  pollTimeout,
		ModelTimeout: modelTimeout,
		RunID:        "test-run",
	})
	h := &harness{t: t, clock: clock, svc: svc, res: res, m: m}
	m.Subscribe(func(s workflow.Snapshot) {
		if err := s.Validate(); err != nil {
			t.Errorf("published invalid snapshot v%d: %v", s.Version, err)
		}
		h.seen = append(h.seen, s)
	})
	return h
}

func (h *harness) do(intent func()) workflow.Snapshot {
	intent()
	h.clock.Flush()
	return h.m.Snapshot()
}

func (h *harness) selectSource() workflow.Snapshot {
	return h.do(func() { h.m.SelectSource("character.png", []byte("\x89PNG\r\n\x1a\nsource")) })
}

func (h *harness) toViewsReady() workflow.Snapshot {
	h.t.Helper()
	h.selectSource()
	h.do(h.m.GenerateViews)
	h.clock.Advance(pollInterval * time.Duration(h.svc.pending+1))
	snap := h.m.Snapshot()
	if snap.Stage != workflow.StageViewsReady {
		h.t.Fatalf("expected views_ready, got %s (err=%v)", snap.Stage, snap.Error)
	}
	return snap
}

func (h *harness) stage() workflow.Stage {
	return h.m.Snapshot().Stage
}

func requireStage(t tb, snap workflow.Snapshot, want workflow.Stage) {
	t.Helper()
	if snap.Stage != want {
		t.Fatalf("expected stage %s, got %s (err=%v)", want, snap.Stage, snap.Error)
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("snapshot invariants: %v", err)
	}
}

func requireKind(t tb, snap workflow.Snapshot, want workflow.ErrorKind) {
	t.Helper()
	if snap.Error == nil {
		t.Fatalf("expected %s error, got none", want)
	}
	if snap.Error.Kind != want {
		t.Fatalf("expected %s error, got %s (%v)", want, snap.Error.Kind, snap.Error)
	}
}

var errBoom = errors.New("boom")

func transportErr() error {
	return services.Wrap(services.ErrTransport, "", "test", "connection reset", errBoom)
}
