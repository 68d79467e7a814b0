package workflow_test

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"banana3d/internal/workflow"
)

type step struct {
	intent  string
	advance time.Duration
}

var intents = []string{"select", "select_empty", "views", "attach", "model", "reset", "advance", "hold", "release"}

func drawSteps(t *rapid.T) []step {
	return rapid.SliceOfN(rapid.Custom(func(t *rapid.T) step {
		return step{
			intent:  rapid.SampledFrom(intents).Draw(t, "intent"),
			advance: time.Duration(rapid.IntRange(1, 90).Draw(t, "seconds")) * time.Second,
		}
	}), 1, 40).Draw(t, "steps")
}

func drawService(t *rapid.T) *fakeService {
	svc := newFakeService()
	svc.pending = rapid.IntRange(-1, 4).Draw(t, "pending")
	if rapid.Bool().Draw(t, "model_fails") {
		svc.modelErr = transportErr()
	}
	return svc
}

func play(h *harness, steps []step) []string {
	var trace []string
	for _, s := range steps {
		switch s.intent {
		case "select":
			h.selectSource()
		case "select_empty":
			h.do(func() { h.m.SelectSource("empty.png", nil) })
		case "views":
			h.do(h.m.GenerateViews)
		case "attach":
			h.do(h.m.AttachViews)
		case "model":
			h.do(h.m.GenerateModel)
		case "reset":
			h.do(h.m.Reset)
		case "advance":
			h.clock.Advance(s.advance)
		case "hold":
			h.clock.hold = true
		case "release":
			h.clock.hold = false
			h.clock.release()
		}
		snap := h.m.Snapshot()
		kind := ""
		if snap.Error != nil {
			kind = string(snap.Error.Kind)
		}
		trace = append(trace, fmt.Sprintf("%s/%s/%d/%d", snap.Stage, kind, len(snap.Views), h.res.Live()))
	}
	return trace
}

func TestMachineInvariantsHoldUnderRandomIntents(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		steps := drawSteps(t)
		svc := drawService(t)
		h := newHarness(t, svc)
		play(h, steps)

		snap := h.m.Snapshot()
		if err := snap.Validate(); err != nil {
			t.Fatalf("final snapshot invariants: %v", err)
		}
		live := 0
		if snap.Source != nil {
			live++
		}
		live += len(snap.Views)
		if snap.Model != nil {
			live++
		}
		if h.res.Live() != live {
			t.Fatalf("expected %d live handles for %s, got %d", live, snap.Stage, h.res.Live())
		}

		h.do(h.m.Reset)
		h.clock.hold = false
		h.clock.release()
		h.clock.Advance(time.Hour)
		if h.stage() != workflow.StageIdle || h.res.Live() != 0 {
			t.Fatalf("expected reset to reach idle with nothing live, got %s live=%d", h.stage(), h.res.Live())
		}
		if h.clock.Armed() != 0 {
			t.Fatalf("expected no armed timers after reset, got %d", h.clock.Armed())
		}
	})
}

func TestMachineIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		steps := drawSteps(t)
		pending := rapid.IntRange(-1, 4).Draw(t, "pending")

		run := func() []string {
			svc := newFakeService()
			svc.pending = pending
			return play(newHarness(t, svc), steps)
		}
		first, second := run(), run()
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("step %d diverged: %s vs %s", i, first[i], second[i])
			}
		}
	})
}

func TestStageOnlyReachesModelReadyThroughViews(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := newHarness(t, drawService(t))
		play(h, drawSteps(t))

		sawViews := false
		for _, snap := range h.seen {
			switch {
			case snap.Stage == workflow.StageViewsReady:
				sawViews = true
			case snap.Stage == workflow.StageModelReady && !sawViews:
				t.Fatalf("model ready at v%d without views ready first", snap.Version)
			case !snap.Stage.HoldsViews():
				sawViews = false
			}
		}
	})
}
