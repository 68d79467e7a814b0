package polling_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"banana3d/internal/polling"
	"banana3d/internal/scheduler"
	"banana3d/internal/services"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type recorder struct {
	outcomes []polling.Outcome[string]
}

func (r *recorder) deliver(out polling.Outcome[string]) {
	r.outcomes = append(r.outcomes, out)
}

// scripted returns results[i] on the i-th call and pending afterwards.
func scripted(calls *int, results ...polling.Result[string]) polling.CheckFunc[string] {
	return func(context.Context) (polling.Result[string], error) {
		i := *calls
		*calls++
		if i < len(results) {
			return results[i], nil
		}
		return polling.Pending[string](), nil
	}
}

func TestAllPendingTimesOutAfterSixtyChecks(t *testing.T) {
	clock := scheduler.NewManual(epoch)
	ctrl := polling.NewController[string](clock, nil)
	rec := &recorder{}
	calls := 0

	session := ctrl.Start(context.Background(), scripted(&calls), polling.Options{
		Interval: 2000 * time.Millisecond,
		Timeout:  120000 * time.Millisecond,
	}, rec.deliver)

	clock.Advance(120 * time.Second)

	if len(rec.outcomes) != 1 {
		t.Fatalf("expected exactly one outcome, got %d", len(rec.outcomes))
	}
	out := rec.outcomes[0]
	if out.Kind != polling.OutcomeTimeout || !errors.Is(out.Err, services.ErrTimeout) {
		t.Fatalf("expected timeout outcome, got %+v", out)
	}
	if session.Checks() != 60 || calls != 60 || out.Checks != 60 {
		t.Fatalf("expected 60 checks, got session=%d calls=%d outcome=%d", session.Checks(), calls, out.Checks)
	}

	clock.Advance(10 * time.Second)
	if calls != 60 || len(rec.outcomes) != 1 {
		t.Fatalf("expected no activity after timeout, calls=%d outcomes=%d", calls, len(rec.outcomes))
	}
	if clock.Armed() != 0 || ctrl.Active() {
		t.Fatalf("expected all timers retired, armed=%d active=%v", clock.Armed(), ctrl.Active())
	}
}

func TestDoneOnTickKStopsPolling(t *testing.T) {
	for k := 1; k <= 5; k++ {
		clock := scheduler.NewManual(epoch)
		ctrl := polling.NewController[string](clock, nil)
		rec := &recorder{}
		calls := 0

		results := make([]polling.Result[string], k)
		for i := range k - 1 {
			results[i] = polling.Pending[string]()
		}
		results[k-1] = polling.Done("views")

		ctrl.Start(context.Background(), scripted(&calls, results...), polling.Options{Interval: time.Second, Timeout: time.Minute}, rec.deliver)
		clock.Advance(time.Minute)

		if len(rec.outcomes) != 1 || rec.outcomes[0].Kind != polling.OutcomeDone || rec.outcomes[0].Value != "views" {
			t.Fatalf("k=%d: expected one done outcome, got %+v", k, rec.outcomes)
		}
		if calls != k {
			t.Fatalf("k=%d: expected %d checks, got %d", k, k, calls)
		}
	}
}

func TestCheckFailureDeliversImmediately(t *testing.T) {
	clock := scheduler.NewManual(epoch)
	ctrl := polling.NewController[string](clock, nil)
	rec := &recorder{}
	boom := errors.New("connection refused")
	calls := 0

	ctrl.Start(context.Background(), func(context.Context) (polling.Result[string], error) {
		calls++
		if calls == 2 {
			return polling.Result[string]{}, boom
		}
		return polling.Pending[string](), nil
	}, polling.Options{Interval: time.Second, Timeout: time.Minute}, rec.deliver)

	clock.Advance(2 * time.Second)
	if len(rec.outcomes) != 1 || rec.outcomes[0].Kind != polling.OutcomeFailed || !errors.Is(rec.outcomes[0].Err, boom) {
		t.Fatalf("expected one failed outcome, got %+v", rec.outcomes)
	}
	clock.Advance(time.Minute)
	if calls != 2 || len(rec.outcomes) != 1 {
		t.Fatalf("expected polling to stop after failure, calls=%d outcomes=%d", calls, len(rec.outcomes))
	}
}

func TestSupersededSessionDeliversNothing(t *testing.T) {
	clock := scheduler.NewManual(epoch)
	ctrl := polling.NewController[string](clock, nil)
	first := &recorder{}
	second := &recorder{}
	firstCalls, secondCalls := 0, 0

	old := ctrl.Start(context.Background(), scripted(&firstCalls), polling.Options{Interval: time.Second, Timeout: 5 * time.Second}, first.deliver)
	clock.Advance(2 * time.Second)

	next := ctrl.Start(context.Background(), scripted(&secondCalls, polling.Pending[string](), polling.Done("ok")), polling.Options{Interval: time.Second, Timeout: 5 * time.Second}, second.deliver)
	if old.Active() {
		t.Fatal("expected previous session to be retired")
	}
	if next.ID() <= old.ID() {
		t.Fatalf("expected increasing session ids, got %d then %d", old.ID(), next.ID())
	}

	clock.Advance(time.Minute)

	if len(first.outcomes) != 0 {
		t.Fatalf("superseded session delivered %+v", first.outcomes)
	}
	if firstCalls != 2 {
		t.Fatalf("superseded session kept checking: %d", firstCalls)
	}
	if len(second.outcomes) != 1 || second.outcomes[0].Session != next.ID() {
		t.Fatalf("expected one outcome from the new session, got %+v", second.outcomes)
	}
}

func TestSupersededInFlightResultIsDiscarded(t *testing.T) {
	clock := scheduler.NewManual(epoch)
	ctrl := polling.NewController[string](clock, nil)
	rec := &recorder{}

	// The check itself retires the session before its result is posted back,
	// standing in for a response that arrives after Cancel.
	var session *polling.Session[string]
	session = ctrl.Start(context.Background(), func(context.Context) (polling.Result[string], error) {
		session.Cancel()
		return polling.Done("late"), nil
	}, polling.Options{Interval: time.Second, Timeout: time.Minute}, rec.deliver)

	clock.Advance(time.Minute)
	if len(rec.outcomes) != 0 {
		t.Fatalf("expected stale result to be dropped, got %+v", rec.outcomes)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	clock := scheduler.NewManual(epoch)
	ctrl := polling.NewController[string](clock, nil)
	rec := &recorder{}
	calls := 0

	session := ctrl.Start(context.Background(), scripted(&calls), polling.Options{Interval: time.Second, Timeout: 3 * time.Second}, rec.deliver)
	session.Cancel()
	session.Cancel()
	ctrl.Cancel()

	var nilSession *polling.Session[string]
	nilSession.Cancel()

	clock.Advance(time.Minute)
	if calls != 0 || len(rec.outcomes) != 0 {
		t.Fatalf("cancelled session must be silent, calls=%d outcomes=%d", calls, len(rec.outcomes))
	}
	if clock.Armed() != 0 {
		t.Fatalf("expected timers disarmed, got %d", clock.Armed())
	}
}

func TestCancelledSessionCancelsCheckContext(t *testing.T) {
	clock := scheduler.NewManual(epoch)
	ctrl := polling.NewController[string](clock, nil)

	var seen context.Context
	session := ctrl.Start(context.Background(), func(ctx context.Context) (polling.Result[string], error) {
		seen = ctx
		return polling.Pending[string](), nil
	}, polling.Options{Interval: time.Second, Timeout: time.Minute}, nil)

	clock.Advance(time.Second)
	if seen == nil || seen.Err() != nil {
		t.Fatal("expected a live context during the check")
	}
	if id, ok := services.SessionIDFromContext(seen); !ok || id != session.ID() {
		t.Fatalf("expected session id on check context, got %d %v", id, ok)
	}
	session.Cancel()
	if seen.Err() == nil {
		t.Fatal("expected check context cancelled with the session")
	}
}

func TestOverlappingTicksAreSkipped(t *testing.T) {
	loop := scheduler.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	release := make(chan struct{})
	done := make(chan polling.Outcome[string], 1)
	sessions := make(chan *polling.Session[string], 1)
	ctrl := polling.NewController[string](loop, nil)

	calls := 0
	loop.Post(func() {
		sessions <- ctrl.Start(ctx, func(context.Context) (polling.Result[string], error) {
			calls++
			<-release
			return polling.Done("slow"), nil
		}, polling.Options{Interval: 5 * time.Millisecond, Timeout: 5 * time.Second}, func(out polling.Outcome[string]) {
			done <- out
		})
	})
	session := <-sessions

	time.Sleep(60 * time.Millisecond)
	close(release)

	select {
	case out := <-done:
		if out.Kind != polling.OutcomeDone || out.Checks != 1 {
			t.Fatalf("expected a single done check, got %+v", out)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}

	skipped := make(chan int, 1)
	loop.Post(func() { skipped <- session.Skipped() })
	if n := <-skipped; n == 0 {
		t.Fatal("expected ticks skipped while the check was in flight")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one check, got %d", calls)
	}
}

func TestOptionsDefaults(t *testing.T) {
	clock := scheduler.NewManual(epoch)
	ctrl := polling.NewController[string](clock, nil)
	rec := &recorder{}
	calls := 0

	ctrl.Start(context.Background(), scripted(&calls), polling.Options{}, rec.deliver)
	clock.Advance(polling.DefaultTimeout)

	if want := int(polling.DefaultTimeout / polling.DefaultInterval); calls != want {
		t.Fatalf("expected %d checks with defaults, got %d", want, calls)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0].Kind != polling.OutcomeTimeout {
		t.Fatalf("expected timeout with defaults, got %+v", rec.outcomes)
	}
}

func TestOnPendingReportsCheckCount(t *testing.T) {
	clock := scheduler.NewManual(epoch)
	ctrl := polling.NewController[string](clock, nil)
	calls := 0
	var seen []int

	ctrl.Start(context.Background(), scripted(&calls, polling.Pending[string](), polling.Pending[string](), polling.Done("x")), polling.Options{
		Interval:  time.Second,
		Timeout:   time.Minute,
		OnPending: func(n int) { seen = append(seen, n) },
	}, nil)
	clock.Advance(time.Minute)

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("expected pending notifications for checks 1 and 2, got %v", seen)
	}
}
