package workflow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"banana3d/internal/logging"
	"banana3d/internal/polling"
	"banana3d/internal/resources"
	"banana3d/internal/scheduler"
	"banana3d/internal/services"
	"banana3d/internal/services/generator"
)

// Service is the remote side of the workflow.
type Service interface {
	SubmitViewGeneration(ctx context.Context, img generator.Image) error
	CheckViewGenerationStatus(ctx context.Context) (generator.ViewStatus, error)
	RequestModelGeneration(ctx context.Context) (generator.ModelResult, error)
	Resolve(ctx context.Context, ref string) (generator.Asset, error)
}

// Options tunes a Machine. Zero values fall back to the polling defaults and
// a ten minute model deadline.
type Options struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	ModelTimeout time.Duration
	RunID        string
	Logger       *slog.Logger
	// Context parents every outbound request. Cancelling it aborts in-flight
	// calls; the machine itself keeps running.
	Context context.Context
}

const defaultModelTimeout = 10 * time.Minute

// Machine orchestrates source selection, view generation, and model
// generation. Intents may be called from any goroutine; all state changes run
// on the scheduler.
type Machine struct {
	sched  scheduler.Scheduler
	svc    Service
	res    *resources.Manager
	opts   Options
	logger *slog.Logger
	polls  *polling.Controller[resolvedViews]

	// Loop-owned state.
	stage         Stage
	err           *Error
	epoch         uint64
	source        *Asset
	sourceScope   *resources.Scope
	views         map[generator.ViewID]Asset
	viewScope     *resources.Scope
	model         *Asset
	modelScope    *resources.Scope
	modelDeadline scheduler.Timer
	checks        int
	runCtx        context.Context
	runCancel     context.CancelFunc
	closed        bool

	current atomic.Pointer[Snapshot]

	mu          sync.Mutex
	version     uint64
	changed     chan struct{}
	subscribers map[int]func(Snapshot)
	nextSub     int
}

// New constructs a machine in the Idle stage and publishes its first snapshot.
func New(sched scheduler.Scheduler, svc Service, res *resources.Manager, opts Options) *Machine {
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = defaultModelTimeout
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if res == nil {
		res = resources.NewManager(resources.WithLogger(opts.Logger))
	}
	opts.Context = services.WithRunID(opts.Context, opts.RunID)

	m := &Machine{
		sched:       sched,
		svc:         svc,
		res:         res,
		opts:        opts,
		logger:      logging.WithContext(opts.Context, logging.NewComponentLogger(opts.Logger, "workflow")),
		polls:       polling.NewController[resolvedViews](sched, opts.Logger),
		stage:       StageIdle,
		changed:     make(chan struct{}),
		subscribers: make(map[int]func(Snapshot)),
	}
	m.runCtx, m.runCancel = context.WithCancel(opts.Context)
	m.publish()
	return m
}

// Resources exposes the manager that owns every handle in the snapshots.
func (m *Machine) Resources() *resources.Manager {
	return m.res
}

// SelectSource replaces the source image. Any outstanding work is retired
// and existing views and model are released.
func (m *Machine) SelectSource(name string, data []byte) {
	blob := resources.Blob{Name: name, Data: append([]byte(nil), data...)}
	m.sched.Post(func() { m.selectSource(blob) })
}

// GenerateViews submits the current source and polls for the views.
func (m *Machine) GenerateViews() {
	m.sched.Post(func() { m.generateViews(true) })
}

// AttachViews polls for views already generated on the service without
// submitting the source again.
func (m *Machine) AttachViews() {
	m.sched.Post(func() { m.generateViews(false) })
}

// GenerateModel asks the service to build a model from the ready views.
func (m *Machine) GenerateModel() {
	m.sched.Post(m.generateModel)
}

// Reset retires all work, releases every handle, and returns to Idle.
func (m *Machine) Reset() {
	m.sched.Post(m.reset)
}

// Close resets the machine and ignores every later intent.
func (m *Machine) Close() {
	m.sched.Post(func() {
		if m.closed {
			return
		}
		m.reset()
		m.closed = true
		m.runCancel()
		m.logger.Debug("workflow closed", logging.String(logging.FieldEventType, "workflow_closed"))
	})
}

// Snapshot returns a copy of the latest published state. Safe from any
// goroutine.
func (m *Machine) Snapshot() Snapshot {
	return m.current.Load().clone()
}

// Subscribe registers fn to run on the scheduler after every transition.
// The returned function unsubscribes.
func (m *Machine) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Await blocks until a snapshot newer than version satisfies pred, or ctx
// ends. Pass version 0 to test the current snapshot first.
func (m *Machine) Await(ctx context.Context, after uint64, pred func(Snapshot) bool) (Snapshot, error) {
	for {
		m.mu.Lock()
		snap := m.current.Load().clone()
		changed := m.changed
		m.mu.Unlock()

		if snap.Version > after && pred(snap) {
			return snap, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

func (m *Machine) selectSource(blob resources.Blob) {
	if m.closed {
		return
	}
	if len(blob.Data) == 0 {
		m.reject(newError(KindValidation, MsgSourceEmpty, services.Wrap(services.ErrValidation, m.stage.String(), "select source", "image has no bytes", nil)))
		return
	}
	if blob.MediaType == "" {
		blob.MediaType = detectMediaType(blob.Data)
	}

	m.retireWork()
	m.releaseModel()
	m.releaseViews()
	m.releaseSource()

	scope := m.res.NewScope("source")
	handle, err := scope.Allocate(blob)
	if err != nil {
		scope.Release()
		m.fail(StageIdle, newError(KindValidation, MsgSourceStore, services.Wrap(services.ErrValidation, "", "select source", "allocate handle", err)))
		return
	}
	m.sourceScope = scope
	m.source = &Asset{Name: blob.Name, MediaType: blob.MediaType, Size: len(blob.Data), Handle: handle}
	m.transition(StageSourceSelected)
}

func (m *Machine) reset() {
	if m.closed {
		return
	}
	m.retireWork()
	m.releaseModel()
	m.releaseViews()
	m.releaseSource()
	m.err = nil
	m.transition(StageIdle)
}

// retireWork invalidates every outstanding async operation. Late completions
// carry an older epoch and are dropped.
func (m *Machine) retireWork() {
	m.epoch++
	m.polls.Cancel()
	m.checks = 0
	if m.modelDeadline != nil {
		m.modelDeadline.Stop()
		m.modelDeadline = nil
	}
	m.runCancel()
	m.runCtx, m.runCancel = context.WithCancel(m.opts.Context)
}

func (m *Machine) stale(epoch uint64, what string) bool {
	if epoch == m.epoch && !m.closed {
		return false
	}
	m.logger.Debug("discarding stale completion",
		logging.String("operation", what),
		logging.Uint64("epoch", epoch),
		logging.Uint64("current_epoch", m.epoch),
		logging.String(logging.FieldEventType, "stale_completion"),
	)
	return true
}

func (m *Machine) releaseSource() {
	m.sourceScope.Release()
	m.sourceScope = nil
	m.source = nil
}

func (m *Machine) releaseViews() {
	m.viewScope.Release()
	m.viewScope = nil
	m.views = nil
}

func (m *Machine) releaseModel() {
	m.modelScope.Release()
	m.modelScope = nil
	m.model = nil
}

// transition moves to stage, clears the error, and publishes.
func (m *Machine) transition(stage Stage) {
	from := m.stage
	m.stage = stage
	m.err = nil
	if from != stage {
		m.logger.Info("stage transition",
			logging.String("from", from.String()),
			logging.String("to", stage.String()),
			logging.String(logging.FieldEventType, "stage_transition"),
		)
	}
	m.publish()
}

// fail retires outstanding work, moves to stage, and attaches werr.
func (m *Machine) fail(stage Stage, werr *Error) {
	m.retireWork()
	from := m.stage
	m.stage = stage
	m.err = werr
	m.logger.Warn("workflow step failed",
		logging.String("from", from.String()),
		logging.String("to", stage.String()),
		logging.String(logging.FieldErrorKind, string(werr.Kind)),
		logging.String("error_message", werr.Message),
		logging.Error(werr.Err),
		logging.String(logging.FieldErrorHint, services.Hint(werr)),
		logging.Alert("workflow_failure"),
		logging.String(logging.FieldEventType, "workflow_failure"),
	)
	m.publish()
}

// reject attaches a validation error without changing stage or touching
// outstanding work.
func (m *Machine) reject(werr *Error) {
	m.err = werr
	m.logger.Info("intent rejected",
		logging.String(logging.FieldStage, m.stage.String()),
		logging.String("error_message", werr.Message),
		logging.String(logging.FieldEventType, "intent_rejected"),
	)
	m.publish()
}

func (m *Machine) publish() {
	session := uint64(0)
	if current := m.polls.Current(); current.Active() {
		session = current.ID()
	}
	m.mu.Lock()
	m.version++
	snap := Snapshot{
		Version:   m.version,
		RunID:     m.opts.RunID,
		Stage:     m.stage,
		Error:     m.err,
		Source:    m.source,
		Views:     m.views,
		Model:     m.model,
		Session:   session,
		Checks:    m.checks,
		UpdatedAt: m.sched.Now(),
	}.clone()
	m.current.Store(&snap)
	close(m.changed)
	m.changed = make(chan struct{})
	subs := make([]func(Snapshot), 0, len(m.subscribers))
	for id := 0; id < m.nextSub; id++ {
		if fn, ok := m.subscribers[id]; ok {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
