package workflow

import (
	"context"
	"net/http"

	"banana3d/internal/logging"
	"banana3d/internal/polling"
	"banana3d/internal/resources"
	"banana3d/internal/scheduler"
	"banana3d/internal/services"
	"banana3d/internal/services/generator"
)

type resolvedView struct {
	ref   string
	asset generator.Asset
}

type resolvedViews map[generator.ViewID]resolvedView

func (m *Machine) generateViews(submit bool) {
	if m.closed {
		return
	}
	op := "generate views"
	if !submit {
		op = "attach views"
	}
	if m.source == nil {
		m.reject(newError(KindValidation, MsgSourceMissing, services.Wrap(services.ErrValidation, m.stage.String(), op, "no source selected", nil)))
		return
	}
	blob, ok := m.res.Open(m.source.Handle)
	if !ok {
		stage := m.stage.String()
		m.releaseModel()
		m.releaseViews()
		m.releaseSource()
		m.fail(StageIdle, newError(KindValidation, MsgSourceMissing, services.Wrap(services.ErrValidation, stage, op, "source handle released", nil)))
		return
	}

	m.retireWork()
	m.releaseModel()
	m.releaseViews()
	m.transition(StageViewsGenerating)

	epoch := m.epoch
	if !submit {
		m.startPolling(epoch)
		return
	}

	ctx := m.runCtx
	img := generator.Image{Name: blob.Name, MediaType: blob.MediaType, Data: blob.Data}
	scheduler.Go(m.sched, func() error {
		return m.svc.SubmitViewGeneration(ctx, img)
	}, func(err error) {
		m.onSubmitted(epoch, err)
	})
}

func (m *Machine) onSubmitted(epoch uint64, err error) {
	if m.stale(epoch, "submit views") {
		return
	}
	if err != nil {
		m.fail(StageSourceSelected, newError(KindSubmission, MsgSubmitFailed, err))
		return
	}
	m.logger.Info("source image accepted", logging.String(logging.FieldEventType, "views_submitted"))
	m.startPolling(epoch)
}

func (m *Machine) startPolling(epoch uint64) {
	session := m.polls.Start(m.runCtx, m.checkViews, polling.Options{
		Interval: m.opts.PollInterval,
		Timeout:  m.opts.PollTimeout,
		OnPending: func(checks int) {
			if epoch != m.epoch {
				return
			}
			m.checks = checks
			m.publish()
		},
	}, func(out polling.Outcome[resolvedViews]) {
		m.onViewsPolled(epoch, out)
	})
	m.logger.Debug("polling for views",
		logging.Uint64(logging.FieldSessionID, session.ID()),
		logging.String(logging.FieldEventType, "views_polling"),
	)
	m.publish()
}

// checkViews runs off the scheduler. A complete status is only reported once
// every reference has been resolved, so resolution failures surface as check
// failures.
func (m *Machine) checkViews(ctx context.Context) (polling.Result[resolvedViews], error) {
	status, err := m.svc.CheckViewGenerationStatus(ctx)
	if err != nil {
		return polling.Result[resolvedViews]{}, err
	}
	if !status.Complete {
		return polling.Pending[resolvedViews](), nil
	}
	if len(status.Views) == 0 {
		return polling.Result[resolvedViews]{}, services.Wrap(services.ErrTransport, StageViewsGenerating.String(), "resolve views", "service reported completion without views", nil)
	}
	views := make(resolvedViews, len(status.Views))
	for _, id := range generator.ViewIDs() {
		ref, ok := status.Views[id]
		if !ok {
			continue
		}
		asset, err := m.svc.Resolve(ctx, ref)
		if err != nil {
			return polling.Result[resolvedViews]{}, err
		}
		views[id] = resolvedView{ref: ref, asset: asset}
	}
	return polling.Done(views), nil
}

func (m *Machine) onViewsPolled(epoch uint64, out polling.Outcome[resolvedViews]) {
	if m.stale(epoch, "poll views") {
		return
	}
	switch out.Kind {
	case polling.OutcomeTimeout:
		m.fail(StageSourceSelected, newError(KindTimeout, MsgViewsTimeout, out.Err))
		return
	case polling.OutcomeFailed:
		m.fail(StageSourceSelected, newError(KindTransport, MsgViewsFailed, out.Err))
		return
	}

	scope := m.res.NewScope("views")
	views := make(map[generator.ViewID]Asset, len(out.Value))
	for _, id := range generator.ViewIDs() {
		view, ok := out.Value[id]
		if !ok {
			continue
		}
		mediaType := view.asset.MediaType
		if mediaType == "" {
			mediaType = detectMediaType(view.asset.Data)
		}
		handle, err := scope.Allocate(resources.Blob{Name: string(id), MediaType: mediaType, Data: view.asset.Data})
		if err != nil {
			scope.Release()
			m.fail(StageSourceSelected, newError(KindTransport, MsgViewsFailed, services.Wrap(services.ErrTransport, StageViewsGenerating.String(), "store view", string(id), err)))
			return
		}
		views[id] = Asset{Name: string(id), Ref: view.ref, MediaType: mediaType, Size: len(view.asset.Data), Handle: handle}
	}
	m.viewScope = scope
	m.views = views
	m.checks = out.Checks
	m.logger.Info("views ready",
		logging.Int("views", len(views)),
		logging.Int("checks", out.Checks),
		logging.String(logging.FieldEventType, "views_ready"),
	)
	m.transition(StageViewsReady)
}

func detectMediaType(data []byte) string {
	return http.DetectContentType(data)
}
