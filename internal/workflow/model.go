package workflow

import (
	"path"
	"strings"

	"banana3d/internal/logging"
	"banana3d/internal/resources"
	"banana3d/internal/scheduler"
	"banana3d/internal/services"
	"banana3d/internal/services/generator"
)

type modelResult struct {
	url   string
	asset generator.Asset
	err   error
}

func (m *Machine) generateModel() {
	if m.closed {
		return
	}
	if m.stage != StageViewsReady {
		m.reject(newError(KindValidation, MsgViewsNotReady, services.Wrap(services.ErrValidation, m.stage.String(), "generate model", "views are not ready", nil)))
		return
	}

	m.retireWork()
	m.releaseModel()
	m.transition(StageModelGenerating)

	epoch := m.epoch
	ctx := m.runCtx
	m.modelDeadline = m.sched.AfterFunc(m.opts.ModelTimeout, func() {
		m.onModelDeadline(epoch)
	})
	scheduler.Go(m.sched, func() modelResult {
		result, err := m.svc.RequestModelGeneration(ctx)
		if err != nil {
			return modelResult{err: err}
		}
		asset, err := m.svc.Resolve(ctx, result.URL)
		return modelResult{url: result.URL, asset: asset, err: err}
	}, func(r modelResult) {
		m.onModelResolved(epoch, r)
	})
}

func (m *Machine) onModelResolved(epoch uint64, r modelResult) {
	if m.stale(epoch, "generate model") {
		return
	}
	if r.err != nil {
		kind := kindOf(r.err, KindTransport)
		message := MsgModelFailed
		if kind == KindTimeout {
			message = MsgModelTimeout
		} else {
			kind = KindTransport
		}
		m.fail(StageViewsReady, newError(kind, message, r.err))
		return
	}

	if m.modelDeadline != nil {
		m.modelDeadline.Stop()
		m.modelDeadline = nil
	}
	mediaType := r.asset.MediaType
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = "model/gltf-binary"
	}
	name := modelName(r.url)
	scope := m.res.NewScope("model")
	handle, err := scope.Allocate(resources.Blob{Name: name, MediaType: mediaType, Data: r.asset.Data})
	if err != nil {
		scope.Release()
		m.fail(StageViewsReady, newError(KindTransport, MsgModelFailed, services.Wrap(services.ErrTransport, StageModelGenerating.String(), "store model", "allocate handle", err)))
		return
	}
	m.modelScope = scope
	m.model = &Asset{Name: name, Ref: r.url, MediaType: mediaType, Size: len(r.asset.Data), Handle: handle}
	m.logger.Info("model ready",
		logging.String("model_url", r.url),
		logging.Int("bytes", len(r.asset.Data)),
		logging.String(logging.FieldEventType, "model_ready"),
	)
	m.transition(StageModelReady)
}

func (m *Machine) onModelDeadline(epoch uint64) {
	if m.stale(epoch, "model deadline") {
		return
	}
	m.modelDeadline = nil
	err := services.Wrap(services.ErrTimeout, StageModelGenerating.String(), "generate model", "no model within "+m.opts.ModelTimeout.String(), nil)
	m.fail(StageViewsReady, newError(KindTimeout, MsgModelTimeout, err))
}

func modelName(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		return "model.glb"
	}
	base := path.Base(strings.SplitN(ref, "?", 2)[0])
	if base == "" || base == "." || base == "/" || path.Ext(base) == "" {
		return "model.glb"
	}
	return base
}
