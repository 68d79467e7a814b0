package workflow

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"banana3d/internal/resources"
	"banana3d/internal/services/generator"
)

// Asset describes a locally held blob: where it came from and the handle
// that owns its bytes.
type Asset struct {
	Name      string
	Ref       string
	MediaType string
	Size      int
	Handle    resources.Handle
}

// Snapshot is an immutable view of the machine after a transition.
type Snapshot struct {
	Version   uint64
	RunID     string
	Stage     Stage
	Error     *Error
	Source    *Asset
	Views     map[generator.ViewID]Asset
	Model     *Asset
	Session   uint64
	Checks    int
	UpdatedAt time.Time
}

// View returns the asset for id, if populated.
func (s Snapshot) View(id generator.ViewID) (Asset, bool) {
	asset, ok := s.Views[id]
	return asset, ok
}

// Terminal reports whether no remote work is outstanding.
func (s Snapshot) Terminal() bool {
	return !s.Stage.Busy()
}

// Validate checks the structural invariants every published snapshot holds.
func (s Snapshot) Validate() error {
	var errs []error
	if s.Stage == StageIdle && s.Source != nil {
		errs = append(errs, errors.New("idle snapshot holds a source"))
	}
	if s.Stage != StageIdle && s.Source == nil {
		errs = append(errs, fmt.Errorf("%s snapshot has no source", s.Stage))
	}
	if len(s.Views) > 0 && !s.Stage.HoldsViews() {
		errs = append(errs, fmt.Errorf("%s snapshot holds %d views", s.Stage, len(s.Views)))
	}
	if s.Stage.HoldsViews() && len(s.Views) == 0 {
		errs = append(errs, fmt.Errorf("%s snapshot has no views", s.Stage))
	}
	if (s.Model != nil) != (s.Stage == StageModelReady) {
		errs = append(errs, fmt.Errorf("%s snapshot model presence is %v", s.Stage, s.Model != nil))
	}
	if s.Session != 0 && s.Stage != StageViewsGenerating {
		errs = append(errs, fmt.Errorf("%s snapshot has polling session %d", s.Stage, s.Session))
	}
	return errors.Join(errs...)
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Views = maps.Clone(s.Views)
	if s.Source != nil {
		src := *s.Source
		out.Source = &src
	}
	if s.Model != nil {
		model := *s.Model
		out.Model = &model
	}
	return out
}
