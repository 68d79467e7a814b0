package workflow

import "fmt"

// Stage is the single active position of the workflow.
type Stage int

const (
	StageIdle Stage = iota
	StageSourceSelected
	StageViewsGenerating
	StageViewsReady
	StageModelGenerating
	StageModelReady
)

var stageNames = map[Stage]string{
	StageIdle:            "idle",
	StageSourceSelected:  "source_selected",
	StageViewsGenerating: "views_generating",
	StageViewsReady:      "views_ready",
	StageModelGenerating: "model_generating",
	StageModelReady:      "model_ready",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Stages lists every stage in workflow order.
func Stages() []Stage {
	return []Stage{
		StageIdle,
		StageSourceSelected,
		StageViewsGenerating,
		StageViewsReady,
		StageModelGenerating,
		StageModelReady,
	}
}

// HoldsViews reports whether generated views may be populated in this stage.
func (s Stage) HoldsViews() bool {
	switch s {
	case StageViewsReady, StageModelGenerating, StageModelReady:
		return true
	default:
		return false
	}
}

// Busy reports whether remote work is outstanding.
func (s Stage) Busy() bool {
	return s == StageViewsGenerating || s == StageModelGenerating
}
