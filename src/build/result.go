package build

import "time"

// BuildResult captures the outcome of executing a list of plans.
type BuildResult struct {
	Steps    []StepResult
	Exports  []string // written archive paths
	Duration time.Duration
}

// StepResult captures the outcome of a single image build.
type StepResult struct {
	Name     string
	Status   string       // "success", "failed", "skipped"
	ImageID  string       // engine image ID
	Images   []string     // applied references
	Layers   []LayerEvent // parsed build layer events, buildx only
	Duration time.Duration
	Error    error
}
