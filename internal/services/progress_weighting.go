package services

import "strings"

// Stage is one step of the six-stage analysis run, in execution order.
type Stage int

const (
	StagePreprocessing Stage = iota + 1
	StageExtractingVerbatims
	StageMappingQuestions
	StageEmergentTopics
	StageStrategicAnalysis
	StageGeneratingReports
)

// Stages lists every stage in the order the pipeline runs them.
var Stages = []Stage{
	StagePreprocessing,
	StageExtractingVerbatims,
	StageMappingQuestions,
	StageEmergentTopics,
	StageStrategicAnalysis,
	StageGeneratingReports,
}

const (
	StepQueued     = "Queued"
	StepRestarting = "Restarting"
	StepCompleted  = "Completed"
)

var stageLabels = map[Stage]string{
	StagePreprocessing:       "Preprocessing discussion guide",
	StageExtractingVerbatims: "Extracting verbatims",
	StageMappingQuestions:    "Mapping verbatims to questions",
	StageEmergentTopics:      "Identifying emergent topics",
	StageStrategicAnalysis:   "Running strategic analysis",
	StageGeneratingReports:   "Generating reports",
}

// Label is the human-readable current_step written while the stage runs.
func (s Stage) Label() string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return "Unknown stage"
}

func (s Stage) String() string {
	return strings.ToLower(strings.ReplaceAll(s.Label(), " ", "_"))
}

// StageContext tells a weighting how far into a stage the run is. Done == Total
// means the stage finished.
type StageContext struct {
	Done  int
	Total int
}

func (sc StageContext) finished() bool {
	return sc.Total <= 0 || sc.Done >= sc.Total
}

// ProgressWeighting maps a stage position onto the 0..100 progress scale.
type ProgressWeighting interface {
	StageWeight(stage Stage, sc StageContext) int
}

var fixedStageWeights = map[Stage]int{
	StagePreprocessing:       10,
	StageExtractingVerbatims: 25,
	StageMappingQuestions:    50,
	StageEmergentTopics:      70,
	StageStrategicAnalysis:   85,
	StageGeneratingReports:   95,
}

// FixedWeights reports only stage completions. Partial positions return the
// previous stage's weight, so reporting them never moves progress.
type FixedWeights struct{}

func (FixedWeights) StageWeight(stage Stage, sc StageContext) int {
	if sc.finished() {
		return fixedStageWeights[stage]
	}
	return previousWeight(stage)
}

// VolumeWeights interpolates inside the stages whose cost scales with item
// count (extraction and mapping). Every other stage behaves like FixedWeights.
type VolumeWeights struct{}

func (VolumeWeights) StageWeight(stage Stage, sc StageContext) int {
	end := fixedStageWeights[stage]
	if sc.finished() {
		return end
	}
	start := previousWeight(stage)
	switch stage {
	case StageExtractingVerbatims, StageMappingQuestions:
		done := sc.Done
		if done < 0 {
			done = 0
		}
		return start + (end-start)*done/sc.Total
	default:
		return start
	}
}

func previousWeight(stage Stage) int {
	if stage <= StagePreprocessing {
		return 0
	}
	return fixedStageWeights[stage-1]
}

// WeightingByName resolves the configured weighting; unknown names fall back
// to FixedWeights.
func WeightingByName(name string) ProgressWeighting {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "volume":
		return VolumeWeights{}
	default:
		return FixedWeights{}
	}
}

// EstimateRemaining is a linear estimate of seconds left at the given progress,
// clamped to [0, base].
func EstimateRemaining(progress, base int) int {
	if base <= 0 {
		return 0
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	out := base * (100 - progress) / 100
	if out < 0 {
		return 0
	}
	if out > base {
		return base
	}
	return out
}
