// Package score evaluates red vs. blue engine runs from their exported
// metrics documents. Scoring is pure arithmetic over the session counters;
// the weights and baselines are tunable, the formulas are not.
package score

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/adversim/warden/internal/metrics"
)

// Normalization baselines.
const (
	maxTimeSeconds = 600.0
	maxCommands    = 50.0
	maxIterations  = 30.0
)

// RedWeights distributes the red team's 100 points across its criteria.
type RedWeights struct {
	TimeToAccess float64 `json:"time_to_access"`
	TimeToRoot   float64 `json:"time_to_root"`
	Efficiency   float64 `json:"efficiency"`
	Stealth      float64 `json:"stealth"`
	Objectives   float64 `json:"objectives"`
}

// BlueWeights distributes the blue team's 100 points across its criteria.
type BlueWeights struct {
	DetectionSpeed float64 `json:"detection_speed"`
	PatchCoverage  float64 `json:"patch_coverage"`
	PatchQuality   float64 `json:"patch_quality"`
	Accuracy       float64 `json:"accuracy"`
	Hardening      float64 `json:"hardening"`
}

// Weights is the full scoring configuration.
type Weights struct {
	Red  RedWeights  `json:"red"`
	Blue BlueWeights `json:"blue"`
}

// DefaultWeights returns the standard competition weighting.
func DefaultWeights() Weights {
	return Weights{
		Red: RedWeights{
			TimeToAccess: 25,
			TimeToRoot:   25,
			Efficiency:   20,
			Stealth:      15,
			Objectives:   15,
		},
		Blue: BlueWeights{
			DetectionSpeed: 25,
			PatchCoverage:  25,
			PatchQuality:   20,
			Accuracy:       15,
			Hardening:      15,
		},
	}
}

// RedScores holds the weighted red-team criterion scores.
type RedScores struct {
	TimeToAccess float64 `json:"time_to_access"`
	TimeToRoot   float64 `json:"time_to_root"`
	Efficiency   float64 `json:"efficiency"`
	Stealth      float64 `json:"stealth"`
	Objectives   float64 `json:"objectives"`
	Total        float64 `json:"total"`
	MaxPossible  float64 `json:"max_possible"`
}

// BlueScores holds the weighted blue-team criterion scores.
type BlueScores struct {
	DetectionSpeed float64 `json:"detection_speed"`
	PatchCoverage  float64 `json:"patch_coverage"`
	PatchQuality   float64 `json:"patch_quality"`
	Accuracy       float64 `json:"accuracy"`
	Hardening      float64 `json:"hardening"`
	Total          float64 `json:"total"`
	MaxPossible    float64 `json:"max_possible"`
}

// RedReport and BlueReport pair a team's scores with its percentage.
type RedReport struct {
	Scores     RedScores `json:"scores"`
	Percentage float64   `json:"percentage"`
}

type BlueReport struct {
	Scores     BlueScores `json:"scores"`
	Percentage float64    `json:"percentage"`
}

// Result is the full competition outcome.
type Result struct {
	Red    RedReport  `json:"red_team"`
	Blue   BlueReport `json:"blue_team"`
	Winner string     `json:"winner"`
	Margin float64    `json:"margin"`
	Mode   string     `json:"competition_mode"`
}

// Scorer applies one weight configuration to metrics documents.
type Scorer struct {
	weights Weights
}

// NewScorer builds a scorer; a zero-valued weights argument selects the
// defaults.
func NewScorer(weights Weights) *Scorer {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Scorer{weights: weights}
}

// ScoreRed scores an offensive session. Time scores reward fast completion,
// efficiency rewards few commands, stealth rewards a clean success ratio.
func (s *Scorer) ScoreRed(m *metrics.Session) RedScores {
	w := s.weights.Red

	totalTime := m.EndTime - m.StartTime
	timeScore := 0.0
	if m.ObjectivesCompleted > 0 && totalTime > 0 {
		timeScore = math.Max(0, 1.0-totalTime/maxTimeSeconds)
	}

	efficiency := 0.0
	if m.CommandsExecuted > 0 {
		efficiency = math.Max(0, 1.0-float64(m.CommandsExecuted)/maxCommands)
	}

	stealth := 0.0
	attempts := m.CommandsSuccessful + m.CommandsFailed + m.CommandsBlocked
	if attempts > 0 {
		stealth = float64(m.CommandsSuccessful) / float64(attempts)
	}

	objRate := 0.0
	if total := m.ObjectivesCompleted + m.ObjectivesFailed; total > 0 {
		objRate = float64(m.ObjectivesCompleted) / float64(total)
	}

	scores := RedScores{
		TimeToAccess: round2(timeScore * w.TimeToAccess),
		TimeToRoot:   round2(timeScore * w.TimeToRoot),
		Efficiency:   round2(efficiency * w.Efficiency),
		Stealth:      round2(stealth * w.Stealth),
		Objectives:   round2(objRate * w.Objectives),
		MaxPossible:  w.TimeToAccess + w.TimeToRoot + w.Efficiency + w.Stealth + w.Objectives,
	}
	scores.Total = round2(scores.TimeToAccess + scores.TimeToRoot + scores.Efficiency + scores.Stealth + scores.Objectives)
	return scores
}

// ScoreBlue scores a defensive session: detection pace per vulnerability,
// patch coverage and validation quality, false-positive accuracy, and
// hardening cadence.
func (s *Scorer) ScoreBlue(m *metrics.Session) BlueScores {
	w := s.weights.Blue

	totalTime := m.EndTime - m.StartTime
	detectionSpeed := 0.0
	if m.VulnsDetected > 0 && totalTime > 0 {
		timePerVuln := totalTime / float64(m.VulnsDetected)
		detectionSpeed = math.Max(0, 1.0-timePerVuln/maxTimeSeconds)
	}

	coverage := 0.0
	if m.VulnsDetected > 0 {
		coverage = math.Min(1.0, float64(m.PatchesApplied)/float64(m.VulnsDetected))
	}

	quality := 0.0
	if m.PatchesGenerated > 0 {
		quality = float64(m.PatchesValidated) / float64(m.PatchesGenerated)
	}

	accuracy := 0.0
	if total := m.VulnsDetected + m.FalsePositives; total > 0 {
		accuracy = 1.0 - float64(m.FalsePositives)/float64(total)
	}

	iterations := m.TotalIterations
	if iterations < 1 {
		iterations = 1
	}
	hardeningRate := math.Min(1.0, float64(m.HardeningActions)/math.Max(1, float64(iterations)/3))

	scores := BlueScores{
		DetectionSpeed: round2(detectionSpeed * w.DetectionSpeed),
		PatchCoverage:  round2(coverage * w.PatchCoverage),
		PatchQuality:   round2(quality * w.PatchQuality),
		Accuracy:       round2(accuracy * w.Accuracy),
		Hardening:      round2(hardeningRate * w.Hardening),
		MaxPossible:    w.DetectionSpeed + w.PatchCoverage + w.PatchQuality + w.Accuracy + w.Hardening,
	}
	scores.Total = round2(scores.DetectionSpeed + scores.PatchCoverage + scores.PatchQuality + scores.Accuracy + scores.Hardening)
	return scores
}

// Compete scores both sides and determines the winner by percentage. Equal
// percentages are a draw with zero margin.
func (s *Scorer) Compete(red, blue *metrics.Session) Result {
	redScores := s.ScoreRed(red)
	blueScores := s.ScoreBlue(blue)

	redPct := 0.0
	if redScores.MaxPossible > 0 {
		redPct = redScores.Total / redScores.MaxPossible * 100
	}
	bluePct := 0.0
	if blueScores.MaxPossible > 0 {
		bluePct = blueScores.Total / blueScores.MaxPossible * 100
	}

	winner := "draw"
	margin := 0.0
	switch {
	case redPct > bluePct:
		winner = "red"
		margin = redPct - bluePct
	case bluePct > redPct:
		winner = "blue"
		margin = bluePct - redPct
	}

	return Result{
		Red:    RedReport{Scores: redScores, Percentage: round1(redPct)},
		Blue:   BlueReport{Scores: blueScores, Percentage: round1(bluePct)},
		Winner: winner,
		Margin: round1(margin),
		Mode:   "sequential",
	}
}

// LoadSession reads an exported metrics document. Unknown fields (the
// embedded findings and patch collections) are ignored.
func LoadSession(path string) (*metrics.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics file: %w", err)
	}
	var session metrics.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse metrics file %s: %w", path, err)
	}
	return &session, nil
}

// LoadWeights reads a weight-override file.
func LoadWeights(path string) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("failed to read weights file: %w", err)
	}
	var weights Weights
	if err := json.Unmarshal(data, &weights); err != nil {
		return Weights{}, fmt.Errorf("failed to parse weights file %s: %w", path, err)
	}
	return weights, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
