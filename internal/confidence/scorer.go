// Package confidence scores deployment readiness from weighted factors.
package confidence

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harrison/maestro/internal/models"
)

// Factor names of the scoring model.
const (
	FactorCodeQuality         = "code_quality"
	FactorTestCoverage        = "test_coverage"
	FactorHistoricalSuccess   = "historical_success"
	FactorTiming              = "timing_appropriateness"
	FactorTeamReadiness       = "team_readiness"
	FactorSystemHealth        = "system_health"
	FactorDependencyStability = "dependency_stability"
	FactorRollbackCapability  = "rollback_capability"
)

// Context keys the scorer reads from a deployment context snapshot.
const (
	KeyLintingPassed      = "linting_passed"
	KeyTypeCheckingPassed = "type_checking_passed"
	KeyCodeReviewApproved = "code_review_approved"
	KeyTestPassRate       = "test_pass_rate"
	KeyRecentSuccessRate  = "recent_success_rate"
	KeyRollbackEnabled    = "rollback_enabled"
)

// Assessment is the outcome of a confidence calculation.
type Assessment struct {
	OverallConfidence float64            `json:"overall_confidence"`
	Factors           map[string]float64 `json:"factors"`
	Recommendation    string             `json:"recommendation"`
	RiskAreas         []string           `json:"risk_areas"`
}

// Scorer computes a weighted multi-factor confidence score for a deployment.
// The zero value is not usable; construct with NewScorer.
type Scorer struct {
	weights map[string]float64

	// Now supplies the clock for the timing factor. Tests override it.
	Now func() time.Time
}

// NewScorer creates a Scorer with the standard weight table.
func NewScorer() *Scorer {
	return &Scorer{
		weights: map[string]float64{
			FactorCodeQuality:         0.20,
			FactorTestCoverage:        0.20,
			FactorHistoricalSuccess:   0.15,
			FactorTiming:              0.10,
			FactorTeamReadiness:       0.10,
			FactorSystemHealth:        0.10,
			FactorDependencyStability: 0.10,
			FactorRollbackCapability:  0.05,
		},
		Now: time.Now,
	}
}

// Calculate computes the factor scores, weighted total, recommendation and
// risk areas for the given deployment context snapshot.
func (s *Scorer) Calculate(deployCtx models.Context) *Assessment {
	if deployCtx == nil {
		deployCtx = models.Context{}
	}

	factors := map[string]float64{
		FactorCodeQuality:       s.assessCodeQuality(deployCtx),
		FactorTestCoverage:      deployCtx.Float(KeyTestPassRate, 0.95),
		FactorHistoricalSuccess: deployCtx.Float(KeyRecentSuccessRate, 0.95),
		FactorTiming:            s.assessTiming(s.Now()),
		// Fixed until real on-call, monitoring and dependency feeds exist.
		FactorTeamReadiness:       0.90,
		FactorSystemHealth:        0.95,
		FactorDependencyStability: 0.95,
		FactorRollbackCapability:  rollbackCapability(deployCtx),
	}

	var overall float64
	for name, score := range factors {
		overall += score * s.weights[name]
	}

	return &Assessment{
		OverallConfidence: overall,
		Factors:           factors,
		Recommendation:    recommendation(overall),
		RiskAreas:         riskAreas(factors),
	}
}

// assessCodeQuality starts from a 0.85 baseline and credits each quality
// gate that passed, capped at 1.0.
func (s *Scorer) assessCodeQuality(deployCtx models.Context) float64 {
	quality := 0.85
	if deployCtx.Bool(KeyLintingPassed, true) {
		quality += 0.05
	}
	if deployCtx.Bool(KeyTypeCheckingPassed, true) {
		quality += 0.05
	}
	if deployCtx.Bool(KeyCodeReviewApproved, true) {
		quality += 0.05
	}
	if quality > 1.0 {
		quality = 1.0
	}
	return quality
}

// assessTiming scores how appropriate the given moment is for deploying.
// Tuesday through Thursday mid-day is ideal; Friday afternoons and weekends
// are penalized.
func (s *Scorer) assessTiming(now time.Time) float64 {
	day := now.Weekday()
	hour := now.Hour()

	switch {
	case (day == time.Tuesday || day == time.Wednesday || day == time.Thursday) && hour >= 10 && hour <= 15:
		return 1.0
	case day == time.Friday && hour >= 15:
		return 0.4
	case day >= time.Monday && day <= time.Friday && hour >= 9 && hour <= 17:
		return 0.8
	case day == time.Saturday || day == time.Sunday:
		return 0.3
	default:
		return 0.5
	}
}

func rollbackCapability(deployCtx models.Context) float64 {
	if deployCtx.Bool(KeyRollbackEnabled, false) {
		return 1.0
	}
	return 0.5
}

// recommendation maps an overall score onto the five-tier advice scale.
func recommendation(score float64) string {
	switch {
	case score >= 0.90:
		return "highly confident"
	case score >= 0.75:
		return "good confidence"
	case score >= 0.60:
		return "moderate confidence, consider more testing"
	case score >= 0.40:
		return "low confidence, risks identified"
	default:
		return "do not proceed"
	}
}

// riskAreas tags every factor below 0.8 as a medium or high risk, in stable
// factor-name order.
func riskAreas(factors map[string]float64) []string {
	names := make([]string, 0, len(factors))
	for name := range factors {
		names = append(names, name)
	}
	sort.Strings(names)

	var risks []string
	for _, name := range names {
		score := factors[name]
		switch {
		case score < 0.6:
			risks = append(risks, fmt.Sprintf("high risk: %s (%.0f%%)", name, score*100))
		case score < 0.8:
			risks = append(risks, fmt.Sprintf("medium risk: %s (%.0f%%)", name, score*100))
		}
	}
	return risks
}

// Meter renders a plain-text confidence meter, factors sorted by score
// descending with name ties broken alphabetically.
func (a *Assessment) Meter() string {
	type entry struct {
		name  string
		score float64
	}
	entries := make([]entry, 0, len(a.Factors))
	for name, score := range a.Factors {
		entries = append(entries, entry{name, score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].name < entries[j].name
	})

	var b strings.Builder
	b.WriteString("Deployment Confidence Meter:\n")
	b.WriteString(strings.Repeat("-", 50) + "\n")
	for _, e := range entries {
		filled := int(e.score * 20)
		if filled > 20 {
			filled = 20
		}
		bar := strings.Repeat("#", filled) + strings.Repeat(".", 20-filled)
		fmt.Fprintf(&b, "%-22s [%s] %3.0f%%\n", e.name, bar, e.score*100)
	}
	b.WriteString(strings.Repeat("-", 50))
	return b.String()
}
