package agent

import (
	"context"
	"fmt"

	"github.com/harrison/maestro/internal/models"
)

// Context keys the test automator consults. Test runners publish per-suite
// totals and failure counts here; suites without published numbers use the
// reference totals with zero failures.
const (
	KeyTestTotals   = "test_totals"   // map[suite]test count
	KeyTestFailures = "test_failures" // map[suite]failed count
)

// Pass-rate thresholds deciding the terminal status.
const (
	testPassRateClean   = 95.0
	testPassRateWarning = 80.0
)

// SuiteResult records one test suite's outcome inside the agent metrics.
type SuiteResult struct {
	Suite   string `json:"suite"`
	Total   int    `json:"total"`
	Passed  int    `json:"passed"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
}

// TestAutomator runs the standard suites and fails the deployment when the
// overall pass rate drops below the warning threshold.
type TestAutomator struct {
	baseAgent
	suites        []string
	defaultTotals map[string]int
}

// NewTestAutomator creates the test automation agent.
func NewTestAutomator(log Logger) *TestAutomator {
	return &TestAutomator{
		baseAgent: baseAgent{name: NameTestAutomator, category: "testing", log: log},
		suites: []string{
			"unit_tests",
			"integration_tests",
			"api_tests",
			"load_tests",
			"security_tests",
			"regression_tests",
			"smoke_tests",
			"e2e_tests",
		},
		defaultTotals: map[string]int{
			"unit_tests":        200,
			"integration_tests": 120,
			"api_tests":         80,
			"load_tests":        40,
			"security_tests":    60,
			"regression_tests":  150,
			"smoke_tests":       25,
			"e2e_tests":         50,
		},
	}
}

// Validate reports readiness for test execution.
func (a *TestAutomator) Validate() bool {
	a.infof("validating test automator readiness")
	return true
}

// Execute runs every suite, aggregates the overall pass rate, and maps it to
// a terminal status: >=95% clean pass, >=80% pass with warning, below that a
// failure.
func (a *TestAutomator) Execute(ctx context.Context, deployCtx models.Context) *models.Result {
	result := models.NewResult(a.name)
	defer a.finish(result)()

	a.infof("starting automated testing")

	var total, passed, failed int
	for _, suite := range a.suites {
		if err := ctx.Err(); err != nil {
			result.Fail(fmt.Sprintf("testing interrupted: %v", err))
			return result
		}

		a.debugf("running %s", suite)
		suiteResult := a.runSuite(suite, deployCtx)
		result.Metrics[suite] = suiteResult

		total += suiteResult.Total
		passed += suiteResult.Passed
		failed += suiteResult.Failed

		if suiteResult.Failed > 0 {
			result.Warn(fmt.Sprintf("%s: %d tests failed", suite, suiteResult.Failed))
		}
	}

	passRate := 0.0
	if total > 0 {
		passRate = float64(passed) / float64(total) * 100
	}
	result.Metrics["overall"] = map[string]any{
		"total":     total,
		"passed":    passed,
		"failed":    failed,
		"pass_rate": passRate,
	}

	switch {
	case passRate >= testPassRateClean:
		result.Status = models.StatusPassed
		a.infof("testing passed with %.2f%% success rate", passRate)
	case passRate >= testPassRateWarning:
		result.Status = models.StatusPassed
		result.Warn(fmt.Sprintf("testing passed with warnings: %.2f%% success rate", passRate))
	default:
		result.Fail(fmt.Sprintf("testing failed: %.2f%% success rate", passRate))
	}

	return result
}

// runSuite builds one suite's result from published totals and failures.
func (a *TestAutomator) runSuite(suite string, deployCtx models.Context) SuiteResult {
	total := a.defaultTotals[suite]
	if published := contextCount(deployCtx, KeyTestTotals, suite); published > 0 {
		total = published
	}
	failed := contextCount(deployCtx, KeyTestFailures, suite)
	if failed > total {
		failed = total
	}

	return SuiteResult{
		Suite:  suite,
		Total:  total,
		Passed: total - failed,
		Failed: failed,
	}
}

// Rollback restores the test environment.
func (a *TestAutomator) Rollback(ctx context.Context, rollbackData map[string]any) bool {
	a.infof("rolling back test environment")
	return true
}
