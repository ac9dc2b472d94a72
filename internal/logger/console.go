// Package logger provides logging implementations for Maestro deployments.
//
// The logger package offers structured logging of deployment progress at the
// agent and summary levels. Implementations are thread-safe and support
// various output destinations (console, file, etc.).
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/maestro/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs deployment progress to a writer with timestamps and
// thread safety. All output is prefixed with [HH:MM:SS] timestamps for
// tracking execution flow. It supports log level filtering to control
// message verbosity. Color output is automatically enabled for terminal
// output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// logLevel determines the minimum log level for messages to be output.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
// Returns true for os.Stdout and os.Stderr when they are TTYs.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if f != os.Stdout && f != os.Stderr {
		return false
	}
	if color.NoColor {
		// Honors NO_COLOR and related conventions.
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[normalized] {
		return normalized
	}

	return "info" // Default level
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo // Default to info if unknown
	}
}

// Tracef logs a formatted trace-level message (most verbose).
// Format: "[HH:MM:SS] [TRACE] <message>"
func (cl *ConsoleLogger) Tracef(format string, args ...any) {
	cl.logWithLevel("TRACE", fmt.Sprintf(format, args...))
}

// Debugf logs a formatted debug-level message.
// Format: "[HH:MM:SS] [DEBUG] <message>"
func (cl *ConsoleLogger) Debugf(format string, args ...any) {
	cl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

// Infof logs a formatted info-level message.
// Format: "[HH:MM:SS] [INFO] <message>"
func (cl *ConsoleLogger) Infof(format string, args ...any) {
	cl.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

// Warnf logs a formatted warning-level message.
// Format: "[HH:MM:SS] [WARN] <message>"
func (cl *ConsoleLogger) Warnf(format string, args ...any) {
	cl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error-level message.
// Format: "[HH:MM:SS] [ERROR] <message>"
func (cl *ConsoleLogger) Errorf(format string, args ...any) {
	cl.logWithLevel("ERROR", fmt.Sprintf(format, args...))
}

// logWithLevel is a helper that logs a message at the specified level if filtering allows it.
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil {
		return
	}

	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var formatted string

	if cl.colorOutput {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, cl.colorLevel(level), message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)
	}

	cl.writer.Write([]byte(formatted))
}

// colorLevel formats a level label with ANSI color codes.
func (cl *ConsoleLogger) colorLevel(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	default:
		return level
	}
}

// LogAgentStart logs the start of an agent execution at INFO level.
// Format: "[HH:MM:SS] Starting <agent>"
func (cl *ConsoleLogger) LogAgentStart(name string) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	if cl.colorOutput {
		name = color.New(color.Bold).Sprint(name)
	}
	fmt.Fprintf(cl.writer, "[%s] Starting %s\n", ts, name)
}

// LogAgentComplete logs a passed agent execution at INFO level.
// Format: "[HH:MM:SS] <agent> passed (<duration>)"
func (cl *ConsoleLogger) LogAgentComplete(result *models.Result) {
	if cl.writer == nil || !cl.shouldLog("info") || result == nil {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	durationStr := formatDuration(result.Duration())

	if cl.colorOutput {
		name := color.New(color.Bold).Sprint(result.Agent)
		passed := color.New(color.FgGreen).Sprint("passed")
		fmt.Fprintf(cl.writer, "[%s] %s %s (%s)\n", ts, name, passed, durationStr)
	} else {
		fmt.Fprintf(cl.writer, "[%s] %s passed (%s)\n", ts, result.Agent, durationStr)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(cl.writer, "[%s]   warning: %s\n", ts, w)
	}
}

// LogAgentFail logs a failed agent execution at ERROR level.
// Format: "[HH:MM:SS] <agent> FAILED: <first error>"
func (cl *ConsoleLogger) LogAgentFail(result *models.Result) {
	if cl.writer == nil || !cl.shouldLog("error") || result == nil {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	reason := "unknown failure"
	if len(result.Errors) > 0 {
		reason = result.Errors[0]
	}

	if cl.colorOutput {
		name := color.New(color.Bold).Sprint(result.Agent)
		failed := color.New(color.FgRed).Sprint("FAILED")
		fmt.Fprintf(cl.writer, "[%s] %s %s: %s\n", ts, name, failed, reason)
	} else {
		fmt.Fprintf(cl.writer, "[%s] %s FAILED: %s\n", ts, result.Agent, reason)
	}
}

// LogRollback logs the outcome of a single agent rollback at INFO level.
// Format: "[HH:MM:SS] Rollback <agent>: ok|failed"
func (cl *ConsoleLogger) LogRollback(agentName string, success bool) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	outcome := "ok"
	if !success {
		outcome = "failed"
	}

	if cl.colorOutput {
		if success {
			outcome = color.New(color.FgGreen).Sprint(outcome)
		} else {
			outcome = color.New(color.FgRed).Sprint(outcome)
		}
	}
	fmt.Fprintf(cl.writer, "[%s] Rollback %s: %s\n", ts, agentName, outcome)
}

// LogSummary logs the deployment summary with completion statistics at INFO level.
func (cl *ConsoleLogger) LogSummary(report *models.Report) {
	if cl.writer == nil || !cl.shouldLog("info") || report == nil {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	duration := time.Duration(report.DurationSeconds * float64(time.Second))

	var output string
	if cl.colorOutput {
		header := color.New(color.Bold).Sprint("=== Deployment Summary ===")
		output = fmt.Sprintf("[%s] %s\n", ts, header)
		output += fmt.Sprintf("[%s] Deployment: %s\n", ts, report.DeploymentID)

		statusText := report.Status
		switch report.Status {
		case models.DeploymentSuccess:
			statusText = color.New(color.FgGreen).Sprint(report.Status)
		case models.DeploymentFailed:
			statusText = color.New(color.FgRed).Sprint(report.Status)
		case models.DeploymentRolledBack:
			statusText = color.New(color.FgYellow).Sprint(report.Status)
		}
		output += fmt.Sprintf("[%s] Status: %s\n", ts, statusText)
		output += fmt.Sprintf("[%s] Agents: %d/%d passed (%.1f%%)\n", ts,
			report.MetricsSummary.SuccessfulAgents, report.MetricsSummary.TotalAgents,
			report.MetricsSummary.SuccessRate)
		output += fmt.Sprintf("[%s] Duration: %s\n", ts, formatDuration(duration))

		if len(report.RollbackLog) > 0 {
			rolledBack := color.New(color.FgYellow).Sprint("Rolled back:")
			output += fmt.Sprintf("[%s] %s\n", ts, rolledBack)
			for _, entry := range report.RollbackLog {
				outcome := "ok"
				if !entry.Success {
					outcome = color.New(color.FgRed).Sprint("failed")
				}
				output += fmt.Sprintf("[%s]   - %s: %s\n", ts, entry.Agent, outcome)
			}
		}
		if len(report.Errors) > 0 {
			errHeader := color.New(color.FgRed).Sprint("Errors:")
			output += fmt.Sprintf("[%s] %s\n", ts, errHeader)
			for _, e := range report.Errors {
				output += fmt.Sprintf("[%s]   - %s\n", ts, e)
			}
		}
	} else {
		output = fmt.Sprintf("[%s] === Deployment Summary ===\n", ts)
		output += fmt.Sprintf("[%s] Deployment: %s\n", ts, report.DeploymentID)
		output += fmt.Sprintf("[%s] Status: %s\n", ts, report.Status)
		output += fmt.Sprintf("[%s] Agents: %d/%d passed (%.1f%%)\n", ts,
			report.MetricsSummary.SuccessfulAgents, report.MetricsSummary.TotalAgents,
			report.MetricsSummary.SuccessRate)
		output += fmt.Sprintf("[%s] Duration: %s\n", ts, formatDuration(duration))

		if len(report.RollbackLog) > 0 {
			output += fmt.Sprintf("[%s] Rolled back:\n", ts)
			for _, entry := range report.RollbackLog {
				outcome := "ok"
				if !entry.Success {
					outcome = "failed"
				}
				output += fmt.Sprintf("[%s]   - %s: %s\n", ts, entry.Agent, outcome)
			}
		}
		if len(report.Errors) > 0 {
			output += fmt.Sprintf("[%s] Errors:\n", ts)
			for _, e := range report.Errors {
				output += fmt.Sprintf("[%s]   - %s\n", ts, e)
			}
		}
	}

	cl.writer.Write([]byte(output))
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}
