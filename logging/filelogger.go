// Package logging keeps a per-run directory of test logs next to the console
// transcript.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-golden/types"
	"github.com/ethereum-optimism/infra/op-golden/ui"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	SummaryFilename    = "summary.log"
	AllLogsFilename    = "all.log"

	boxWidth = 71
)

// ResultSink is an interface for different ways of consuming test results
type ResultSink interface {
	// Consume processes a single test result
	Consume(result *types.TestResult, runID string) error
	// Complete is called when all results have been consumed
	Complete(runID string) error
}

// FileLogger writes the results of one run below <baseDir>/testrun-<runID>
type FileLogger struct {
	baseDir   string
	logDir    string
	failedDir string
	passedDir string
	runID     string

	mu    sync.Mutex
	files map[string]*os.File
	sinks []ResultSink
}

// NewFileLogger creates the run directory and the default sinks
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	l := &FileLogger{
		baseDir:   baseDir,
		logDir:    logDir,
		failedDir: filepath.Join(logDir, "failed"),
		passedDir: filepath.Join(logDir, "passed"),
		runID:     runID,
		files:     make(map[string]*os.File),
	}
	for _, dir := range []string{l.logDir, l.failedDir, l.passedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	l.sinks = []ResultSink{
		&AllLogsFileSink{logger: l},
		&PerTestFileSink{logger: l, seen: make(map[string]int)},
	}
	return l, nil
}

// LogTestResult feeds a test result to every sink
func (l *FileLogger) LogTestResult(result *types.TestResult) error {
	for _, sink := range l.sinks {
		if err := sink.Consume(result, l.runID); err != nil {
			return fmt.Errorf("error in sink: %w", err)
		}
	}
	return nil
}

// LogSummary appends text to the summary file of the run
func (l *FileLogger) LogSummary(summary string) error {
	return l.appendTo(filepath.Join(l.logDir, SummaryFilename), summary)
}

// Complete finalizes all sinks and closes all open files
func (l *FileLogger) Complete() error {
	var errs []string
	for _, sink := range l.sinks {
		if err := sink.Complete(l.runID); err != nil {
			errs = append(errs, err.Error())
		}
	}

	l.mu.Lock()
	for path, f := range l.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		delete(l.files, path)
	}
	l.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("error completing run log: %s", strings.Join(errs, "; "))
	}
	return nil
}

// GetDirectory returns the run directory
func (l *FileLogger) GetDirectory() string {
	return l.logDir
}

// GetFailedDir returns the directory holding logs of failed tests
func (l *FileLogger) GetFailedDir() string {
	return l.failedDir
}

// GetPassedDir returns the directory holding logs of passed tests
func (l *FileLogger) GetPassedDir() string {
	return l.passedDir
}

func (l *FileLogger) appendTo(path, content string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.files[path]
	if !ok {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		l.files[path] = f
	}
	_, err := f.WriteString(content)
	return err
}

// safeFilename converts a test ID into a single path element
func safeFilename(s string) string {
	r := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	return r.Replace(s)
}

// formatResult renders one result as a readable block
func formatResult(result *types.TestResult) string {
	var content strings.Builder

	content.WriteString("\n")
	content.WriteString(ui.BuildBoxHeader("TEST: "+types.GetTestDisplayName(result), boxWidth))
	content.WriteString(ui.BuildBoxLine(fmt.Sprintf("Status:   %s", result.Status), boxWidth))
	content.WriteString(ui.BuildBoxLine(fmt.Sprintf("Config:   %s", result.Metadata.ID), boxWidth))
	content.WriteString(ui.BuildBoxLine(fmt.Sprintf("Exit:     %d", result.ExitCode), boxWidth))
	content.WriteString(ui.BuildBoxLine(fmt.Sprintf("Duration: %s", result.Duration), boxWidth))
	content.WriteString(ui.BuildBoxLine(fmt.Sprintf("Time:     %s", time.Now().Format(time.RFC3339)), boxWidth))
	content.WriteString(ui.BuildBoxFooter(boxWidth))
	content.WriteString("\n")

	if result.Case != nil {
		fmt.Fprintf(&content, "COMMAND:\n~~~~~~~~\n  %s\n\n", result.Case.CommandLine())
	}
	if len(result.Accepted) > 0 {
		content.WriteString("ACCEPTED:\n~~~~~~~~~\n")
		for _, name := range result.Accepted {
			mark := " "
			switch name {
			case result.Matched:
				mark = "="
			case result.Promoted:
				mark = "+"
			}
			fmt.Fprintf(&content, "  %s %s\n", mark, name)
		}
		content.WriteString("\n")
	}
	if result.Error != nil {
		fmt.Fprintf(&content, "ERROR:\n~~~~~~\n%s\n\n", indentText(result.Error.Error(), "  "))
	}
	if result.CleanupError != nil {
		fmt.Fprintf(&content, "CLEANUP:\n~~~~~~~~\n%s\n\n", indentText(result.CleanupError.Error(), "  "))
	}
	if result.Stderr != "" {
		fmt.Fprintf(&content, "STDERR:\n~~~~~~~\n%s\n\n", indentText(stripansi.Strip(result.Stderr), "  "))
	}
	return content.String()
}

func indentText(text, indent string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

// AllLogsFileSink appends every result to all.log
type AllLogsFileSink struct {
	logger *FileLogger
}

// Consume appends a test result to all.log
func (s *AllLogsFileSink) Consume(result *types.TestResult, runID string) error {
	return s.logger.appendTo(filepath.Join(s.logger.logDir, AllLogsFilename), formatResult(result))
}

// Complete is a no-op; files are closed by the logger
func (s *AllLogsFileSink) Complete(runID string) error {
	return nil
}

// PerTestFileSink writes one file per test into the passed or failed directory.
// Failed tests also get a copy of their saved bad output.
type PerTestFileSink struct {
	logger *FileLogger
	seen   map[string]int
}

// Consume writes the per-test log file
func (s *PerTestFileSink) Consume(result *types.TestResult, runID string) error {
	name := safeFilename(result.Metadata.ID)
	if name == "" {
		name = safeFilename(types.GetTestDisplayName(result))
	}
	if name == "" {
		name = "test"
	}
	// Raw checks share an empty ID, keep their files apart
	if n := s.seen[name]; n > 0 {
		s.seen[name] = n + 1
		name = fmt.Sprintf("%s.%d", name, n)
	} else {
		s.seen[name] = 1
	}

	dir := s.logger.passedDir
	if !result.Passed() {
		dir = s.logger.failedDir
	}

	content := formatResult(result)
	if result.BadOutput != "" {
		if data, err := os.ReadFile(result.BadOutput); err == nil {
			content += fmt.Sprintf("OUTPUT (%s):\n~~~~~~~\n%s\n", result.BadOutput, indentText(string(data), "  "))
		}
	}
	return os.WriteFile(filepath.Join(dir, name+".log"), []byte(content), 0644)
}

// Complete is a no-op
func (s *PerTestFileSink) Complete(runID string) error {
	return nil
}
