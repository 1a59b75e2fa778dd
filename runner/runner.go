package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-golden/acceptor"
	"github.com/ethereum-optimism/infra/op-golden/checker"
	"github.com/ethereum-optimism/infra/op-golden/metrics"
	"github.com/ethereum-optimism/infra/op-golden/process"
	"github.com/ethereum-optimism/infra/op-golden/types"
	"github.com/ethereum-optimism/infra/op-golden/ui"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPattern matches the test configuration files of a directory
const DefaultPattern = "testconfig*.txt"

var ErrRootNotFound = errors.New("test root does not exist")

// RunnerResult captures the complete test run results
type RunnerResult struct {
	RunID    string
	Root     string
	Tests    []*types.TestResult // In discovery order
	Stats    ResultStats
	Status   types.TestStatus
	Duration time.Duration
}

// ResultStats tracks test statistics of a run
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	StartTime time.Time
	EndTime   time.Time
}

// Config holds configuration for creating a new runner
type Config struct {
	Log      log.Logger
	Out      io.Writer // Console output shared with the checkers, os.Stdout when nil
	Pattern  string    // Glob for test configuration files, DefaultPattern when empty
	ShowDiff bool
	// StderrTailBytes bounds the stderr kept per test, 0 for the default
	StderrTailBytes int
}

// Runner walks a directory tree and checks every test configuration file in it
type Runner struct {
	log     log.Logger
	out     io.Writer
	pattern string
	checker checker.Config
	tracer  trace.Tracer
}

// New creates a new test runner instance
func New(cfg Config) (*Runner, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	if _, err := filepath.Match(cfg.Pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid test file pattern %q: %w", cfg.Pattern, err)
	}

	cfg.Log.Debug("New test runner", "pattern", cfg.Pattern, "showDiff", cfg.ShowDiff)

	return &Runner{
		log:     cfg.Log,
		out:     cfg.Out,
		pattern: cfg.Pattern,
		checker: checker.Config{
			Log:      cfg.Log,
			Out:      cfg.Out,
			Process:  process.NewRunner(process.Config{Log: cfg.Log, StderrTailBytes: cfg.StderrTailBytes}),
			Acceptor: acceptor.New(cfg.Log),
			ShowDiff: cfg.ShowDiff,
		},
		tracer: otel.Tracer("test runner"),
	}, nil
}

// RunAll checks every test under root. Tests run one at a time: the
// configuration files of a directory in name order, then its subdirectories
// in name order.
func (r *Runner) RunAll(ctx context.Context, root string) (*RunnerResult, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve test root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, abs)
	}

	runID := uuid.New().String()
	ctx, span := r.tracer.Start(ctx, "run tests", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("root", abs),
	))
	defer span.End()

	start := time.Now()
	r.log.Debug("Running all tests", "run_id", runID, "root", abs)
	fmt.Fprintf(r.out, "Running tests under %s...\n", abs)

	dr := r.walk(ctx, abs, "")

	result := &RunnerResult{
		RunID: runID,
		Root:  abs,
		Tests: dr.Tests,
		Stats: ResultStats{
			Total:     dr.Total,
			Passed:    dr.Total - dr.Failed,
			Failed:    dr.Failed,
			StartTime: start,
			EndTime:   time.Now(),
		},
		Duration: time.Since(start),
	}
	result.Status = determineRunnerStatus(result)
	if result.Status == types.TestStatusFail {
		span.SetStatus(codes.Error, result.Summary())
	}
	return result, nil
}

// dirResult is the outcome of one directory and everything below it
type dirResult struct {
	Total  int
	Failed int
	Tests  []*types.TestResult
}

func (d dirResult) add(other dirResult) dirResult {
	return dirResult{
		Total:  d.Total + other.Total,
		Failed: d.Failed + other.Failed,
		Tests:  append(d.Tests, other.Tests...),
	}
}

// walk checks the test files of dir, then recurses into its subdirectories.
// rel is the slash separated path of dir below the run root.
func (r *Runner) walk(ctx context.Context, dir, rel string) dirResult {
	var dr dirResult
	entries, err := os.ReadDir(dir)
	if err != nil {
		r.log.Warn("Skipping unreadable directory", "dir", dir, "err", err)
		metrics.RecordErrorDetails("walk", err)
		return dr
	}

	var subdirs []string
	var chk *checker.Checker
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(dir, entry.Name())); err == nil && info.IsDir() {
				continue
			}
		}
		if entry.IsDir() {
			subdirs = append(subdirs, entry.Name())
			continue
		}
		if ok, _ := filepath.Match(r.pattern, entry.Name()); !ok {
			continue
		}
		if chk == nil {
			chk = checker.New(dir, r.checker)
		}
		result := r.runTest(ctx, chk, entry.Name(), rel)
		dr = dr.add(dirResult{
			Total:  1,
			Failed: btoi(!result.Passed()),
			Tests:  []*types.TestResult{result},
		})
	}

	for _, name := range subdirs {
		dr = dr.add(r.walk(ctx, filepath.Join(dir, name), pathJoin(rel, name)))
	}
	return dr
}

func (r *Runner) runTest(ctx context.Context, chk *checker.Checker, name, rel string) *types.TestResult {
	id := pathJoin(rel, name)
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("test %s", id))
	defer span.End()

	result := chk.Check(ctx, name)
	result.Metadata.ID = id
	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Int("exit_code", result.ExitCode),
	)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, result.Error.Error())
	}

	r.log.Info("Checked test",
		"test", types.GetTestDisplayName(result),
		"id", id,
		"status", result.Status,
		"duration", result.Duration)
	return result
}

func pathJoin(rel, name string) string {
	if rel == "" {
		return name
	}
	return rel + "/" + name
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

func determineRunnerStatus(result *RunnerResult) types.TestStatus {
	if result.Stats.Failed > 0 {
		return types.TestStatusFail
	}
	return types.TestStatusPass
}

// Summary returns the one line totals of the run
func (r *RunnerResult) Summary() string {
	return fmt.Sprintf("Total tests: %d, Passed tests: %d. Failed tests: %d",
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed)
}

// Failed returns the tests that did not pass
func (r *RunnerResult) Failed() []*types.TestResult {
	var failed []*types.TestResult
	for _, t := range r.Tests {
		if !t.Passed() {
			failed = append(failed, t)
		}
	}
	return failed
}

// formatDuration formats the duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// String returns a formatted string representation of the test results
func (r *RunnerResult) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Test Run Results (%s):\n", formatDuration(r.Duration)))
	b.WriteString(fmt.Sprintf("Total: %d, Passed: %d, Failed: %d\n",
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed))

	for i, test := range r.Tests {
		prefix := ui.BuildTreePrefix(1, i == len(r.Tests)-1, nil)
		b.WriteString(fmt.Sprintf("%sTest: %s (%s) [status=%s]\n",
			prefix, types.GetTestDisplayName(test), formatDuration(test.Duration), test.Status))
		if test.Error != nil {
			b.WriteString(fmt.Sprintf("%s%sError: %s\n", ui.TreeDetail, ui.TreeLastBranch, test.Error.Error()))
		}
	}
	return b.String()
}
