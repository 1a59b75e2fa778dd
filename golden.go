package golden

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ethereum-optimism/infra/op-golden/exitcodes"
	"github.com/ethereum-optimism/infra/op-golden/logging"
	"github.com/ethereum-optimism/infra/op-golden/reporting"
	"github.com/ethereum-optimism/infra/op-golden/runner"
	"github.com/ethereum-optimism/infra/op-golden/service"
	"github.com/ethereum-optimism/infra/op-golden/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

var _ cliapp.Lifecycle = &golden{}

// golden is the harness lifecycle: it checks the test tree once, or on every
// interval, and reports each run.
type golden struct {
	config  *Config
	version string

	executor  TestExecutor
	formatter ResultFormatter
	reporter  MetricsReporter
	scheduler TestScheduler
	service   *service.Service

	result atomic.Pointer[runner.RunnerResult]

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New creates the harness lifecycle for config.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*golden, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating op-golden with config",
		"testDir", config.TestDir,
		"pattern", config.Pattern,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"report", config.ReportPath)

	testRunner, err := runner.New(runner.Config{
		Log:             config.Log,
		Pattern:         config.Pattern,
		ShowDiff:        config.ShowDiff,
		StderrTailBytes: config.StderrTail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}

	return newGolden(config, version, NewDefaultTestExecutor(testRunner, config.TestDir, config.Log), shutdownCallback), nil
}

func newGolden(config *Config, version string, executor TestExecutor, shutdownCallback func(error)) *golden {
	svcCfg := config.Service
	svcCfg.Log = config.Log
	return &golden{
		config:           config,
		version:          version,
		executor:         executor,
		formatter:        NewConsoleResultFormatter(config.Log, nil),
		reporter:         NewDefaultMetricsReporter(),
		scheduler:        NewDefaultTestScheduler(config.RunInterval, config.RunOnce, config.Log),
		service:          service.New(svcCfg),
		shutdownCallback: shutdownCallback,
	}
}

// Start runs the tests. In run-once mode a failing run is returned as a
// TestFailureError, and a passing run triggers the shutdown callback.
// Start implements the cliapp.Lifecycle interface.
func (g *golden) Start(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			g.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	if g.config.RunOnce {
		g.config.Log.Info("Starting op-golden in run-once mode", "version", g.version)
	} else {
		g.config.Log.Info("Starting op-golden in continuous mode", "version", g.version, "interval", g.config.RunInterval)
	}

	if err := g.service.Start(ctx); err != nil {
		return NewRuntimeError(fmt.Errorf("failed to start service: %w", err))
	}

	g.scheduler.RegisterCallback(g.runTests)
	if err := g.scheduler.Start(ctx); err != nil {
		g.config.Log.Error("Runtime error running tests", "error", err)
		return err
	}

	if !g.config.RunOnce {
		g.config.Log.Debug("op-golden started successfully")
		return nil
	}

	g.config.Log.Info("Tests completed, exiting (run-once mode)")
	if result := g.result.Load(); result != nil && result.Status == types.TestStatusFail {
		g.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
		return NewTestFailureError(result.Stats.Failed, result.Stats.Total)
	}

	go func() {
		g.shutdownCallback(nil)
	}()
	return nil
}

// runTests performs one run and reports it
func (g *golden) runTests(ctx context.Context) error {
	result, err := g.executor.RunTests(ctx)
	if err != nil {
		return NewRuntimeError(err)
	}
	g.result.Store(result)

	if err := g.formatter.FormatResults(result); err != nil {
		g.config.Log.Error("Failed to print results", "error", err)
	}
	g.reporter.ReportResults(result)

	if g.config.ReportPath != "" {
		gen := reporting.NewReportGenerator(reporting.NewReportBuilder(),
			reporting.NewYAMLFormatter(), reporting.NewFileWriter(g.config.ReportPath))
		if err := gen.GenerateFromTestResults(result.Tests, result.RunID, result.Root, result.Duration); err != nil {
			return NewRuntimeError(fmt.Errorf("failed to write report: %w", err))
		}
		g.config.Log.Info("Wrote run report", "path", g.config.ReportPath)
	}

	if g.config.LogDir != "" {
		if err := g.writeRunLogs(result); err != nil {
			return NewRuntimeError(fmt.Errorf("failed to write run logs: %w", err))
		}
	}
	return nil
}

// writeRunLogs stores per-test logs and the detailed summary of a run
func (g *golden) writeRunLogs(result *runner.RunnerResult) error {
	fileLogger, err := logging.NewFileLogger(g.config.LogDir, result.RunID)
	if err != nil {
		return err
	}
	for _, test := range result.Tests {
		if err := fileLogger.LogTestResult(test); err != nil {
			return err
		}
	}

	data := reporting.NewReportBuilder().BuildFromTestResults(result.Tests, result.RunID, result.Root, result.Duration)
	summary, err := reporting.NewTextSummaryFormatter(true).Format(data)
	if err != nil {
		return err
	}
	if err := fileLogger.LogSummary(summary); err != nil {
		return err
	}
	if err := fileLogger.Complete(); err != nil {
		return err
	}
	g.config.Log.Info("Wrote run logs", "dir", fileLogger.GetDirectory())
	return nil
}

// Result returns the most recent run, or nil before the first run completes.
func (g *golden) Result() *runner.RunnerResult {
	return g.result.Load()
}

// Stop stops the scheduler and the service endpoints.
// Stop implements the cliapp.Lifecycle interface.
func (g *golden) Stop(ctx context.Context) error {
	g.config.Log.Info("Stopping op-golden")
	var result error
	if err := g.scheduler.Stop(); err != nil {
		result = errors.Join(result, err)
	}
	if err := g.scheduler.WaitForShutdown(ctx); err != nil {
		result = errors.Join(result, err)
	}
	if err := g.service.Shutdown(ctx); err != nil {
		result = errors.Join(result, err)
	}
	return result
}

// Stopped implements the cliapp.Lifecycle interface.
func (g *golden) Stopped() bool {
	return g.scheduler.Stopped()
}
