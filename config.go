package golden

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-golden/flags"
	"github.com/ethereum-optimism/infra/op-golden/service"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	TestDir     string        // Root of the test tree
	Pattern     string        // Glob matching test configuration files
	RunInterval time.Duration // Interval between test runs
	RunOnce     bool          // Indicates if the service should exit after one test run
	ReportPath  string        // YAML report destination, empty when disabled
	LogDir      string        // Base directory of per-run logs, empty when disabled
	ShowDiff    bool          // Print a line diff on output mismatches
	StderrTail  int           // Bytes of stderr kept per test
	Service     service.Config
	Log         log.Logger
}

// NewConfig creates a new Config from cli context. testDir is the root
// directory picked by the caller; empty means the working directory.
func NewConfig(ctx *cli.Context, log log.Logger, testDir string) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	if testDir == "" {
		testDir = "."
	}

	absTestDir, err := filepath.Abs(testDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for test directory '%s': %w", testDir, err)
	}

	pattern := ctx.String(flags.Pattern.Name)
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid test file pattern '%s': %w", pattern, err)
	}

	reportPath := ctx.String(flags.Report.Name)
	if reportPath != "" {
		reportPath, err = filepath.Abs(reportPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for report '%s': %w", reportPath, err)
		}
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir != "" {
		logDir, err = filepath.Abs(logDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
		}
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	if runInterval < 0 {
		return nil, fmt.Errorf("run interval must not be negative: %s", runInterval)
	}

	return &Config{
		TestDir:     absTestDir,
		Pattern:     pattern,
		RunInterval: runInterval,
		RunOnce:     runInterval == 0,
		ReportPath:  reportPath,
		LogDir:      logDir,
		ShowDiff:    ctx.Bool(flags.ShowDiff.Name),
		StderrTail:  ctx.Int(flags.StderrTail.Name),
		Service: service.Config{
			HealthzAddr: ctx.String(flags.HealthzAddr.Name),
			Metrics:     metricsCfg,
			Log:         log,
		},
		Log: log,
	}, nil
}
