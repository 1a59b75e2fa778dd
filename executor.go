package golden

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-golden/runner"
)

// TestRunner walks a test tree and checks every test in it.
type TestRunner interface {
	RunAll(ctx context.Context, root string) (*runner.RunnerResult, error)
}

// TestExecutor is responsible for running tests.
type TestExecutor interface {
	RunTests(ctx context.Context) (*runner.RunnerResult, error)
}

// DefaultTestExecutor runs a fixed test root through a TestRunner.
type DefaultTestExecutor struct {
	runner TestRunner
	root   string
	logger log.Logger
}

// NewDefaultTestExecutor creates a new DefaultTestExecutor.
func NewDefaultTestExecutor(runner TestRunner, root string, logger log.Logger) *DefaultTestExecutor {
	return &DefaultTestExecutor{
		runner: runner,
		root:   root,
		logger: logger,
	}
}

// RunTests runs all tests below the root and returns the results.
func (e *DefaultTestExecutor) RunTests(ctx context.Context) (*runner.RunnerResult, error) {
	e.logger.Info("Running all tests...", "root", e.root)
	result, err := e.runner.RunAll(ctx, e.root)
	if err != nil {
		e.logger.Error("Error running tests", "error", err)
		return nil, err
	}
	e.logger.Info("Test run completed", "run_id", result.RunID, "status", result.Status)
	return result, nil
}
