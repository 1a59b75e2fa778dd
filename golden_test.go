package golden

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-golden/runner"
	"github.com/ethereum-optimism/infra/op-golden/types"
)

// trackedMockExecutor counts runs so tests can wait on them
type trackedMockExecutor struct {
	mock.Mock
	execCount atomic.Int32
	execCh    chan struct{}
}

func newTrackedMockExecutor() *trackedMockExecutor {
	return &trackedMockExecutor{execCh: make(chan struct{}, 100)}
}

func (m *trackedMockExecutor) RunTests(ctx context.Context) (*runner.RunnerResult, error) {
	args := m.Called(ctx)
	m.execCount.Add(1)
	m.execCh <- struct{}{}
	result := args.Get(0)
	if result == nil {
		return nil, args.Error(1)
	}
	return result.(*runner.RunnerResult), args.Error(1)
}

func (m *trackedMockExecutor) waitForExecutions(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-m.execCh:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for execution %d/%d", i+1, n)
		}
	}
}

func passingResult() *runner.RunnerResult {
	return &runner.RunnerResult{
		RunID:  "run-pass",
		Root:   "/tests",
		Status: types.TestStatusPass,
		Tests: []*types.TestResult{{
			Metadata: types.TestMetadata{ID: "testconfig.txt", ConfigFile: "testconfig.txt"},
			Status:   types.TestStatusPass,
		}},
		Stats: runner.ResultStats{Total: 1, Passed: 1},
	}
}

func failingResult() *runner.RunnerResult {
	return &runner.RunnerResult{
		RunID:  "run-fail",
		Root:   "/tests",
		Status: types.TestStatusFail,
		Tests: []*types.TestResult{{
			Metadata: types.TestMetadata{ID: "testconfig.txt", ConfigFile: "testconfig.txt"},
			Status:   types.TestStatusFail,
			Error:    errors.New("output is not accepted"),
		}},
		Stats: runner.ResultStats{Total: 1, Failed: 1},
	}
}

func setupTest(t *testing.T, cfg *Config, executor TestExecutor) (*golden, chan error) {
	t.Helper()
	cfg.Log = log.NewLogger(log.DiscardHandler())
	shutdown := make(chan error, 1)
	g := newGolden(cfg, "test", executor, func(err error) { shutdown <- err })
	g.formatter = NewConsoleResultFormatter(cfg.Log, io.Discard)
	return g, shutdown
}

func TestGolden_RunOnce_Pass(t *testing.T) {
	executor := newTrackedMockExecutor()
	executor.On("RunTests", mock.Anything).Return(passingResult(), nil)
	g, shutdown := setupTest(t, &Config{RunOnce: true}, executor)

	require.NoError(t, g.Start(context.Background()))
	assert.Equal(t, int32(1), executor.execCount.Load())

	select {
	case err := <-shutdown:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback not called")
	}
	assert.Equal(t, "run-pass", g.Result().RunID)
	require.NoError(t, g.Stop(context.Background()))
	assert.True(t, g.Stopped())
}

func TestGolden_RunOnce_Failure(t *testing.T) {
	executor := newTrackedMockExecutor()
	executor.On("RunTests", mock.Anything).Return(failingResult(), nil)
	g, shutdown := setupTest(t, &Config{RunOnce: true}, executor)

	err := g.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.False(t, IsRuntimeError(err))
	var failure *TestFailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 1, failure.Failed)
	assert.Equal(t, 1, failure.Total)

	select {
	case <-shutdown:
		t.Fatal("shutdown callback must not run on failure")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGolden_RunOnce_RuntimeError(t *testing.T) {
	executor := newTrackedMockExecutor()
	executor.On("RunTests", mock.Anything).Return(nil, runner.ErrRootNotFound)
	g, _ := setupTest(t, &Config{RunOnce: true}, executor)

	err := g.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.ErrorIs(t, err, runner.ErrRootNotFound)
	assert.Nil(t, g.Result())
}

func TestGolden_Continuous(t *testing.T) {
	executor := newTrackedMockExecutor()
	executor.On("RunTests", mock.Anything).Return(failingResult(), nil)
	g, _ := setupTest(t, &Config{RunInterval: 10 * time.Millisecond}, executor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// failures do not end continuous mode
	require.NoError(t, g.Start(ctx))
	executor.waitForExecutions(t, 3)
	assert.False(t, g.Stopped())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, g.Stop(stopCtx))
	assert.True(t, g.Stopped())
}

func TestGolden_WritesReport(t *testing.T) {
	executor := newTrackedMockExecutor()
	executor.On("RunTests", mock.Anything).Return(passingResult(), nil)
	reportPath := filepath.Join(t.TempDir(), "report.yaml")
	g, _ := setupTest(t, &Config{RunOnce: true, ReportPath: reportPath}, executor)

	require.NoError(t, g.Start(context.Background()))

	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	assert.Equal(t, "run-pass", doc["run_id"])
	assert.Equal(t, 1, doc["total"])
}

func TestGolden_ReportWriteFailure(t *testing.T) {
	executor := newTrackedMockExecutor()
	executor.On("RunTests", mock.Anything).Return(passingResult(), nil)
	reportPath := filepath.Join(t.TempDir(), "missing", "report.yaml")
	g, _ := setupTest(t, &Config{RunOnce: true, ReportPath: reportPath}, executor)

	err := g.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(context.Background(), nil, "test", func(error) {})
	require.Error(t, err)
}

func TestGolden_WritesRunLogs(t *testing.T) {
	executor := newTrackedMockExecutor()
	executor.On("RunTests", mock.Anything).Return(failingResult(), nil)
	logDir := t.TempDir()
	g, _ := setupTest(t, &Config{RunOnce: true, LogDir: logDir}, executor)

	require.True(t, IsTestFailureError(g.Start(context.Background())))

	runDir := filepath.Join(logDir, "testrun-run-fail")
	assert.FileExists(t, filepath.Join(runDir, "failed", "testconfig.txt.log"))
	summary, err := os.ReadFile(filepath.Join(runDir, "summary.log"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Run ID: run-fail")
	assert.Contains(t, string(summary), "Total tests: 1, Passed tests: 0. Failed tests: 1")
}
