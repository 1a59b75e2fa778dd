package reporting

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-golden/types"
)

// ReportStats contains aggregated statistics for a test run
type ReportStats struct {
	Total    int
	Passed   int
	Failed   int
	PassRate float64
}

// ReportTestItem represents a single test case in the report
type ReportTestItem struct {
	// Identity
	ID      string // Config file path relative to the run root
	Name    string // Display name
	Dir     string // Directory of the config file relative to the run root
	Command string // Program invocation, empty when the config never validated

	// Status and Results
	Status       types.TestStatus
	Error        error
	ErrorKinds   []types.ErrorKind
	ExitCode     int
	Duration     time.Duration
	CleanupError error

	// Accepted output
	Matched   string
	Promoted  string
	Digest    string
	Accepted  []string
	BadOutput string

	ExecutionOrder int
}

// ReportDirectory groups the tests discovered in one directory
type ReportDirectory struct {
	Path     string
	Status   types.TestStatus
	Duration time.Duration
	Stats    ReportStats
	Tests    []ReportTestItem
}

// ReportData contains all the structured data needed for any report format
type ReportData struct {
	// Run Information
	RunID        string
	Root         string
	Timestamp    time.Time
	Duration     time.Duration
	DurationText string

	// Overall Statistics
	Stats        ReportStats
	PassRateText string
	HasFailures  bool
	Summary      string

	Directories []ReportDirectory

	// Flat Lists
	AllTests        []ReportTestItem
	FailedTests     []ReportTestItem
	FailedTestNames []string
	PromotedTests   []ReportTestItem
}

// ReportBuilder constructs ReportData from test results
type ReportBuilder struct {
	now func() time.Time
}

// NewReportBuilder creates a new report builder
func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{now: time.Now}
}

// BuildFromTestResults builds report data from results in execution order
func (rb *ReportBuilder) BuildFromTestResults(testResults []*types.TestResult, runID, root string, duration time.Duration) *ReportData {
	data := &ReportData{
		RunID:        runID,
		Root:         root,
		Timestamp:    rb.now(),
		Duration:     duration,
		DurationText: formatDuration(duration),
	}

	dirIndex := make(map[string]int)
	for i, result := range testResults {
		item := rb.createTestItem(result, i)
		data.AllTests = append(data.AllTests, item)
		rb.updateStats(&data.Stats, item.Status)

		if item.Status == types.TestStatusFail {
			data.FailedTests = append(data.FailedTests, item)
			data.FailedTestNames = append(data.FailedTestNames, item.Name)
		}
		if item.Promoted != "" {
			data.PromotedTests = append(data.PromotedTests, item)
		}

		idx, ok := dirIndex[item.Dir]
		if !ok {
			idx = len(data.Directories)
			dirIndex[item.Dir] = idx
			data.Directories = append(data.Directories, ReportDirectory{Path: item.Dir})
		}
		dir := &data.Directories[idx]
		dir.Tests = append(dir.Tests, item)
		dir.Duration += item.Duration
		rb.updateStats(&dir.Stats, item.Status)
	}

	for i := range data.Directories {
		dir := &data.Directories[i]
		dir.Stats.PassRate = passRate(dir.Stats)
		dir.Status = rb.determineStatus(dir.Stats)
	}

	data.Stats.PassRate = passRate(data.Stats)
	data.PassRateText = fmt.Sprintf("%.1f%%", data.Stats.PassRate)
	data.HasFailures = data.Stats.Failed > 0
	data.Summary = fmt.Sprintf("Total tests: %d, Passed tests: %d. Failed tests: %d",
		data.Stats.Total, data.Stats.Passed, data.Stats.Failed)
	return data
}

func (rb *ReportBuilder) createTestItem(result *types.TestResult, order int) ReportTestItem {
	id := result.Metadata.ID
	if id == "" {
		id = result.Metadata.ConfigFile
	}
	dir := path.Dir(id)
	if dir == "." {
		dir = ""
	}

	item := ReportTestItem{
		ID:             id,
		Name:           types.GetTestDisplayName(result),
		Dir:            dir,
		Status:         result.Status,
		Error:          result.Error,
		ErrorKinds:     types.ErrorKinds(result.Error),
		ExitCode:       result.ExitCode,
		Duration:       result.Duration,
		CleanupError:   result.CleanupError,
		Matched:        result.Matched,
		Promoted:       result.Promoted,
		Digest:         result.Digest,
		Accepted:       result.Accepted,
		BadOutput:      result.BadOutput,
		ExecutionOrder: order,
	}
	if result.Case != nil {
		item.Command = result.Case.CommandLine()
	}
	return item
}

func (rb *ReportBuilder) updateStats(stats *ReportStats, status types.TestStatus) {
	stats.Total++
	if status == types.TestStatusPass {
		stats.Passed++
	} else {
		stats.Failed++
	}
}

func (rb *ReportBuilder) determineStatus(stats ReportStats) types.TestStatus {
	if stats.Failed > 0 {
		return types.TestStatusFail
	}
	return types.TestStatusPass
}

func passRate(stats ReportStats) float64 {
	if stats.Total == 0 {
		return 0
	}
	return float64(stats.Passed) / float64(stats.Total) * 100
}

// keyErrorMessage returns the first line of an error, shortened for table display
func keyErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	if idx := strings.Index(errStr, "\n"); idx != -1 {
		errStr = errStr[:idx]
	}
	if len(errStr) > 80 {
		return errStr[:77] + "..."
	}
	return errStr
}
