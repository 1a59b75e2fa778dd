package golden

import (
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-golden/reporting"
	"github.com/ethereum-optimism/infra/op-golden/runner"
)

// ResultFormatter is responsible for formatting and displaying test results.
type ResultFormatter interface {
	FormatResults(result *runner.RunnerResult) error
}

// ConsoleResultFormatter prints a results table followed by the totals line.
type ConsoleResultFormatter struct {
	logger  log.Logger
	out     io.Writer
	colored bool
	builder *reporting.ReportBuilder
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter writing to
// out, or to stdout when out is nil.
func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleResultFormatter{
		logger:  logger,
		out:     out,
		colored: reporting.IsTerminal(out),
		builder: reporting.NewReportBuilder(),
	}
}

// FormatResults formats and displays the test results.
func (f *ConsoleResultFormatter) FormatResults(result *runner.RunnerResult) error {
	f.logger.Debug("Printing results...")
	data := f.builder.BuildFromTestResults(result.Tests, result.RunID, result.Root, result.Duration)
	writer := reporting.NewStreamWriter(f.out)

	if len(data.AllTests) > 0 {
		table := reporting.NewReportGenerator(f.builder,
			reporting.NewTableFormatter("Golden Master Results", f.colored), writer)
		if err := table.GenerateReport(data); err != nil {
			return fmt.Errorf("failed to print results table: %w", err)
		}
	}

	summary := reporting.NewReportGenerator(f.builder, reporting.NewTextSummaryFormatter(false), writer)
	if err := summary.GenerateReport(data); err != nil {
		return fmt.Errorf("failed to print results summary: %w", err)
	}
	return nil
}
