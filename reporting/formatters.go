package reporting

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-golden/types"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

// getResultString returns a marked string representing the test result
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	default:
		return "✗ fail"
	}
}

// IsTerminal reports whether w is a terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ReportFormatter defines the interface for different report output formats
type ReportFormatter interface {
	Format(data *ReportData) (string, error)
}

// ReportWriter defines the interface for writing reports to various destinations
type ReportWriter interface {
	Write(content string) error
}

// FileWriter writes reports to a file
type FileWriter struct {
	path string
}

// NewFileWriter creates a new file writer
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

// Write writes the content to the file
func (fw *FileWriter) Write(content string) error {
	return os.WriteFile(fw.path, []byte(content), 0644)
}

// StreamWriter writes reports to an io.Writer such as the console
type StreamWriter struct {
	w io.Writer
}

// NewStreamWriter creates a new stream writer
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// Write writes the content to the stream
func (sw *StreamWriter) Write(content string) error {
	_, err := io.WriteString(sw.w, content)
	return err
}

// TableFormatter formats reports as ASCII tables
type TableFormatter struct {
	title   string
	colored bool
}

// NewTableFormatter creates a new table formatter. Colored styles are only
// useful when the table ends up on a terminal.
func NewTableFormatter(title string, colored bool) *TableFormatter {
	return &TableFormatter{
		title:   title,
		colored: colored,
	}
}

// Format formats the report data as an ASCII table with one row per test
func (tf *TableFormatter) Format(data *ReportData) (string, error) {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(fmt.Sprintf("%s (%s)", tf.title, data.DurationText))

	t.AppendHeader(table.Row{
		"Directory", "Test", "Duration", "Exit", "Passed", "Failed", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Directory", AutoMerge: true, WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Test", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, dir := range data.Directories {
		dirName := dir.Path
		if dirName == "" {
			dirName = "."
		}
		for i, test := range dir.Tests {
			prefix := "├──"
			if i == len(dir.Tests)-1 {
				prefix = "└──"
			}
			exit := "-"
			if test.ExitCode >= 0 && test.Command != "" {
				exit = fmt.Sprintf("%d", test.ExitCode)
			}
			t.AppendRow(table.Row{
				dirName,
				fmt.Sprintf("%s %s", prefix, test.Name),
				formatDuration(test.Duration),
				exit,
				boolToInt(test.Status == types.TestStatusPass),
				boolToInt(test.Status == types.TestStatusFail),
				getResultString(test.Status),
				keyErrorMessage(test.Error),
			})
		}
		t.AppendSeparator()
	}

	switch {
	case !tf.colored:
		t.SetStyle(table.StyleLight)
	case data.HasFailures:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	overall := types.TestStatusPass
	if data.HasFailures {
		overall = types.TestStatusFail
	}
	t.AppendFooter(table.Row{
		"TOTAL",
		data.Stats.Total,
		data.DurationText,
		"",
		data.Stats.Passed,
		data.Stats.Failed,
		getResultString(overall),
		"",
	})

	t.Render()
	return buf.String(), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// TextSummaryFormatter formats reports as plain text summaries
type TextSummaryFormatter struct {
	includeDetails bool
}

// NewTextSummaryFormatter creates a new text summary formatter
func NewTextSummaryFormatter(includeDetails bool) *TextSummaryFormatter {
	return &TextSummaryFormatter{
		includeDetails: includeDetails,
	}
}

// Format formats the report data as a text summary ending in the totals line
func (tsf *TextSummaryFormatter) Format(data *ReportData) (string, error) {
	var summary strings.Builder

	if tsf.includeDetails {
		fmt.Fprintf(&summary, "Run ID: %s\n", data.RunID)
		fmt.Fprintf(&summary, "Root: %s\n", data.Root)
		fmt.Fprintf(&summary, "Duration: %s\n", data.DurationText)
		fmt.Fprintf(&summary, "Pass rate: %s\n", data.PassRateText)

		if len(data.FailedTestNames) > 0 {
			fmt.Fprintf(&summary, "Failed tests:\n")
			for _, test := range data.FailedTests {
				fmt.Fprintf(&summary, "  - %s (%s)\n", test.Name, test.ID)
			}
		}
		if len(data.PromotedTests) > 0 {
			fmt.Fprintf(&summary, "Promoted outputs:\n")
			for _, test := range data.PromotedTests {
				fmt.Fprintf(&summary, "  + %s -> %s\n", test.Name, test.Promoted)
			}
		}
	}

	fmt.Fprintf(&summary, "\n%s\n", data.Summary)
	return summary.String(), nil
}

// YAMLFormatter formats reports as a YAML document for tooling
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

type yamlReport struct {
	RunID     string     `yaml:"run_id"`
	Root      string     `yaml:"root"`
	Timestamp time.Time  `yaml:"timestamp"`
	Duration  string     `yaml:"duration"`
	Summary   string     `yaml:"summary"`
	Total     int        `yaml:"total"`
	Passed    int        `yaml:"passed"`
	Failed    int        `yaml:"failed"`
	Tests     []yamlTest `yaml:"tests"`
}

type yamlTest struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Command      string   `yaml:"command,omitempty"`
	Status       string   `yaml:"status"`
	ExitCode     int      `yaml:"exit_code"`
	Duration     string   `yaml:"duration"`
	Matched      string   `yaml:"matched,omitempty"`
	Promoted     string   `yaml:"promoted,omitempty"`
	Digest       string   `yaml:"digest,omitempty"`
	Accepted     []string `yaml:"accepted,omitempty"`
	BadOutput    string   `yaml:"bad_output,omitempty"`
	Error        string   `yaml:"error,omitempty"`
	ErrorKinds   []string `yaml:"error_kinds,omitempty"`
	CleanupError string   `yaml:"cleanup_error,omitempty"`
}

// Format formats the report data as YAML
func (yf *YAMLFormatter) Format(data *ReportData) (string, error) {
	doc := yamlReport{
		RunID:     data.RunID,
		Root:      data.Root,
		Timestamp: data.Timestamp.UTC(),
		Duration:  data.Duration.String(),
		Summary:   data.Summary,
		Total:     data.Stats.Total,
		Passed:    data.Stats.Passed,
		Failed:    data.Stats.Failed,
		Tests:     make([]yamlTest, 0, len(data.AllTests)),
	}
	for _, test := range data.AllTests {
		yt := yamlTest{
			ID:        test.ID,
			Name:      test.Name,
			Command:   test.Command,
			Status:    string(test.Status),
			ExitCode:  test.ExitCode,
			Duration:  test.Duration.String(),
			Matched:   test.Matched,
			Promoted:  test.Promoted,
			Digest:    test.Digest,
			Accepted:  test.Accepted,
			BadOutput: test.BadOutput,
		}
		if test.Error != nil {
			yt.Error = test.Error.Error()
		}
		for _, kind := range test.ErrorKinds {
			yt.ErrorKinds = append(yt.ErrorKinds, string(kind))
		}
		if test.CleanupError != nil {
			yt.CleanupError = test.CleanupError.Error()
		}
		doc.Tests = append(doc.Tests, yt)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	return buf.String(), nil
}

// ReportGenerator combines builder, formatter, and writer for easy report generation
type ReportGenerator struct {
	builder   *ReportBuilder
	formatter ReportFormatter
	writer    ReportWriter
}

// NewReportGenerator creates a new report generator
func NewReportGenerator(builder *ReportBuilder, formatter ReportFormatter, writer ReportWriter) *ReportGenerator {
	return &ReportGenerator{
		builder:   builder,
		formatter: formatter,
		writer:    writer,
	}
}

// GenerateFromTestResults generates a report from test results
func (rg *ReportGenerator) GenerateFromTestResults(testResults []*types.TestResult, runID, root string, duration time.Duration) error {
	return rg.GenerateReport(rg.builder.BuildFromTestResults(testResults, runID, root, duration))
}

// GenerateReport generates a report from pre-built report data
func (rg *ReportGenerator) GenerateReport(reportData *ReportData) error {
	content, err := rg.formatter.Format(reportData)
	if err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}

	if err := rg.writer.Write(content); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}
