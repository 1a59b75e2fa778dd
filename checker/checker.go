// Package checker runs a single golden-master test case: it validates the
// options, runs the program under test into a run artifact and compares the
// artifact against the accepted outputs.
package checker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-golden/acceptor"
	"github.com/ethereum-optimism/infra/op-golden/metrics"
	"github.com/ethereum-optimism/infra/op-golden/options"
	"github.com/ethereum-optimism/infra/op-golden/process"
	"github.com/ethereum-optimism/infra/op-golden/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/go-cmp/cmp"
)

const (
	ArtifactFile  = "check-tmp.txt"
	BadOutputFile = "check-output.log"

	bannerLine    = "================================="
	consoleBanner = "         Console output          "
)

var rules = []options.Rule{
	{Name: OptRun, Min: 1, Max: 1},
	{Name: OptAccept, Min: 1, Max: 1},
	{Name: OptInclude, Optional: true, Min: 1, Max: options.Unbounded},
	{Name: OptArgs, Optional: true, Min: 0, Max: options.Unbounded},
	{Name: OptAdd, Optional: true, Min: 0, Max: 0},
	{Name: OptIgnorePrompt, Optional: true, Min: 0, Max: 0},
	{Name: OptDelete, Optional: true, Min: 1, Max: options.Unbounded},
	{Name: OptDescription, Optional: true, Min: 1, Max: options.Unbounded},
	{Name: OptConfig, Optional: true, Min: 1, Max: 1},
}

// Config holds configuration for creating a new Checker
type Config struct {
	Log      log.Logger
	Out      io.Writer // Console output, os.Stdout when nil
	Process  *process.Runner
	Acceptor *acceptor.Comparator
	ShowDiff bool // Print a line diff against the first accepted output on mismatch
}

// Checker checks test cases whose relative paths resolve against one directory
type Checker struct {
	dir      string
	log      log.Logger
	out      io.Writer
	proc     *process.Runner
	acc      *acceptor.Comparator
	showDiff bool
	remove   func(string) error
}

// New creates a Checker rooted at dir
func New(dir string, cfg Config) *Checker {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Process == nil {
		cfg.Process = process.NewRunner(process.Config{Log: cfg.Log})
	}
	if cfg.Acceptor == nil {
		cfg.Acceptor = acceptor.New(cfg.Log)
	}
	return &Checker{
		dir:      dir,
		log:      cfg.Log,
		out:      cfg.Out,
		proc:     cfg.Process,
		acc:      cfg.Acceptor,
		showDiff: cfg.ShowDiff,
		remove:   os.Remove,
	}
}

// Dir returns the directory the checker resolves paths against
func (c *Checker) Dir() string {
	return c.dir
}

// Check loads the configuration file testFile and checks it
func (c *Checker) Check(ctx context.Context, testFile string) *types.TestResult {
	start := time.Now()
	path := options.ResolvePath(c.dir, testFile)
	result := c.newResult(testFile)

	set, err := options.Load(path)
	if err != nil {
		c.printf("ERROR: Could not load test file %s - %v\n", testFile, err)
		var perr *options.ParseError
		if errors.As(err, &perr) {
			c.printf("%s\n", perr.Caret())
		}
		return c.finish(result, start, []error{types.NewCheckError(types.KindConfiguration, err)})
	}
	return c.check(ctx, result, set, start, map[string]bool{path: true})
}

// CheckRaw parses a command line string and checks it
func (c *Checker) CheckRaw(ctx context.Context, raw string) *types.TestResult {
	start := time.Now()
	result := c.newResult("")

	set, err := options.Parse(raw)
	if err != nil {
		c.printf("ERROR: Could not parse command line\n")
		var perr *options.ParseError
		if errors.As(err, &perr) {
			c.printf("%s\n", perr.Caret())
		}
		c.printf("\n")
		PrintUsage(c.out)
		return c.finish(result, start, []error{types.NewCheckError(types.KindConfiguration, err)})
	}
	return c.check(ctx, result, set, start, map[string]bool{})
}

// CheckOptions checks an already parsed option set
func (c *Checker) CheckOptions(ctx context.Context, set *options.Set) *types.TestResult {
	return c.check(ctx, c.newResult(""), set, time.Now(), map[string]bool{})
}

func (c *Checker) newResult(configFile string) *types.TestResult {
	return &types.TestResult{
		Metadata: types.TestMetadata{
			Dir:        c.dir,
			ConfigFile: configFile,
		},
		ExitCode: -1,
	}
}

func (c *Checker) check(ctx context.Context, result *types.TestResult, set *options.Set, start time.Time, visited map[string]bool) *types.TestResult {
	dir, err := resolveChain(set, c.dir, visited)
	if err != nil {
		c.printf("ERROR: Could not load test file - %v\n", err)
		return c.finish(result, start, []error{types.NewCheckError(types.KindConfiguration, err)})
	}

	tc, err := c.validate(set, dir)
	if err != nil {
		return c.finish(result, start, []error{types.NewCheckError(types.KindConfiguration, err)})
	}
	result.Case = tc

	if tc.Description != "" {
		c.printf("*********** Checking %s ***********\n", tc.Description)
	}
	c.deleteFiles(tc)

	errs := c.run(ctx, result)
	c.removeArtifact(result)
	return c.finish(result, start, errs)
}

// validate enforces every option rule and rejects unknown options. All
// violations are printed before usage is shown.
func (c *Checker) validate(set *options.Set, dir string) (*types.TestCase, error) {
	var errs []error
	found := make(map[string][]options.Value)
	given := make(map[string]bool)
	for _, rule := range rules {
		values, ok, err := set.Validate(rule)
		if err != nil {
			c.printf("ERROR: %v\n", err)
			errs = append(errs, err)
			continue
		}
		found[rule.Name] = values
		given[rule.Name] = ok
	}
	if unknown, ok := set.UnknownBesides(allOptions...); ok {
		for _, name := range unknown {
			c.printf("ERROR: -%s is not a legal option\n", name)
			errs = append(errs, fmt.Errorf("-%s is not a legal option", name))
		}
	}
	if len(errs) > 0 {
		c.printf("\n")
		PrintUsage(c.out)
		return nil, errors.Join(errs...)
	}

	return &types.TestCase{
		Description:  strings.Join(texts(found[OptDescription]), " "),
		Executable:   options.ResolvePath(dir, found[OptRun][0].Text),
		Args:         texts(found[OptArgs]),
		Includes:     texts(found[OptInclude]),
		Deletes:      texts(found[OptDelete]),
		AcceptDir:    options.ResolvePath(dir, found[OptAccept][0].Text),
		Promote:      given[OptAdd],
		IgnorePrompt: given[OptIgnorePrompt],
		Dir:          dir,
	}, nil
}

// deleteFiles removes the del targets. Failures are reported but never fail the test.
func (c *Checker) deleteFiles(tc *types.TestCase) {
	for _, name := range tc.Deletes {
		path := options.ResolvePath(tc.Dir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		c.printf("DEL: Deleted file %s\n", path)
		err = os.Chmod(path, info.Mode().Perm()|0o200)
		if err == nil {
			err = os.Remove(path)
		}
		if err != nil {
			c.printf("Error deleting file %s - %v\n", name, err)
			c.log.Warn("Failed to delete file", "file", path, "err", err)
			metrics.RecordErrorDetails("delete", err)
		}
	}
}

// run writes the run artifact and compares it against the accepted set
func (c *Checker) run(ctx context.Context, result *types.TestResult) []error {
	tc := result.Case
	artifactPath := filepath.Join(tc.Dir, ArtifactFile)
	f, err := os.Create(artifactPath)
	if err != nil {
		c.printf("ERROR: Could not open temporary file %s - %v\n", ArtifactFile, err)
		return []error{types.NewCheckError(types.KindFilesystem, err)}
	}

	var errs []error
	w := bufio.NewWriter(f)
	if err := c.execute(ctx, w, result); err != nil {
		errs = append(errs, err)
	} else if err := c.appendIncludes(w, tc); err != nil {
		errs = append(errs, err)
	}

	if err := w.Flush(); err != nil {
		_ = f.Close()
		c.printf("ERROR: Could not close temporary file %s - %v\n", ArtifactFile, err)
		return append(errs, types.NewCheckError(types.KindFilesystem, err))
	}
	if err := f.Close(); err != nil {
		c.printf("ERROR: Could not close temporary file %s - %v\n", ArtifactFile, err)
		errs = append(errs, types.NewCheckError(types.KindFilesystem, err))
	}
	if len(errs) > 0 {
		return errs
	}

	if err := c.compare(artifactPath, result); err != nil {
		c.saveBadOutput(artifactPath, result)
		return []error{err}
	}
	return nil
}

// execute runs the program, writing its stdout lines and exit code to w
func (c *Checker) execute(ctx context.Context, w io.Writer, result *types.TestResult) error {
	tc := result.Case
	if info, err := os.Stat(tc.Executable); err != nil || info.IsDir() {
		c.printf("ERROR: Failed to run command: %s does not exist\n", tc.Executable)
		return types.NewCheckError(types.KindFilesystem, fmt.Errorf("executable %s does not exist", tc.Executable))
	}

	if !tc.IgnorePrompt {
		fmt.Fprintln(w, bannerLine)
		fmt.Fprintln(w, consoleBanner)
		fmt.Fprintln(w, bannerLine)
	}

	sink := w
	if tc.IgnorePrompt {
		sink = c.out
	}
	c.log.Debug("Running program", "cmd", tc.CommandLine(), "dir", tc.Dir)
	res, err := c.proc.Run(ctx, process.Request{
		Dir:        tc.Dir,
		Executable: tc.Executable,
		Args:       tc.Args,
		Stdout: func(line string) {
			fmt.Fprintf(sink, "OUT: %s\n", line)
		},
	})
	if err != nil {
		c.printf("ERROR: Failed to run command: %v\n", err)
		return types.NewCheckError(types.KindProcess, err)
	}

	result.ExitCode = res.ExitCode
	result.Stderr = res.Stderr
	c.printf("EXIT: %d\n", res.ExitCode)
	fmt.Fprintf(w, "EXIT: %d\n", res.ExitCode)
	return nil
}

// appendIncludes copies each include file into w under its own banner
func (c *Checker) appendIncludes(w io.Writer, tc *types.TestCase) error {
	for _, name := range tc.Includes {
		fmt.Fprintln(w)
		fmt.Fprintln(w, bannerLine)
		fmt.Fprintln(w, name)
		fmt.Fprintln(w, bannerLine)
		if err := copyFile(w, options.ResolvePath(tc.Dir, name)); err != nil {
			c.printf("ERROR: Could not include %s - %v\n", name, err)
			return types.NewCheckError(types.KindFilesystem, err)
		}
	}
	return nil
}

func (c *Checker) compare(artifactPath string, result *types.TestResult) error {
	tc := result.Case
	outcome, err := c.acc.Compare(artifactPath, tc.AcceptDir, tc.Promote)
	switch {
	case err == nil:
	case errors.Is(err, acceptor.ErrNoAcceptedDir):
		c.printf("ERROR: Acceptor directory %s does not exist\n", tc.AcceptDir)
		return types.NewCheckError(types.KindFilesystem, err)
	case errors.Is(err, acceptor.ErrNotAccepted):
		c.printf("ERROR: Output is not accepted\n")
		if c.showDiff {
			c.printDiff(artifactPath, tc.AcceptDir)
		}
		return types.NewCheckError(types.KindMismatch, err)
	default:
		c.printf("ERROR: Could not compare acceptors - %v\n", err)
		return types.NewCheckError(types.KindFilesystem, err)
	}

	result.Matched = outcome.Matched
	result.Promoted = outcome.Promoted
	result.Digest = outcome.Digest
	result.Accepted = outcome.Members
	if outcome.Promoted != "" {
		metrics.RecordPromotion()
		c.printf("ADD: Added output as %s\n", filepath.Join(tc.AcceptDir, outcome.Promoted))
	}
	return nil
}

// printDiff prints a line diff of the artifact against the first accepted output
func (c *Checker) printDiff(artifactPath, acceptDir string) {
	members, err := acceptor.Members(acceptDir)
	if err != nil || len(members) == 0 {
		return
	}
	want, err := os.ReadFile(filepath.Join(acceptDir, members[0]))
	if err != nil {
		return
	}
	got, err := os.ReadFile(artifactPath)
	if err != nil {
		return
	}
	diff := cmp.Diff(strings.Split(string(want), "\n"), strings.Split(string(got), "\n"))
	c.printf("DIFF: %s (-accepted +output):\n%s", members[0], diff)
}

// saveBadOutput replaces the bad output log with the artifact
func (c *Checker) saveBadOutput(artifactPath string, result *types.TestResult) {
	logPath := filepath.Join(result.Case.Dir, BadOutputFile)
	if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
		c.log.Warn("Failed to remove bad output log", "file", logPath, "err", err)
	}
	if err := copyToFile(logPath, artifactPath); err != nil {
		c.printf("ERROR: Could not save bad output to %s - %v\n", logPath, err)
		metrics.RecordErrorDetails("bad_output", err)
		return
	}
	result.BadOutput = logPath
	c.printf("LOGGED: Saved bad output to %s\n", logPath)
}

// removeArtifact deletes the run artifact. A failure is recorded on the
// result but does not change its status.
func (c *Checker) removeArtifact(result *types.TestResult) {
	path := filepath.Join(result.Case.Dir, ArtifactFile)
	err := c.remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	c.printf("ERROR: Could not delete temporary file %s - %v\n", ArtifactFile, err)
	c.log.Error("Failed to delete run artifact", "file", path, "err", err)
	metrics.RecordErrorDetails("cleanup", err)
	result.CleanupError = err
}

func (c *Checker) finish(result *types.TestResult, start time.Time, errs []error) *types.TestResult {
	result.Duration = time.Since(start)
	result.Status = types.TestStatusPass
	if len(errs) > 0 {
		result.Status = types.TestStatusFail
		result.Error = errors.Join(errs...)
	} else {
		c.printf("SUCCESS: Output matched\n")
	}
	metrics.RecordCheck(result.Status, types.ErrorKinds(result.Error), result.Duration)
	c.log.Debug("Checked test case",
		"test", types.GetTestDisplayName(result),
		"status", result.Status,
		"duration", result.Duration)
	return result
}

func (c *Checker) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func texts(values []options.Value) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.Text)
	}
	return out
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func copyToFile(dst, src string) (err error) {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	}()
	return copyFile(out, src)
}
