// Package types contains shared types used across the golden-master harness
package types

import (
	"path/filepath"
	"strings"
	"time"
)

// TestStatus represents the possible states of a test execution
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
)

// TestMetadata identifies a single test configuration file
type TestMetadata struct {
	ID         string // Path of the config file relative to the run root
	Dir        string // Directory the config file was discovered in
	ConfigFile string // Base name of the config file
}

// TestResult captures the outcome of a single test run
type TestResult struct {
	Metadata     TestMetadata
	Case         *TestCase     // nil when the configuration never validated
	Status       TestStatus    // Pass only when every check step succeeded
	Error        error         // Joined CheckErrors for a failed test
	Duration     time.Duration // Track test execution time
	ExitCode     int           // Exit code of the program under test, -1 if it never ran
	Matched      string        // Accepted file that matched the output
	Promoted     string        // Accepted file created by promotion
	Digest       string        // Digest of the accepted set after comparison
	Accepted     []string      // Accepted set after comparison
	BadOutput    string        // Path of the saved bad output log, if any
	Stderr       string        // Tail of the program's standard error
	CleanupError error         // Failure to remove the run artifact; does not affect Status
}

// Passed reports whether the test passed
func (tr *TestResult) Passed() bool {
	return tr.Status == TestStatusPass
}

// GetTestDisplayName returns a human readable label for a test, preferring its description
func GetTestDisplayName(result *TestResult) string {
	if result.Case != nil && result.Case.Description != "" {
		return result.Case.Description
	}
	if result.Metadata.ID != "" {
		return result.Metadata.ID
	}
	return filepath.Join(result.Metadata.Dir, result.Metadata.ConfigFile)
}

// TestCase is a validated test configuration, scoped to one check
type TestCase struct {
	Description  string
	Executable   string
	Args         []string
	Includes     []string
	Deletes      []string
	AcceptDir    string
	Promote      bool
	IgnorePrompt bool
	Dir          string // Active directory, after configuration chaining
}

// CommandLine renders the program invocation for logs and reports
func (tc *TestCase) CommandLine() string {
	if len(tc.Args) == 0 {
		return tc.Executable
	}
	return tc.Executable + " " + strings.Join(tc.Args, " ")
}
