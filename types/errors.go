package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a single test case failed
type ErrorKind string

const (
	// KindConfiguration covers malformed syntax, missing or unknown options and wrong argument counts
	KindConfiguration ErrorKind = "configuration"
	// KindFilesystem covers missing executables or accepted directories and artifact I/O
	KindFilesystem ErrorKind = "filesystem"
	// KindProcess covers failures to spawn or wait for the program under test
	KindProcess ErrorKind = "process"
	// KindMismatch means the output matched no accepted variant and was not promoted
	KindMismatch ErrorKind = "mismatch"
)

// CheckError is a failure of one step of a check, tagged with its kind
type CheckError struct {
	Kind ErrorKind
	Err  error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *CheckError) Unwrap() error {
	return e.Err
}

// NewCheckError creates a new CheckError
func NewCheckError(kind ErrorKind, err error) *CheckError {
	return &CheckError{Kind: kind, Err: err}
}

// ErrorKinds returns the kinds of every CheckError found in err, in order.
// Joined errors are walked so a test that failed several steps reports all of them.
func ErrorKinds(err error) []ErrorKind {
	if err == nil {
		return nil
	}
	var kinds []ErrorKind
	var walk func(error)
	walk = func(err error) {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}
			return
		}
		var checkErr *CheckError
		if errors.As(err, &checkErr) {
			kinds = append(kinds, checkErr.Kind)
		}
	}
	walk(err)
	return kinds
}

// HasKind checks if err is or wraps a CheckError of the given kind
func HasKind(err error, kind ErrorKind) bool {
	for _, k := range ErrorKinds(err) {
		if k == kind {
			return true
		}
	}
	return false
}
