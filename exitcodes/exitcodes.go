// Package exitcodes defines the exit codes of op-golden.
package exitcodes

// Exit code constants used by op-golden:
//
// * Success (0): every test matched its accepted output
// * TestFailure (1): one or more tests failed
// * RuntimeErr (2): the run itself could not complete, such as a missing test root
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
