// Package runner discovers golden-master test configurations under a root
// directory and checks each of them in turn.
//
// The walk is depth-first and sequential. Each directory yields its own
// totals which the caller adds to those of its parent, so no counters are
// shared between directories. Symlinked directories are not followed.
package runner
