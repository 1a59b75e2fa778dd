// Package process runs the program under test and streams its output.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Request describes one program invocation
type Request struct {
	Dir        string   // Working directory of the child
	Executable string   // Absolute, or relative to Dir
	Args       []string // Passed through as individual arguments
	// Stdout receives each line of standard output, without its line ending,
	// in the order the child wrote them. Nil discards stdout.
	Stdout func(line string)
}

// Result describes how the child exited
type Result struct {
	ExitCode        int // -1 when the child was terminated by a signal
	Duration        time.Duration
	Stderr          string // Tail of standard error
	StderrTruncated bool
}

// Config holds configuration for creating a new Runner
type Config struct {
	Log             log.Logger
	StderrTailBytes int // How much stderr to keep in the Result, 0 for the default
}

// Runner spawns programs and drains their output streams
type Runner struct {
	log        log.Logger
	stderrTail int
	tracer     trace.Tracer
}

// NewRunner creates a new process runner
func NewRunner(cfg Config) *Runner {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Runner{
		log:        cfg.Log,
		stderrTail: cfg.StderrTailBytes,
		tracer:     otel.Tracer("process runner"),
	}
}

// Run starts the program and blocks until it exits and both of its output
// streams are drained. stdout and stderr are read concurrently so the child
// never stalls on a full pipe. A non-zero exit code is not an error; only a
// failure to spawn, read from or wait for the child is.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("process %s", filepath.Base(req.Executable)))
	defer span.End()

	// No CommandContext: a started child is only ever stopped by its own exit.
	cmd := exec.Command(req.Executable, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = telemetry.InstrumentEnvironment(ctx, os.Environ())

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	r.log.Debug("Starting program", "exe", req.Executable, "args", req.Args, "dir", req.Dir)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", req.Executable, err)
	}

	stderrTail := newTailBuffer(r.stderrTail)
	var (
		wg                   sync.WaitGroup
		stdoutErr, stderrErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		stdoutErr = readLines(stdout, req.Stdout)
	}()
	go func() {
		defer wg.Done()
		_, stderrErr = io.Copy(stderrTail, stderr)
	}()
	// Both pipes must reach EOF before Wait closes them.
	wg.Wait()
	waitErr := cmd.Wait()
	duration := time.Since(start)

	result := &Result{
		ExitCode:        0,
		Duration:        duration,
		Stderr:          stderrTail.String(),
		StderrTruncated: stderrTail.Truncated(),
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("failed waiting for %s: %w", req.Executable, waitErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	r.log.Debug("Program exited", "exe", req.Executable, "exit", result.ExitCode, "duration", duration,
		"stderrBytes", stderrTail.TotalBytes())
	if result.Stderr != "" {
		r.log.Debug("Program stderr", "exe", req.Executable, "stderr", stripansi.Strip(result.Stderr),
			"truncated", result.StderrTruncated)
	}

	if stdoutErr != nil {
		return result, fmt.Errorf("failed to read stdout of %s: %w", req.Executable, stdoutErr)
	}
	if stderrErr != nil {
		return result, fmt.Errorf("failed to read stderr of %s: %w", req.Executable, stderrErr)
	}
	return result, nil
}

// readLines delivers each line of rd to fn until EOF. A final line without a
// trailing newline is delivered too.
func readLines(rd io.Reader, fn func(string)) error {
	br := bufio.NewReader(rd)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 && fn != nil {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			fn(line)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// Keep draining so the child is not blocked on a full pipe.
			_, _ = io.Copy(io.Discard, rd)
			return err
		}
	}
}
