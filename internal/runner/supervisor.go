package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrScriptNotFound means the script was absent from every configured
// search directory. No process is spawned in that case.
var ErrScriptNotFound = errors.New("script not found")

// SpawnError wraps a failure to launch the worker process at all.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn worker %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExecError reports a worker that ran but failed: non-zero exit, real
// error content on stderr, or a timeout kill.
type ExecError struct {
	ExitCode int
	Stderr   string
	Stdout   string
	TimedOut bool
}

func (e *ExecError) Error() string {
	if e.TimedOut {
		return "worker timed out"
	}
	detail := e.Stderr
	if detail == "" {
		detail = e.Stdout
	}
	return fmt.Sprintf("worker failed (exit %d): %s", e.ExitCode, truncate(detail, 512))
}

// ParseError reports worker stdout that was not the expected JSON.
type ParseError struct {
	Err    error
	Output string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse worker output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Supervisor launches one external worker process per invocation, feeds it
// input over stdin or argv, drains both streams and classifies the result.
// It applies no retry policy; that belongs to the caller.
type Supervisor struct {
	bin        string
	binArgs    []string
	scriptDirs []string
	benign     []string
	timeout    time.Duration
	runner     Runner
	log        *zap.Logger
}

// NewSupervisor wires a Supervisor. binArgs are interpreter flags placed
// before the script path (e.g. -X utf8 for python). timeout <= 0 means no
// limit: a hung worker hangs its job, the documented baseline behavior.
func NewSupervisor(bin string, binArgs, scriptDirs, benign []string, timeout time.Duration, r Runner, log *zap.Logger) *Supervisor {
	return &Supervisor{
		bin:        bin,
		binArgs:    binArgs,
		scriptDirs: scriptDirs,
		benign:     benign,
		timeout:    timeout,
		runner:     r,
		log:        log,
	}
}

// ResolveScript probes the configured directories for the named script
// and returns the first hit, or ErrScriptNotFound.
func (s *Supervisor) ResolveScript(name string) (string, error) {
	for _, dir := range s.scriptDirs {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s (searched %s)", ErrScriptNotFound, name, strings.Join(s.scriptDirs, ", "))
}

// RunScript resolves and runs a worker script. stdin, when non-nil, is the
// JSON payload delivered on the process's standard input; args are
// positional parameters. Returns the drained Outcome on success, or a
// SpawnError / ExecError / ErrScriptNotFound.
func (s *Supervisor) RunScript(ctx context.Context, script string, args []string, stdin []byte) (Outcome, error) {
	path, err := s.ResolveScript(script)
	if err != nil {
		return Outcome{}, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	argv := make([]string, 0, len(s.binArgs)+1+len(args))
	argv = append(argv, s.binArgs...)
	argv = append(argv, path)
	argv = append(argv, args...)
	outcome, err := s.runner.Run(ctx, s.bin, argv, stdin)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return outcome, &ExecError{
				ExitCode: -1,
				Stderr:   string(outcome.Stderr),
				Stdout:   string(outcome.Stdout),
				TimedOut: true,
			}
		}
		return outcome, &SpawnError{Name: script, Err: err}
	}

	if outcome.ExitCode != 0 || RealError(string(outcome.Stderr), s.benign) {
		return outcome, &ExecError{
			ExitCode: outcome.ExitCode,
			Stderr:   string(outcome.Stderr),
			Stdout:   string(outcome.Stdout),
		}
	}

	return outcome, nil
}

// RealError reports whether stderr content constitutes an actual failure.
// Stderr carrying any allow-listed warning substring is treated as benign
// noise in its entirety, mirroring how the data-science workers emit
// harmless numpy/pandas warnings on otherwise successful runs.
func RealError(stderr string, benign []string) bool {
	if strings.TrimSpace(stderr) == "" {
		return false
	}
	for _, marker := range benign {
		if strings.Contains(stderr, marker) {
			return false
		}
	}
	return true
}

// DefaultBenignStderr is the allow-list applied when none is configured.
var DefaultBenignStderr = []string{
	"RuntimeWarning",
	"Mean of empty slice",
	"FutureWarning",
}
