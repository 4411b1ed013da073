package runner

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Outcome carries a worker process's fully drained streams and exit code.
type Outcome struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner lets us stub external commands in tests. A non-nil error means
// the process could not be spawned (or was killed by the context); a
// non-zero exit is reported through Outcome.ExitCode, not the error.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdin []byte) (Outcome, error)
}

type execRunner struct {
	log *zap.Logger
}

// NewExecRunner returns the production Runner backed by os/exec.
func NewExecRunner(log *zap.Logger) Runner {
	return &execRunner{log: log}
}

func (r *execRunner) Run(ctx context.Context, name string, args []string, stdin []byte) (Outcome, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	err := cmd.Run()
	dur := time.Since(start)

	outcome := Outcome{Stdout: out.Bytes(), Stderr: errb.Bytes()}

	if err != nil {
		if ctx.Err() != nil {
			r.log.Error("worker killed by context",
				zap.String("cmd", name),
				zap.Duration("duration", dur),
				zap.Error(ctx.Err()),
			)
			return outcome, ctx.Err()
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			outcome.ExitCode = exitErr.ExitCode()
			r.log.Warn("worker exited non-zero",
				zap.String("cmd", name),
				zap.Int("exitCode", outcome.ExitCode),
				zap.Duration("duration", dur),
				zap.String("stderr", truncate(errb.String(), 8<<10)),
			)
			return outcome, nil
		}
		r.log.Error("worker spawn failed",
			zap.String("cmd", name),
			zap.Duration("duration", dur),
			zap.Error(err),
		)
		return outcome, err
	}

	r.log.Debug("worker finished",
		zap.String("cmd", name),
		zap.Duration("duration", dur),
		zap.Int("stdoutBytes", out.Len()),
		zap.Int("stderrBytes", errb.Len()),
	)
	return outcome, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
