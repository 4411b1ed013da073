package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRealError(t *testing.T) {
	benign := DefaultBenignStderr

	cases := []struct {
		name   string
		stderr string
		want   bool
	}{
		{"empty", "", false},
		{"whitespace only", "  \n\t", false},
		{"runtime warning", "foo.py:12: RuntimeWarning: invalid value", false},
		{"empty slice warning", "Mean of empty slice\n", false},
		{"future warning", "FutureWarning: df.append is deprecated", false},
		{"traceback", "Traceback (most recent call last):\n  KeyError: 'date_c'", true},
		{"plain error text", "could not open workbook", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RealError(tc.stderr, benign); got != tc.want {
				t.Fatalf("RealError(%q) = %v, want %v", tc.stderr, got, tc.want)
			}
		})
	}
}

func TestResolveScriptProbesAllDirs(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	script := filepath.Join(dir2, "full_pipeline.py")
	if err := os.WriteFile(script, []byte("print('ok')\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewSupervisor("python", nil, []string{dir1, dir2}, nil, 0, NewExecRunner(zap.NewNop()), zap.NewNop())

	got, err := s.ResolveScript("full_pipeline.py")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != script {
		t.Fatalf("resolved %s, want %s", got, script)
	}

	if _, err := s.ResolveScript("missing.py"); !errors.Is(err, ErrScriptNotFound) {
		t.Fatalf("expected ErrScriptNotFound, got %v", err)
	}
}

func TestRunScriptMissingScriptSpawnsNothing(t *testing.T) {
	spy := &spyRunner{}
	s := NewSupervisor("python", nil, []string{t.TempDir()}, nil, 0, spy, zap.NewNop())

	_, err := s.RunScript(context.Background(), "missing.py", nil, nil)
	if !errors.Is(err, ErrScriptNotFound) {
		t.Fatalf("expected ErrScriptNotFound, got %v", err)
	}
	if spy.calls != 0 {
		t.Fatalf("runner invoked %d times for a missing script", spy.calls)
	}
}

type spyRunner struct {
	calls   int
	outcome Outcome
	err     error
}

func (r *spyRunner) Run(ctx context.Context, name string, args []string, stdin []byte) (Outcome, error) {
	r.calls++
	return r.outcome, r.err
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func shSupervisor(t *testing.T, dir string, benign []string, timeout time.Duration) *Supervisor {
	t.Helper()
	return NewSupervisor("sh", nil, []string{dir}, benign, timeout, NewExecRunner(zap.NewNop()), zap.NewNop())
}

func TestRunScriptSuccessCapturesStdout(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "ok.sh", "#!/bin/sh\necho '{\"ok\":true}'\n")

	s := shSupervisor(t, dir, nil, 0)
	out, err := s.RunScript(context.Background(), "ok.sh", nil, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var payload struct {
		OK bool `json:"ok"`
	}
	if err := ParseJSON(out.Stdout, &payload); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !payload.OK {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestRunScriptStdinPayload(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "echo.sh", "#!/bin/sh\ncat\n")

	s := shSupervisor(t, dir, nil, 0)
	out, err := s.RunScript(context.Background(), "echo.sh", nil, []byte(`{"line":"D"}`))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if string(out.Stdout) != `{"line":"D"}` {
		t.Fatalf("stdin not piped through: %q", out.Stdout)
	}
}

func TestRunScriptNonZeroExitIsExecError(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "fail.sh", "#!/bin/sh\necho 'boom' >&2\nexit 3\n")

	s := shSupervisor(t, dir, DefaultBenignStderr, 0)
	_, err := s.RunScript(context.Background(), "fail.sh", nil, nil)

	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecError, got %v", err)
	}
	if execErr.ExitCode != 3 {
		t.Fatalf("exit code %d, want 3", execErr.ExitCode)
	}
	if execErr.Stderr == "" {
		t.Fatal("stderr not captured")
	}
}

func TestRunScriptBenignStderrIsSuccess(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "warn.sh", "#!/bin/sh\necho 'x.py:1: RuntimeWarning: overflow' >&2\necho done\n")

	s := shSupervisor(t, dir, DefaultBenignStderr, 0)
	out, err := s.RunScript(context.Background(), "warn.sh", nil, nil)
	if err != nil {
		t.Fatalf("benign stderr treated as failure: %v", err)
	}
	if string(out.Stdout) != "done\n" {
		t.Fatalf("unexpected stdout %q", out.Stdout)
	}
}

func TestRunScriptRealStderrFailsDespiteExitZero(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "noisy.sh", "#!/bin/sh\necho 'KeyError: date_c' >&2\nexit 0\n")

	s := shSupervisor(t, dir, DefaultBenignStderr, 0)
	_, err := s.RunScript(context.Background(), "noisy.sh", nil, nil)

	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecError for real stderr, got %v", err)
	}
	if execErr.ExitCode != 0 {
		t.Fatalf("exit code %d, want 0", execErr.ExitCode)
	}
}

func TestRunScriptMissingInterpreterIsSpawnError(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "ok.sh", "#!/bin/sh\necho hi\n")

	s := NewSupervisor("definitely-not-a-binary-xyz", nil, []string{dir}, nil, 0, NewExecRunner(zap.NewNop()), zap.NewNop())
	_, err := s.RunScript(context.Background(), "ok.sh", nil, nil)

	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
}

func TestRunScriptTimeoutKillsWorker(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "hang.sh", "#!/bin/sh\nsleep 30\n")

	s := shSupervisor(t, dir, nil, 100*time.Millisecond)

	start := time.Now()
	_, err := s.RunScript(context.Background(), "hang.sh", nil, nil)
	if time.Since(start) > 5*time.Second {
		t.Fatal("timeout did not kill the worker")
	}

	var execErr *ExecError
	if !errors.As(err, &execErr) || !execErr.TimedOut {
		t.Fatalf("expected timed-out ExecError, got %v", err)
	}
}

func TestLastJSONLine(t *testing.T) {
	out := []byte("loading model...\nprogress 50%\n{\"prediction\": 42.5}\n")

	var payload struct {
		Prediction float64 `json:"prediction"`
	}
	if err := LastJSONLine(out, &payload); err != nil {
		t.Fatalf("LastJSONLine: %v", err)
	}
	if payload.Prediction != 42.5 {
		t.Fatalf("prediction = %v", payload.Prediction)
	}

	var v any
	if err := LastJSONLine([]byte("no json here\nat all"), &v); err == nil {
		t.Fatal("expected ParseError for JSON-free output")
	}
}

func TestLines(t *testing.T) {
	out := []byte("\n{\"a\":1}\n\n  {\"b\":2}  \n")
	lines := Lines(out)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if string(lines[0]) != `{"a":1}` || string(lines[1]) != `{"b":2}` {
		t.Fatalf("unexpected lines: %q", lines)
	}
}
