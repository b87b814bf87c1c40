package procs

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSupervisor creates a supervisor that stops and reaps everything it
// started when the test ends.
func newTestSupervisor(t *testing.T, opts *Options) *Supervisor {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	s := NewSupervisor(opts)
	t.Cleanup(func() {
		s.StopAll()
		waitFor(t, 2*time.Second, func() bool { return s.Count() == 0 })
		s.Close()
	})
	return s
}

// waitFor polls cond until it holds, failing the test on timeout.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for condition")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// exitRecorder collects notifier invocations.
type exitRecorder struct {
	mu     sync.Mutex
	calls  int
	pid    int
	status ExitStatus
	done   chan struct{}
}

func newExitRecorder() *exitRecorder {
	return &exitRecorder{done: make(chan struct{})}
}

func (r *exitRecorder) notify(pid int, status ExitStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.pid = pid
	r.status = status
	if r.calls == 1 {
		close(r.done)
	}
}

func (r *exitRecorder) wait(t *testing.T) (int, ExitStatus) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for termination notifier")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pid, r.status
}

func (r *exitRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// writeBrokenExecutable creates a file that passes PATH lookup but cannot be
// executed by the kernel.
func writeBrokenExecutable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "broken")
	if err := os.WriteFile(path, []byte{0x00, 0x01, 0x02, 0x03}, 0o755); err != nil {
		t.Fatalf("failed to write broken executable: %v", err)
	}
	return path
}

func TestStartSingleIdempotent(t *testing.T) {
	var launches atomic.Int32
	s := newTestSupervisor(t, &Options{
		OnLaunch: func(string, []int) { launches.Add(1) },
	})

	pid, err := s.StartSingle("svc", "sleep 10")
	if err != nil {
		t.Fatalf("StartSingle failed: %v", err)
	}
	if pid == 0 {
		t.Fatal("expected non-zero pid")
	}

	again, err := s.StartSingle("svc", "sleep 10")
	if err != nil {
		t.Fatalf("second StartSingle failed: %v", err)
	}
	if again != pid {
		t.Errorf("second StartSingle returned %d, want existing %d", again, pid)
	}
	if got := s.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
	if got := launches.Load(); got != 1 {
		t.Errorf("expected exactly one launch, got %d", got)
	}
	if got := s.LookupName(pid); got != "svc" {
		t.Errorf("LookupName(%d) = %q, want svc", pid, got)
	}
}

func TestShortLivedProcessIsReaped(t *testing.T) {
	s := newTestSupervisor(t, nil)

	if _, err := s.StartSingle("keep", "sleep 10"); err != nil {
		t.Fatalf("StartSingle failed: %v", err)
	}
	if _, err := s.StartSingle("svc", "true"); err != nil {
		t.Fatalf("StartSingle failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return !s.IsActive("svc") })
	if got := s.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1 after short-lived exit", got)
	}
	if !s.IsActive("keep") {
		t.Error("long-running process must stay active")
	}
}

func TestSetNotifierInactivePID(t *testing.T) {
	s := newTestSupervisor(t, nil)
	rec := newExitRecorder()

	if s.SetNotifier(999999, rec.notify) {
		t.Fatal("SetNotifier on unknown pid must return false")
	}

	pid, err := s.StartSingle("short", "true")
	if err != nil {
		t.Fatalf("StartSingle failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return !s.IsActivePID(pid) })

	if s.SetNotifier(pid, rec.notify) {
		t.Error("SetNotifier on reaped pid must return false")
	}
	time.Sleep(50 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("rejected notifier was invoked %d times", rec.count())
	}
}

func TestNotifierExitCode(t *testing.T) {
	s := newTestSupervisor(t, nil)
	rec := newExitRecorder()

	// Blocks on stdin, so the notifier is attached before the child exits.
	pid, pipes, err := s.StartControlled("exit3", []string{"sh", "-c", "read x; exit 3"}, ControlledIO{})
	if err != nil {
		t.Fatalf("StartControlled failed: %v", err)
	}
	defer pipes.Close()

	if !s.SetNotifier(pid, rec.notify) {
		t.Fatal("SetNotifier on active pid must return true")
	}
	pipes.Stdin.Close()

	gotPID, status := rec.wait(t)
	if gotPID != pid {
		t.Errorf("notifier pid = %d, want %d", gotPID, pid)
	}
	if !status.Exited() || status.Code() != 3 {
		t.Errorf("status = %s, want exited (3)", status)
	}
	if s.IsActivePID(pid) {
		t.Error("record must be removed before the notifier runs")
	}
}

func TestNotifierSignaledOnce(t *testing.T) {
	var exits atomic.Int32
	s := newTestSupervisor(t, &Options{
		OnExit: func(Record, ExitStatus) { exits.Add(1) },
	})
	rec := newExitRecorder()

	pid, err := s.StartSingle("sleeper", "sleep 10")
	if err != nil {
		t.Fatalf("StartSingle failed: %v", err)
	}
	if !s.SetNotifier(pid, rec.notify) {
		t.Fatal("SetNotifier on active pid must return true")
	}

	s.Stop("sleeper")

	_, status := rec.wait(t)
	if !status.Signaled() || status.Signal() != syscall.SIGTERM {
		t.Errorf("status = %s, want signaled (SIGTERM)", status)
	}
	if status.Legacy() != -int(syscall.SIGTERM) {
		t.Errorf("Legacy() = %d, want %d", status.Legacy(), -int(syscall.SIGTERM))
	}

	// Further wake-ups must not fire it again.
	s.kick()
	time.Sleep(50 * time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Errorf("notifier fired %d times, want 1", got)
	}
	if got := exits.Load(); got != 1 {
		t.Errorf("OnExit fired %d times, want 1", got)
	}
}

func TestStartPipeline2ForwardsOutput(t *testing.T) {
	s := newTestSupervisor(t, nil)
	out := filepath.Join(t.TempDir(), "out.txt")

	pid, err := s.StartPipeline2("p", "echo hello", "tee "+out)
	if err != nil {
		t.Fatalf("StartPipeline2 failed: %v", err)
	}
	if pid == 0 {
		t.Fatal("expected lead pid")
	}

	waitFor(t, 2*time.Second, func() bool { return !s.IsActive("p") })

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read pipeline output: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("second stage received %q, want %q", data, "hello\n")
	}
}

func TestStartPipeline3RegistersEveryStage(t *testing.T) {
	s := newTestSupervisor(t, nil)

	pid, err := s.StartPipeline3("p3", "sleep 10", "cat", "cat")
	if err != nil {
		t.Fatalf("StartPipeline3 failed: %v", err)
	}

	group := s.Group("p3")
	if len(group) != 3 {
		t.Fatalf("Group(p3) = %v, want 3 pids", group)
	}
	if group[0] != pid {
		t.Errorf("lead pid = %d, want first stage %d", pid, group[0])
	}
	lead, _ := s.Lookup(pid)
	if lead.Group == "" {
		t.Fatal("lead record has no launch group")
	}
	for i, member := range group {
		if s.LookupName(member) != "p3" {
			t.Errorf("stage %d not registered under p3", member)
		}
		rec, ok := s.Lookup(member)
		if !ok || rec.Stage != i || rec.Group != lead.Group {
			t.Errorf("stage %d record = %+v, want stage %d in group %s", member, rec, i, lead.Group)
		}
	}

	other, err := s.StartSingle("other", "sleep 10")
	if err != nil {
		t.Fatalf("StartSingle failed: %v", err)
	}
	if rec, _ := s.Lookup(other); rec.Group == lead.Group {
		t.Error("separate launches share a group id")
	}
	s.Stop("other")

	again, err := s.StartPipeline3("p3", "sleep 10", "cat", "cat")
	if err != nil || again != pid {
		t.Errorf("relaunch under active name = (%d, %v), want (%d, nil)", again, err, pid)
	}

	s.Stop("p3")
	waitFor(t, 2*time.Second, func() bool { return s.Count() == 0 })
}

func TestPipelineStageFailureUnwinds(t *testing.T) {
	var failures atomic.Int32
	s := newTestSupervisor(t, &Options{
		OnLaunchError: func(string, error) { failures.Add(1) },
	})
	broken := writeBrokenExecutable(t)

	pid, err := s.StartPipeline2("p", "sleep 10", broken)
	if !errors.Is(err, ErrExecFailed) {
		t.Fatalf("expected ErrExecFailed, got %v", err)
	}
	if pid != 0 {
		t.Errorf("failed launch returned pid %d, want 0", pid)
	}
	if s.IsActive("p") {
		t.Error("failed launch must not leave the name registered")
	}
	if got := failures.Load(); got != 1 {
		t.Errorf("OnLaunchError fired %d times, want 1", got)
	}

	// The first stage was started and must be terminated and reaped.
	waitFor(t, 2*time.Second, func() bool { return s.Count() == 0 })
}

func TestStartFailures(t *testing.T) {
	s := newTestSupervisor(t, nil)
	broken := writeBrokenExecutable(t)

	tests := []struct {
		name    string
		command string
		wantErr error
	}{
		{"missing executable", "/nonexistent/command/that/does/not/exist", ErrExecFailed},
		{"not executable format", broken, ErrExecFailed},
		{"empty command", "   ", ErrEmptyCommand},
		{"too many arguments", "echo" + strings.Repeat(" x", DefaultMaxArgs), ErrTooManyArgs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pid, err := s.StartSingle(tt.name, tt.command)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("StartSingle error = %v, want %v", err, tt.wantErr)
			}
			if pid != 0 {
				t.Errorf("pid = %d, want 0", pid)
			}
			if s.IsActive(tt.name) || s.Count() != 0 {
				t.Error("failed launch must not register anything")
			}
		})
	}
}

func TestStartControlledAllPipes(t *testing.T) {
	s := newTestSupervisor(t, nil)

	argv := []string{"sh", "-c", `read line; echo "out:$line"; echo "err:$line" >&2`}
	pid, pipes, err := s.StartControlled("co", argv, ControlledIO{})
	if err != nil {
		t.Fatalf("StartControlled failed: %v", err)
	}
	if pid == 0 || pipes == nil {
		t.Fatal("expected pid and pipes")
	}
	defer pipes.Close()
	if pipes.Stdin == nil || pipes.Stdout == nil || pipes.Stderr == nil {
		t.Fatalf("expected three caller-side pipe ends, got %+v", pipes)
	}

	if _, err := io.WriteString(pipes.Stdin, "ping\n"); err != nil {
		t.Fatalf("write to stdin failed: %v", err)
	}
	pipes.Stdin.Close()

	stdout, err := io.ReadAll(pipes.Stdout)
	if err != nil {
		t.Fatalf("read stdout failed: %v", err)
	}
	stderr, err := io.ReadAll(pipes.Stderr)
	if err != nil {
		t.Fatalf("read stderr failed: %v", err)
	}

	if string(stdout) != "out:ping\n" {
		t.Errorf("stdout = %q, want %q", stdout, "out:ping\n")
	}
	if string(stderr) != "err:ping\n" {
		t.Errorf("stderr = %q, want %q", stderr, "err:ping\n")
	}

	waitFor(t, 2*time.Second, func() bool { return !s.IsActivePID(pid) })
}

func TestStartControlledCallerFile(t *testing.T) {
	s := newTestSupervisor(t, nil)

	path := filepath.Join(t.TempDir(), "stdout.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()

	pid, pipes, err := s.StartControlled("echo", []string{"echo", "hi"}, ControlledIO{Stdout: f})
	if err != nil {
		t.Fatalf("StartControlled failed: %v", err)
	}
	defer pipes.Close()

	if pipes.Stdout != nil {
		t.Error("caller-supplied stdout must not produce a pipe end")
	}
	if pipes.Stdin == nil || pipes.Stderr == nil {
		t.Error("expected pipes for stdin and stderr")
	}

	waitFor(t, 2*time.Second, func() bool { return !s.IsActivePID(pid) })

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if string(data) != "hi\n" {
		t.Errorf("output = %q, want %q", data, "hi\n")
	}
}

func TestStartControlledAlreadyActive(t *testing.T) {
	s := newTestSupervisor(t, nil)

	pid, err := s.StartSingle("busy", "sleep 10")
	if err != nil {
		t.Fatalf("StartSingle failed: %v", err)
	}

	got, pipes, err := s.StartControlled("busy", []string{"cat"}, ControlledIO{})
	if err != nil {
		t.Fatalf("StartControlled failed: %v", err)
	}
	if got != pid || pipes != nil {
		t.Errorf("StartControlled on active name = (%d, %v), want (%d, nil)", got, pipes, pid)
	}
}

func TestStopSignalsEachPIDOnce(t *testing.T) {
	s := newTestSupervisor(t, nil)
	marks := filepath.Join(t.TempDir(), "marks")
	script := `trap 'echo term >> "$0"' TERM; echo ready; while :; do sleep 0.05; done`

	pid, pipes, err := s.StartControlled("stubborn", []string{"sh", "-c", script, marks}, ControlledIO{})
	if err != nil {
		t.Fatalf("StartControlled failed: %v", err)
	}
	defer pipes.Close()
	defer func() {
		_ = syscall.Kill(pid, syscall.SIGKILL)
		waitFor(t, 2*time.Second, func() bool { return !s.IsActivePID(pid) })
	}()

	ready := make([]byte, len("ready\n"))
	if _, err := io.ReadFull(pipes.Stdout, ready); err != nil {
		t.Fatalf("child never became ready: %v", err)
	}

	s.Stop("stubborn")

	count := func() int {
		data, _ := os.ReadFile(marks)
		return strings.Count(string(data), "term")
	}
	waitFor(t, 2*time.Second, func() bool { return count() > 0 })
	time.Sleep(200 * time.Millisecond)

	if got := count(); got != 1 {
		t.Errorf("child received %d SIGTERMs, want 1", got)
	}
	if !s.IsActive("stubborn") {
		t.Error("child trapping SIGTERM should still be active")
	}
}

func TestStopMissingIsNoop(t *testing.T) {
	s := newTestSupervisor(t, nil)

	if _, err := s.StartSingle("keep", "sleep 10"); err != nil {
		t.Fatalf("StartSingle failed: %v", err)
	}

	s.Stop("missing")
	s.StopPID(999999)

	if got := s.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
	if !s.IsActive("keep") {
		t.Error("unrelated process must stay active")
	}
}

func TestStopAll(t *testing.T) {
	s := newTestSupervisor(t, nil)

	for _, name := range []string{"a", "b", "c"} {
		if _, err := s.StartSingle(name, "sleep 10"); err != nil {
			t.Fatalf("StartSingle(%s) failed: %v", name, err)
		}
	}
	if got := s.Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}

	s.StopAll()
	waitFor(t, 2*time.Second, func() bool { return s.Count() == 0 })
}

func TestLaunchHooks(t *testing.T) {
	var mu sync.Mutex
	var launchedName string
	var launchedPIDs []int
	exited := make(chan Record, 4)

	s := newTestSupervisor(t, &Options{
		OnLaunch: func(name string, pids []int) {
			mu.Lock()
			defer mu.Unlock()
			launchedName, launchedPIDs = name, pids
		},
		OnExit: func(rec Record, _ ExitStatus) { exited <- rec },
	})

	pid, err := s.StartPipeline2("hooked", "echo x", "cat")
	if err != nil {
		t.Fatalf("StartPipeline2 failed: %v", err)
	}

	mu.Lock()
	if launchedName != "hooked" || len(launchedPIDs) != 2 || launchedPIDs[0] != pid {
		t.Errorf("OnLaunch got (%q, %v), want (hooked, [%d ...])", launchedName, launchedPIDs, pid)
	}
	mu.Unlock()

	stages := map[int]bool{}
	for range 2 {
		select {
		case rec := <-exited:
			if rec.Name != "hooked" {
				t.Errorf("OnExit record name = %q, want hooked", rec.Name)
			}
			stages[rec.Stage] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for OnExit")
		}
	}
	if !stages[0] || !stages[1] {
		t.Errorf("expected exits for stages 0 and 1, got %v", stages)
	}
}

func TestLaunchAfterClose(t *testing.T) {
	s := NewSupervisor(&Options{Logger: testLogger()})
	s.Close()

	if _, err := s.StartSingle("late", "true"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, _, err := s.StartControlled("late", []string{"true"}, ControlledIO{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// Close is idempotent.
	s.Close()
}

func TestVanishedProcessFiresOnExit(t *testing.T) {
	var exits []ExitStatus
	s := NewSupervisor(&Options{
		Logger: testLogger(),
		OnExit: func(_ Record, status ExitStatus) { exits = append(exits, status) },
	})
	defer s.Close()

	// Our own PID is not our child, so wait4 reports ECHILD for it.
	pid := os.Getpid()
	s.insert(Record{PID: pid, Name: "ghost"})
	rec := newExitRecorder()
	if !s.SetNotifier(pid, rec.notify) {
		t.Fatal("SetNotifier rejected a registered pid")
	}

	if n := s.reapReady(); n != 0 {
		t.Errorf("reapReady() = %d, want 0 observed exits", n)
	}
	if s.IsActive("ghost") || s.Count() != 0 {
		t.Error("vanished process should be removed from the registry")
	}
	if len(exits) != 1 || exits[0].Known() {
		t.Fatalf("OnExit statuses = %v, want one unknown status", exits)
	}
	if rec.count() != 0 {
		t.Error("notifier must not fire without an observed exit")
	}
}

func TestSupervisorsDoNotStealChildren(t *testing.T) {
	a := newTestSupervisor(t, nil)
	b := newTestSupervisor(t, nil)
	rec := newExitRecorder()

	pid, _, err := a.StartControlled("mine", []string{"sh", "-c", "read x; exit 5"}, ControlledIO{})
	if err != nil {
		t.Fatalf("StartControlled failed: %v", err)
	}
	if _, err := b.StartSingle("theirs", "true"); err != nil {
		t.Fatalf("StartSingle failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return b.Count() == 0 })

	if !a.IsActivePID(pid) {
		t.Fatal("process of another supervisor must not be reaped")
	}
	a.SetNotifier(pid, rec.notify)
	a.Stop("mine")

	_, status := rec.wait(t)
	if !status.Signaled() {
		t.Errorf("status = %s, want signaled", status)
	}
}

func TestLogOutput(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	parser := func(line string) (string, string) {
		if rest, ok := strings.CutPrefix(line, "E "); ok {
			return "error", rest
		}
		return "info", line
	}

	n := LogOutput(strings.NewReader("E broken\nplain\n"), "stderr", logger, parser)
	if n != 2 {
		t.Errorf("LogOutput read %d lines, want 2", n)
	}

	out := buf.String()
	if !strings.Contains(out, `level=ERROR msg=broken source=stderr`) {
		t.Errorf("missing error line in output: %s", out)
	}
	if !strings.Contains(out, `level=INFO msg=plain source=stderr`) {
		t.Errorf("missing info line in output: %s", out)
	}
}
