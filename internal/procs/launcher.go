package procs

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// stage is a resolved command ready to be forked.
type stage struct {
	path    string
	argv    []string
	command string
}

// ControlledIO selects the standard streams of a controlled launch. A nil
// field requests a fresh pipe whose caller-side end is returned in Pipes.
type ControlledIO struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// Pipes holds the caller-side pipe ends of a controlled launch. Fields are
// nil for streams the caller supplied.
type Pipes struct {
	Stdin  *os.File // write end feeding the child's stdin
	Stdout *os.File // read end of the child's stdout
	Stderr *os.File // read end of the child's stderr
}

// Close closes every non-nil pipe end.
func (p *Pipes) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, f := range []*os.File{p.Stdin, p.Stdout, p.Stderr} {
		if f != nil {
			errs = append(errs, f.Close())
		}
	}
	return errors.Join(errs...)
}

// StartSingle starts command under name with the supervisor's standard
// streams. If name is already active the existing lead PID is returned.
func (s *Supervisor) StartSingle(name, command string) (int, error) {
	return s.StartPipeline(name, command)
}

// StartPipeline2 starts cmd | cmd2 under name and returns the PID of cmd.
func (s *Supervisor) StartPipeline2(name, cmd, cmd2 string) (int, error) {
	return s.StartPipeline(name, cmd, cmd2)
}

// StartPipeline3 starts cmd | cmd2 | cmd3 under name and returns the PID of
// cmd.
func (s *Supervisor) StartPipeline3(name, cmd, cmd2, cmd3 string) (int, error) {
	return s.StartPipeline(name, cmd, cmd2, cmd3)
}

// StartPipeline starts the commands chained stdout->stdin and registers every
// stage under name. A single command inherits the supervisor's standard
// streams. For longer chains the first stage reads the null device, every
// stage but the last writes stderr to the null device, and the last stage
// writes stdout to the null device and keeps the supervisor's stderr.
//
// If any stage fails to start, all pipe ends are closed and the stages that
// were already started are sent SIGTERM and released from name before the
// error is returned.
func (s *Supervisor) StartPipeline(name string, commands ...string) (int, error) {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	if err := s.ensureReaper(); err != nil {
		return 0, err
	}
	if pid := s.LookupPID(name); pid != 0 {
		s.logger.Debug("Process already active", "name", name, "pid", pid)
		return pid, nil
	}
	if len(commands) == 0 {
		return 0, s.launchFailed(name, ErrEmptyCommand)
	}

	stages := make([]stage, len(commands))
	for i, command := range commands {
		st, err := s.prepare(command)
		if err != nil {
			return 0, s.launchFailed(name, err)
		}
		stages[i] = st
	}

	launch := uuid.NewString()

	if len(stages) == 1 {
		pid, err := s.forkExec(stages[0], []uintptr{0, 1, 2})
		if err != nil {
			return 0, s.launchFailed(name, err)
		}
		s.register(name, launch, 0, pid, stages[0].command)
		s.logger.Info("Process started", "name", name, "pid", pid, "command", stages[0].command)
		s.launched(name, []int{pid})
		return pid, nil
	}

	fds := newFDSet()
	defer fds.closeAll()

	null, err := fds.openNull(s.opts.NullDevice)
	if err != nil {
		return 0, s.launchFailed(name, err)
	}

	links := make([]pipeEnds, len(stages)-1)
	for i := range links {
		if links[i], err = fds.pipe(); err != nil {
			return 0, s.launchFailed(name, err)
		}
	}

	last := len(stages) - 1
	started := make([]int, 0, len(stages))
	for i, st := range stages {
		stdin, stdout, stderr := null, null, null
		if i > 0 {
			stdin = links[i-1].r
		}
		if i < last {
			stdout = links[i].w
		} else {
			stderr = 2
		}

		pid, forkErr := s.forkExec(st, []uintptr{uintptr(stdin), uintptr(stdout), uintptr(stderr)})
		if forkErr != nil {
			s.unwind(name, started)
			return 0, s.launchFailed(name, fmt.Errorf("stage %d: %w", i, forkErr))
		}
		s.register(name, launch, i, pid, st.command)
		started = append(started, pid)

		// Ends consumed by this stage are no longer needed in the parent.
		if i > 0 {
			fds.close(links[i-1].r)
		}
		if i < last {
			fds.close(links[i].w)
		}
	}

	s.logger.Info("Pipeline started", "name", name, "pids", started, "commands", strings.Join(commands, " | "))
	s.launched(name, started)
	return started[0], nil
}

// StartControlled starts argv under name with each standard stream either
// taken from cio or connected to a new pipe. The caller-side ends of the
// created pipes are returned and owned by the caller. If name is already
// active the existing lead PID is returned with nil Pipes.
func (s *Supervisor) StartControlled(name string, argv []string, cio ControlledIO) (int, *Pipes, error) {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	if err := s.ensureReaper(); err != nil {
		return 0, nil, err
	}
	if pid := s.LookupPID(name); pid != 0 {
		s.logger.Debug("Process already active", "name", name, "pid", pid)
		return pid, nil, nil
	}

	st, err := s.resolve(argv)
	if err != nil {
		return 0, nil, s.launchFailed(name, err)
	}

	fds := newFDSet()
	defer fds.closeAll()

	supplied := [3]*os.File{cio.Stdin, cio.Stdout, cio.Stderr}
	var child [3]uintptr
	callerEnd := [3]int{-1, -1, -1}
	for i, f := range supplied {
		if f != nil {
			child[i] = f.Fd()
			continue
		}
		p, pipeErr := fds.pipe()
		if pipeErr != nil {
			return 0, nil, s.launchFailed(name, pipeErr)
		}
		if i == 0 {
			child[i], callerEnd[i] = uintptr(p.r), p.w
		} else {
			child[i], callerEnd[i] = uintptr(p.w), p.r
		}
	}

	pid, err := s.forkExec(st, child[:])
	runtime.KeepAlive(supplied)
	if err != nil {
		return 0, nil, s.launchFailed(name, err)
	}
	s.register(name, uuid.NewString(), 0, pid, st.command)

	// Child-side ends are closed by the deferred closeAll.
	pipes := &Pipes{}
	if callerEnd[0] >= 0 {
		pipes.Stdin = fds.adopt(callerEnd[0], name+"-stdin")
	}
	if callerEnd[1] >= 0 {
		pipes.Stdout = fds.adopt(callerEnd[1], name+"-stdout")
	}
	if callerEnd[2] >= 0 {
		pipes.Stderr = fds.adopt(callerEnd[2], name+"-stderr")
	}

	s.logger.Info("Controlled process started", "name", name, "pid", pid, "command", st.command,
		"stdin_pipe", pipes.Stdin != nil, "stdout_pipe", pipes.Stdout != nil, "stderr_pipe", pipes.Stderr != nil)
	s.launched(name, []int{pid})
	return pid, pipes, nil
}

// prepare tokenizes command and resolves its executable.
func (s *Supervisor) prepare(command string) (stage, error) {
	argv, err := Tokenize(command, s.opts.MaxArgs)
	if err != nil {
		return stage{}, err
	}
	return s.resolve(argv)
}

// resolve looks up argv[0] in PATH.
func (s *Supervisor) resolve(argv []string) (stage, error) {
	if len(argv) == 0 || argv[0] == "" {
		return stage{}, ErrEmptyCommand
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return stage{}, fmt.Errorf("%w: %w", ErrExecFailed, err)
	}
	return stage{path: path, argv: argv, command: strings.Join(argv, " ")}, nil
}

// forkExec starts st with files mapped onto descriptors 0, 1 and 2. A failed
// image replacement is reported here by the runtime; the child never returns
// into supervisor code.
func (s *Supervisor) forkExec(st stage, files []uintptr) (int, error) {
	pid, err := syscall.ForkExec(st.path, st.argv, &syscall.ProcAttr{
		Env:   s.env(),
		Files: files,
	})
	if err != nil {
		return 0, classifyStartError(st.argv[0], err)
	}
	return pid, nil
}

// register records a freshly forked process and prompts the reaper, which
// may have missed its SIGCHLD.
func (s *Supervisor) register(name, launch string, stageIdx, pid int, command string) {
	s.insert(Record{
		PID:       pid,
		Name:      name,
		Group:     launch,
		Stage:     stageIdx,
		Command:   command,
		StartedAt: time.Now(),
	})
	s.kick()
}

// unwind terminates stages of a failed launch by PID and frees the name.
// The records remain until the reaper collects the processes.
func (s *Supervisor) unwind(name string, started []int) {
	if len(started) == 0 {
		return
	}
	s.logger.Warn("Unwinding partially started pipeline", "name", name, "pids", started)
	s.release(name, started)
	for _, pid := range started {
		s.StopPID(pid)
	}
}

func (s *Supervisor) launched(name string, pids []int) {
	if s.opts.OnLaunch != nil {
		s.opts.OnLaunch(name, pids)
	}
}

func (s *Supervisor) launchFailed(name string, err error) error {
	s.logger.Error("Process could not be started", "name", name, "error", err)
	if s.opts.OnLaunchError != nil {
		s.opts.OnLaunchError(name, err)
	}
	return err
}
