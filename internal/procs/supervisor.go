package procs

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/smazurov/streamproc/internal/logging"
)

// LaunchCallback is called after a launch registered new processes.
type LaunchCallback func(name string, pids []int)

// LaunchErrorCallback is called when a launch failed and was unwound.
type LaunchErrorCallback func(name string, err error)

// ExitCallback is called on the reaper goroutine after a process was reaped
// and its notifier, if any, has returned.
type ExitCallback func(rec Record, status ExitStatus)

// Options configures a new Supervisor.
type Options struct {
	// Logger for supervisor operations. If nil, uses slog.Default().
	Logger logging.Logger

	// MaxArgs caps the number of tokens in a command string (optional).
	// Defaults to DefaultMaxArgs.
	MaxArgs int

	// Env is the environment passed to children. If nil, the supervisor's
	// own environment at launch time is used.
	Env []string

	// NullDevice is the sink used for unwired pipeline streams.
	// Defaults to os.DevNull.
	NullDevice string

	// OnLaunch is called after a successful launch (optional).
	OnLaunch LaunchCallback

	// OnLaunchError is called after a failed launch (optional).
	OnLaunchError LaunchErrorCallback

	// OnExit is called for every reaped process (optional).
	OnExit ExitCallback
}

// Launcher starts and stops named helper processes.
type Launcher interface {
	StartSingle(name, command string) (int, error)
	StartPipeline(name string, commands ...string) (int, error)
	StartControlled(name string, argv []string, cio ControlledIO) (int, *Pipes, error)
	Stop(name string)
	IsActive(name string) bool
	LookupPID(name string) int
	Group(name string) []int
}

// NotifierRegistry accepts termination notifiers for active processes.
type NotifierRegistry interface {
	SetNotifier(pid int, fn Notifier) bool
}

// Controller is the full surface consumers of the supervisor depend on.
type Controller interface {
	Launcher
	NotifierRegistry
}

// Supervisor launches, tracks and reaps child processes.
type Supervisor struct {
	*Registry

	opts   Options
	logger logging.Logger

	// launchMu serializes launches so the active-name check and the
	// registration of a launch are atomic with respect to other callers.
	launchMu sync.Mutex

	reaperOnce sync.Once
	signals    chan os.Signal
	wake       chan struct{}
	done       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	closed     atomic.Bool
}

// NewSupervisor creates a supervisor. The SIGCHLD reaper is installed lazily
// on the first launch.
func NewSupervisor(opts *Options) *Supervisor {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.MaxArgs <= 0 {
		o.MaxArgs = DefaultMaxArgs
	}
	if o.NullDevice == "" {
		o.NullDevice = os.DevNull
	}

	var logger logging.Logger = slog.Default()
	if o.Logger != nil {
		logger = o.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		Registry: newRegistry(),
		opts:     o,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close stops the reaper. Processes still running are neither signaled nor
// reaped; callers wanting them gone call StopAll first. Launches after Close
// fail with ErrClosed.
func (s *Supervisor) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()

	// No reaper can be installed past this point.
	s.reaperOnce.Do(func() {})
	if s.signals != nil {
		<-s.done
	}
}

func (s *Supervisor) env() []string {
	if s.opts.Env != nil {
		return s.opts.Env
	}
	return os.Environ()
}
