package helpers

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/streamproc/internal/events"
	"github.com/smazurov/streamproc/internal/ffmpeg"
	"github.com/smazurov/streamproc/internal/logging"
	"github.com/smazurov/streamproc/internal/metrics"
	"github.com/smazurov/streamproc/internal/procs"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Service defines the operations on declared helpers.
type Service interface {
	// StartAll loads the store and starts every enabled helper.
	StartAll() error

	// StopAll sends SIGTERM to every running helper.
	StopAll()

	Start(name string) error
	Stop(name string) error

	// Restart stops the helper and starts it again once all of its
	// processes have been reaped.
	Restart(name string) error

	Get(name string) (Info, error)
	List() []Info

	// Create persists a new helper and starts it if enabled.
	Create(name string, spec Spec) (Info, error)

	// Delete stops a helper and removes it from the store.
	Delete(name string) error

	// Reconcile brings running helpers in line with specs: new enabled
	// helpers start, removed or disabled ones stop, and helpers whose
	// commands changed are restarted.
	Reconcile(specs map[string]Spec)
}

// ServiceOptions configures NewService.
type ServiceOptions struct {
	Store      Store
	Controller procs.Controller
	EventBus   *events.Bus // optional

	// Logger for service operations. Defaults to the "helpers" module logger.
	Logger logging.Logger

	// OutputLogger receives the stderr lines of single-command helpers.
	// Defaults to the "helper_output" module logger.
	OutputLogger *slog.Logger

	// MaxArgs caps command tokens. Defaults to procs.DefaultMaxArgs.
	MaxArgs int

	// NullDevice backs stdin and stdout of single-command helpers.
	// Defaults to os.DevNull.
	NullDevice string
}

// helper is the runtime record of one declared helper.
type helper struct {
	name      string
	spec      Spec
	state     State
	pids      []int
	alive     map[int]struct{}
	startedAt time.Time
	lastExit  string
	lastErr   error

	failed  bool // a stage exited unsuccessfully during this run
	restart bool // launch again once the group is gone
	gen     int  // launch generation; notifiers of older launches are ignored
}

func (h *helper) active() bool {
	return h.state == StateRunning || h.state == StateStopping
}

func (h *helper) info() Info {
	info := Info{
		Name:      h.name,
		Spec:      Spec{Commands: slices.Clone(h.spec.Commands), Enabled: h.spec.Enabled},
		State:     h.state,
		PIDs:      slices.Clone(h.pids),
		StartedAt: h.startedAt,
		LastExit:  h.lastExit,
	}
	if info.PIDs == nil {
		info.PIDs = []int{}
	}
	if h.lastErr != nil {
		info.LastError = h.lastErr.Error()
	}
	return info
}

type service struct {
	store        Store
	ctrl         procs.Controller
	bus          *events.Bus
	logger       logging.Logger
	outputLogger *slog.Logger
	maxArgs      int
	nullDevice   string

	// mu guards helpers. Exit notifiers run on the supervisor's reaper
	// goroutine and take mu, so it is never held while waiting on a child.
	mu      sync.Mutex
	helpers map[string]*helper
}

// NewService creates a helper service.
func NewService(opts *ServiceOptions) Service {
	s := &service{
		store:        opts.Store,
		ctrl:         opts.Controller,
		bus:          opts.EventBus,
		logger:       opts.Logger,
		outputLogger: opts.OutputLogger,
		maxArgs:      opts.MaxArgs,
		nullDevice:   opts.NullDevice,
		helpers:      make(map[string]*helper),
	}
	if s.logger == nil {
		s.logger = logging.GetLogger("helpers")
	}
	if s.outputLogger == nil {
		s.outputLogger = logging.GetLogger("helper_output")
	}
	if s.maxArgs <= 0 {
		s.maxArgs = procs.DefaultMaxArgs
	}
	if s.nullDevice == "" {
		s.nullDevice = os.DevNull
	}
	return s
}

// StartAll loads the store and reconciles against it.
func (s *service) StartAll() error {
	if err := s.store.Load(); err != nil {
		return NewHelperError(ErrCodeConfigError, "failed to load helpers", err)
	}
	specs := s.store.All()
	s.logger.Info("Starting helpers", "count", len(specs))
	s.Reconcile(specs)

	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(s.helpers)) {
		h := s.helpers[name]
		if h.spec.Enabled && h.state == StateError && h.lastErr != nil {
			errs = append(errs, fmt.Errorf("helper %s: %w", name, h.lastErr))
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every running helper.
func (s *service) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.helpers {
		s.stopLocked(h, false)
	}
}

func (s *service) Start(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.helpers[name]
	if !ok {
		return NewHelperError(ErrCodeNotFound, fmt.Sprintf("helper %s not found", name), nil)
	}
	switch h.state {
	case StateRunning:
		return nil
	case StateStopping:
		h.restart = true
		return nil
	}
	return s.launchLocked(h)
}

func (s *service) Stop(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.helpers[name]
	if !ok {
		return NewHelperError(ErrCodeNotFound, fmt.Sprintf("helper %s not found", name), nil)
	}
	s.stopLocked(h, false)
	return nil
}

func (s *service) Restart(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.helpers[name]
	if !ok {
		return NewHelperError(ErrCodeNotFound, fmt.Sprintf("helper %s not found", name), nil)
	}
	if h.active() {
		s.stopLocked(h, true)
		return nil
	}
	return s.launchLocked(h)
}

func (s *service) Get(name string) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.helpers[name]
	if !ok {
		return Info{}, NewHelperError(ErrCodeNotFound, fmt.Sprintf("helper %s not found", name), nil)
	}
	return h.info(), nil
}

// List returns every helper sorted by name.
func (s *service) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]Info, 0, len(s.helpers))
	for _, name := range slices.Sorted(maps.Keys(s.helpers)) {
		infos = append(infos, s.helpers[name].info())
	}
	return infos
}

func (s *service) Create(name string, spec Spec) (Info, error) {
	if err := s.validate(name, spec); err != nil {
		return Info{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.helpers[name]; exists {
		return Info{}, NewHelperError(ErrCodeExists, fmt.Sprintf("helper %s already exists", name), nil)
	}
	if err := s.store.Put(name, spec); err != nil {
		return Info{}, NewHelperError(ErrCodeConfigError, "failed to save helper", err)
	}

	h := &helper{name: name, spec: spec, state: StateIdle}
	s.helpers[name] = h
	s.logger.Info("Helper created", "name", name, "stages", len(spec.Commands), "enabled", spec.Enabled)

	if spec.Enabled {
		if err := s.launchLocked(h); err != nil {
			return h.info(), err
		}
	}
	return h.info(), nil
}

func (s *service) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.helpers[name]
	if !ok {
		return NewHelperError(ErrCodeNotFound, fmt.Sprintf("helper %s not found", name), nil)
	}
	if err := s.store.Remove(name); err != nil {
		return NewHelperError(ErrCodeConfigError, "failed to remove helper", err)
	}
	s.removeLocked(h)
	return nil
}

func (s *service) Reconcile(specs map[string]Spec) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range slices.Sorted(maps.Keys(s.helpers)) {
		if _, keep := specs[name]; !keep {
			s.removeLocked(s.helpers[name])
		}
	}

	for _, name := range slices.Sorted(maps.Keys(specs)) {
		spec := specs[name]
		if err := s.validate(name, spec); err != nil {
			s.logger.Warn("Ignoring invalid helper", "name", name, "error", err)
			continue
		}

		h, exists := s.helpers[name]
		if !exists {
			h = &helper{name: name, spec: spec, state: StateIdle}
			s.helpers[name] = h
			if spec.Enabled {
				_ = s.launchLocked(h)
			}
			continue
		}

		wasEnabled := h.spec.Enabled
		changed := !h.spec.SameCommands(spec)
		h.spec = spec

		switch {
		case !spec.Enabled:
			s.stopLocked(h, false)
		case changed && h.active():
			s.logger.Info("Helper commands changed, restarting", "name", name)
			s.stopLocked(h, true)
		case changed, !wasEnabled:
			if !h.active() {
				_ = s.launchLocked(h)
			}
		}
	}
}

// ValidateName rejects names that are not usable as helper identifiers.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return NewHelperError(ErrCodeInvalidParams, fmt.Sprintf("invalid helper name %q", name), nil)
	}
	return nil
}

func (s *service) validate(name string, spec Spec) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if len(spec.Commands) == 0 {
		return NewHelperError(ErrCodeInvalidParams, "at least one command is required", nil)
	}
	for i, command := range spec.Commands {
		if _, err := procs.Tokenize(command, s.maxArgs); err != nil {
			return NewHelperError(ErrCodeInvalidParams, fmt.Sprintf("command %d", i), err)
		}
	}
	return nil
}

// removeLocked stops h and forgets it. Notifiers still pending for its
// processes find no helper and are ignored.
func (s *service) removeLocked(h *helper) {
	s.stopLocked(h, false)
	delete(s.helpers, h.name)
	metrics.DeleteHelperMetrics(h.name)
	s.logger.Info("Helper removed", "name", h.name)
}

// stopLocked signals h's group. With restart set, h is launched again once
// every process of the group has been reaped.
func (s *service) stopLocked(h *helper, restart bool) {
	h.restart = restart
	if h.state != StateRunning {
		return
	}

	pids := slices.Clone(h.pids)
	s.setState(h, StateStopping)
	s.ctrl.Stop(h.name)
	s.logger.Info("Stopping helper", "name", h.name, "pids", pids, "restart", restart)

	if s.bus != nil {
		s.bus.Publish(events.StopRequestedEvent{
			Name:      h.name,
			PIDs:      pids,
			Source:    "helpers",
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}

// launchLocked starts h and attaches an exit notifier to every stage.
func (s *service) launchLocked(h *helper) error {
	h.gen++
	h.failed = false
	h.restart = false

	pids, err := s.spawn(h)
	if err != nil {
		h.lastErr = err
		h.pids = nil
		s.setState(h, StateError)
		s.logger.Error("Failed to start helper", "name", h.name, "error", err)
		return NewHelperError(ErrCodeLaunchError, fmt.Sprintf("failed to start helper %s", h.name), err)
	}

	h.lastErr = nil
	h.pids = pids
	h.startedAt = time.Now()
	h.alive = make(map[int]struct{}, len(pids))
	s.setState(h, StateRunning)

	name, gen := h.name, h.gen
	for _, pid := range pids {
		if s.ctrl.SetNotifier(pid, func(pid int, status procs.ExitStatus) {
			s.onExit(name, gen, pid, status)
		}) {
			h.alive[pid] = struct{}{}
		}
	}
	s.logger.Info("Helper started", "name", h.name, "pids", pids)

	if len(h.alive) == 0 {
		// Every stage was reaped before a notifier could be attached.
		s.groupGoneLocked(h)
	}
	return nil
}

// spawn launches h's commands and returns the PIDs of its group. A single
// command gets the null device on stdin and stdout and its stderr logged;
// pipelines use the supervisor's wiring.
func (s *service) spawn(h *helper) ([]int, error) {
	if len(h.spec.Commands) > 1 {
		lead, err := s.ctrl.StartPipeline(h.name, h.spec.Commands...)
		if err != nil {
			return nil, err
		}
		if group := s.ctrl.Group(h.name); len(group) > 0 {
			return group, nil
		}
		return []int{lead}, nil
	}

	argv, err := procs.Tokenize(h.spec.Commands[0], s.maxArgs)
	if err != nil {
		return nil, err
	}

	null, err := os.OpenFile(s.nullDevice, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", procs.ErrResourceExhausted, err)
	}
	defer null.Close()

	pid, pipes, err := s.ctrl.StartControlled(h.name, argv, procs.ControlledIO{Stdin: null, Stdout: null})
	if err != nil {
		return nil, err
	}
	if pipes != nil && pipes.Stderr != nil {
		go func() {
			defer pipes.Close()
			procs.LogOutput(pipes.Stderr, "stderr", s.outputLogger.With("helper", h.name), ffmpeg.ParseLogLevel)
		}()
	}
	return []int{pid}, nil
}

// onExit runs on the reaper goroutine for every stage of a helper.
func (s *service) onExit(name string, gen, pid int, status procs.ExitStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics.RecordHelperExit(name, metrics.ExitOutcome(status))

	h, ok := s.helpers[name]
	if !ok || h.gen != gen {
		return
	}

	delete(h.alive, pid)
	h.lastExit = status.String()
	if !status.Success() && h.state != StateStopping {
		h.failed = true
		h.lastErr = fmt.Errorf("process %d %s", pid, status)
	}
	s.logger.Debug("Helper process exited", "name", name, "pid", pid, "status", status.String(), "remaining", len(h.alive))

	if len(h.alive) == 0 {
		s.groupGoneLocked(h)
	}
}

// groupGoneLocked settles h once none of its processes remain.
func (s *service) groupGoneLocked(h *helper) {
	h.pids = nil
	h.alive = nil

	if h.restart {
		s.logger.Info("Relaunching helper", "name", h.name)
		_ = s.launchLocked(h)
		return
	}

	if h.failed {
		s.setState(h, StateError)
		s.logger.Warn("Helper exited unsuccessfully", "name", h.name, "last_exit", h.lastExit)
		return
	}
	s.setState(h, StateIdle)
	s.logger.Info("Helper stopped", "name", h.name, "last_exit", h.lastExit)
}

func (s *service) setState(h *helper, state State) {
	prev := h.state
	h.state = state
	if prev == state {
		return
	}

	metrics.SetHelperRunning(h.name, state == StateRunning || state == StateStopping)
	if s.bus != nil {
		s.bus.Publish(events.HelperStateChangedEvent{
			Name:      h.name,
			State:     string(state),
			Previous:  string(prev),
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}
