package events

// Event type constants for kelindar/event.
const (
	TypeProcessStarted uint32 = iota + 1
	TypeProcessExited
	TypeLaunchFailed
	TypeStopRequested
	TypeHelperStateChanged
	TypeProcessStats
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ProcessStartedEvent is published after a launch registered its processes.
type ProcessStartedEvent struct {
	Name      string `json:"name" example:"audio_mux" doc:"Logical process name"`
	Group     string `json:"group" doc:"Launch ID shared by every stage"`
	PIDs      []int  `json:"pids" doc:"Stage PIDs, lead first"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessStartedEvent.
func (e ProcessStartedEvent) Type() uint32 { return TypeProcessStarted }

// ProcessExitedEvent is published for every reaped process.
type ProcessExitedEvent struct {
	Name      string `json:"name" example:"audio_mux" doc:"Logical process name"`
	Group     string `json:"group" doc:"Launch ID shared by every stage"`
	PID       int    `json:"pid" example:"4242" doc:"Process ID"`
	Stage     int    `json:"stage" example:"0" doc:"Pipeline stage index"`
	Exited    bool   `json:"exited" doc:"True for a normal exit, false when killed by a signal"`
	Code      int    `json:"code,omitempty" example:"1" doc:"Exit code for a normal exit"`
	Signal    string `json:"signal,omitempty" example:"terminated" doc:"Terminating signal"`
	Unknown   bool   `json:"unknown,omitempty" doc:"True when the process vanished without an observed exit"`
	Status    int    `json:"status" example:"-15" doc:"Exit code, or the negated signal number"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessExitedEvent.
func (e ProcessExitedEvent) Type() uint32 { return TypeProcessExited }

// LaunchFailedEvent is published when a launch could not be completed.
type LaunchFailedEvent struct {
	Name      string `json:"name" example:"audio_mux" doc:"Logical process name"`
	Error     string `json:"error" example:"exec failed" doc:"Failure description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for LaunchFailedEvent.
func (e LaunchFailedEvent) Type() uint32 { return TypeLaunchFailed }

// StopRequestedEvent is published when termination of a name was requested.
type StopRequestedEvent struct {
	Name      string `json:"name" example:"audio_mux" doc:"Logical process name"`
	PIDs      []int  `json:"pids" doc:"PIDs signaled"`
	Source    string `json:"source" example:"api" doc:"Who requested the stop"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StopRequestedEvent.
func (e StopRequestedEvent) Type() uint32 { return TypeStopRequested }

// HelperStateChangedEvent is published when a declared helper changes state.
type HelperStateChangedEvent struct {
	Name      string `json:"name" example:"audio_mux" doc:"Helper name"`
	State     string `json:"state" example:"running" doc:"New state"`
	Previous  string `json:"previous" example:"stopped" doc:"Previous state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for HelperStateChangedEvent.
func (e HelperStateChangedEvent) Type() uint32 { return TypeHelperStateChanged }

// ProcessStatsEvent carries one resource sample of a supervised process.
type ProcessStatsEvent struct {
	Name       string `json:"name" example:"audio_mux" doc:"Logical process name"`
	PID        int    `json:"pid" example:"4242" doc:"Process ID"`
	Stage      int    `json:"stage" example:"0" doc:"Pipeline stage index"`
	RSSBytes   int    `json:"rss_bytes" example:"10485760" doc:"Resident memory in bytes"`
	CPUSeconds string `json:"cpu_seconds" example:"12.50" doc:"CPU time consumed"`
	OpenFDs    int    `json:"open_fds" example:"12" doc:"Open file descriptors"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Sample time"`
}

// Type returns the event type identifier for ProcessStatsEvent.
func (e ProcessStatsEvent) Type() uint32 { return TypeProcessStats }
