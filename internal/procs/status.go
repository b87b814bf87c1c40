package procs

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExitStatus is the classified termination status of a reaped child.
// It is either an exit with a numeric code or a termination by signal. A
// child collected outside the supervisor has an unknown status.
type ExitStatus struct {
	signaled bool
	unknown  bool
	code     int
	signal   syscall.Signal
}

// ExitedWith returns the status of a child that exited with code.
func ExitedWith(code int) ExitStatus {
	return ExitStatus{code: code}
}

// SignaledBy returns the status of a child terminated by sig.
func SignaledBy(sig syscall.Signal) ExitStatus {
	return ExitStatus{signaled: true, signal: sig}
}

// UnknownStatus returns the status of a child that disappeared without its
// exit being observed, e.g. because another waiter collected it.
func UnknownStatus() ExitStatus {
	return ExitStatus{unknown: true}
}

// Known reports whether the exit was actually observed.
func (s ExitStatus) Known() bool { return !s.unknown }

// Signaled reports whether the child was terminated by a signal.
func (s ExitStatus) Signaled() bool { return s.signaled }

// Exited reports whether the child exited normally.
func (s ExitStatus) Exited() bool { return !s.signaled && !s.unknown }

// Code returns the exit code. Zero for signaled children.
func (s ExitStatus) Code() int { return s.code }

// Signal returns the terminating signal. Zero for exited children.
func (s ExitStatus) Signal() syscall.Signal { return s.signal }

// Success reports a normal exit with code 0.
func (s ExitStatus) Success() bool { return s.Exited() && s.code == 0 }

// Legacy returns the sign-encoded form: the exit code for normal exits and
// the negated signal number for signaled children. An unknown status has no
// legacy form and reports 0; check Known first.
func (s ExitStatus) Legacy() int {
	if s.signaled {
		return -int(s.signal)
	}
	return s.code
}

func (s ExitStatus) String() string {
	if s.unknown {
		return "unknown"
	}
	if s.signaled {
		return fmt.Sprintf("signaled (%s)", s.signal)
	}
	return fmt.Sprintf("exited (%d)", s.code)
}

// classify converts a raw wait status. ok is false for states that are not
// terminal (stopped or continued children).
func classify(ws unix.WaitStatus) (status ExitStatus, ok bool) {
	switch {
	case ws.Exited():
		return ExitedWith(ws.ExitStatus()), true
	case ws.Signaled():
		return SignaledBy(ws.Signal()), true
	default:
		return ExitStatus{}, false
	}
}
