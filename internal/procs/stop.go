package procs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// maxStopPasses bounds how often Stop re-reads the members of a name.
const maxStopPasses = 5

// Stop sends SIGTERM to every process registered under name. It does not
// wait for the processes to exit; the reaper collects them. Members that
// appear while stopping are signaled too, for at most maxStopPasses passes.
// Each PID receives SIGTERM once per call; repeated SIGTERMs are not sent.
func (s *Supervisor) Stop(name string) {
	signaled := make(map[int]struct{})
	for range maxStopPasses {
		pending := 0
		for _, pid := range s.Group(name) {
			if _, done := signaled[pid]; done {
				continue
			}
			signaled[pid] = struct{}{}
			s.terminate(pid)
			pending++
		}
		if pending == 0 {
			return
		}
	}
}

// StopPID sends SIGTERM to pid if it is registered, otherwise does nothing.
func (s *Supervisor) StopPID(pid int) {
	if s.IsActivePID(pid) {
		s.terminate(pid)
	}
}

// StopAll sends SIGTERM to every registered process.
func (s *Supervisor) StopAll() {
	pids := s.pids()
	s.logger.Info("Stopping all processes", "count", len(pids))
	for _, pid := range pids {
		s.terminate(pid)
	}
}

func (s *Supervisor) terminate(pid int) {
	s.logger.Debug("Sending SIGTERM", "pid", pid, "name", s.LookupName(pid))
	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		s.logger.Warn("Failed to send SIGTERM", "pid", pid, "error", err)
	}
}
