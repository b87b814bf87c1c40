package procs

import (
	"errors"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// ensureReaper installs the SIGCHLD reaper on first use.
func (s *Supervisor) ensureReaper() error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.reaperOnce.Do(func() {
		s.signals = make(chan os.Signal, 1)
		signal.Notify(s.signals, unix.SIGCHLD)
		go s.reapLoop()
		s.logger.Debug("Child reaper installed")
	})
	if s.signals == nil {
		return ErrClosed
	}
	return nil
}

// kick asks the reaper for a poll without waiting for SIGCHLD. Used after
// registration, since a child may exit before its record exists.
func (s *Supervisor) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// reapLoop consumes SIGCHLD notifications. Signals coalesce, so every
// wake-up polls all registered children.
func (s *Supervisor) reapLoop() {
	defer close(s.done)
	defer signal.Stop(s.signals)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.signals:
		case <-s.wake:
		}
		s.reapReady()
	}
}

// reapReady collects every registered child that has terminated. Only
// registered PIDs are waited on, so statuses of children started elsewhere
// in the process (os/exec users) are left alone.
func (s *Supervisor) reapReady() int {
	reaped := 0
	for _, pid := range s.pids() {
		var ws unix.WaitStatus
		wpid, err := wait4(pid, &ws)
		switch {
		case errors.Is(err, unix.ECHILD):
			// Collected by someone else; no status to report.
			s.finish(pid, UnknownStatus())
		case err != nil:
			s.logger.Warn("wait4 failed", "pid", pid, "error", err)
		case wpid == 0:
			// still running
		default:
			status, ok := classify(ws)
			if !ok {
				continue
			}
			s.finish(pid, status)
			reaped++
		}
	}
	return reaped
}

// wait4 is a non-blocking wait for pid that retries on EINTR.
func wait4(pid int, ws *unix.WaitStatus) (int, error) {
	for {
		wpid, err := unix.Wait4(pid, ws, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return wpid, err
	}
}

// finish removes the record for pid and fires OnExit. The notifier only runs
// when the exit was observed; for an unknown status it is dropped.
func (s *Supervisor) finish(pid int, status ExitStatus) {
	rec, ok := s.remove(pid)
	notifier := s.takeNotifier(pid)
	if !ok {
		return
	}

	if !status.Known() {
		s.logger.Warn("Process vanished without status", "pid", pid, "name", rec.Name)
		notifier = nil
	} else {
		s.logger.Info("Process reaped", "pid", pid, "name", rec.Name, "stage", rec.Stage, "status", status.String())
	}

	if notifier != nil {
		s.logger.Debug("Calling termination notifier", "pid", pid, "name", rec.Name)
		notifier(pid, status)
	}
	if s.opts.OnExit != nil {
		s.opts.OnExit(rec, status)
	}
}
