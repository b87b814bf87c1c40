// Package cmd holds the streamproc subcommands and the supervisor wiring they
// share with the server.
package cmd

import (
	"context"
	"time"

	"github.com/smazurov/streamproc/internal/events"
	"github.com/smazurov/streamproc/internal/logging"
	"github.com/smazurov/streamproc/internal/metrics"
	"github.com/smazurov/streamproc/internal/procs"
)

// Settings are the root options the subcommands need. The root command fills
// them before any subcommand runs.
type Settings struct {
	MaxArgs   int
	LogFormat string
}

// NewSupervisor builds a Supervisor that records metrics and, when bus is
// non-nil, publishes lifecycle events. onExit, if set, runs after both.
func NewSupervisor(maxArgs int, bus *events.Bus, onExit procs.ExitCallback) *procs.Supervisor {
	var sup *procs.Supervisor
	sup = procs.NewSupervisor(&procs.Options{
		Logger:  logging.GetLogger("procs"),
		MaxArgs: maxArgs,
		OnLaunch: func(name string, pids []int) {
			metrics.RecordLaunch(len(pids))
			metrics.SetActiveProcesses(sup.Count())
			if bus != nil {
				lead, _ := sup.Lookup(pids[0])
				bus.Publish(events.ProcessStartedEvent{
					Name:      name,
					Group:     lead.Group,
					PIDs:      pids,
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		},
		OnLaunchError: func(name string, err error) {
			metrics.RecordLaunchFailure(err)
			if bus != nil {
				bus.Publish(events.LaunchFailedEvent{
					Name:      name,
					Error:     err.Error(),
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		},
		OnExit: func(rec procs.Record, status procs.ExitStatus) {
			metrics.RecordExit(rec, status)
			metrics.SetActiveProcesses(sup.Count())
			if bus != nil {
				bus.Publish(exitEvent(rec, status))
			}
			if onExit != nil {
				onExit(rec, status)
			}
		},
	})
	return sup
}

func exitEvent(rec procs.Record, status procs.ExitStatus) events.ProcessExitedEvent {
	ev := events.ProcessExitedEvent{
		Name:      rec.Name,
		Group:     rec.Group,
		PID:       rec.PID,
		Stage:     rec.Stage,
		Exited:    status.Exited(),
		Status:    status.Legacy(),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	switch {
	case !status.Known():
		ev.Unknown = true
	case status.Signaled():
		ev.Signal = status.Signal().String()
	default:
		ev.Code = status.Code()
	}
	return ev
}

// WaitIdle polls until sup has no active processes or ctx is done. It
// reports whether the supervisor went idle.
func WaitIdle(ctx context.Context, sup *procs.Supervisor) bool {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for sup.Count() > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

// ExitCode maps a child status to a shell-style exit code. A child whose
// exit was not observed maps to 1.
func ExitCode(status procs.ExitStatus) int {
	if !status.Known() {
		return 1
	}
	if status.Signaled() {
		return 128 + int(status.Signal())
	}
	return status.Code()
}
