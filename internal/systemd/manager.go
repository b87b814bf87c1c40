// Package systemd talks to the service manager: readiness notification for
// the supervisor's own unit and lifecycle control of companion units.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/coreos/go-systemd/v22/dbus"
)

// ErrUnitNotAllowed is returned for units outside the configured allow list.
var ErrUnitNotAllowed = errors.New("unit not allowed")

// UnitStatus is the state of a unit as reported by systemd.
type UnitStatus struct {
	Unit        string `json:"unit" example:"mediamtx.service" doc:"Unit name"`
	ActiveState string `json:"active_state" example:"active" doc:"systemd ActiveState"`
	SubState    string `json:"sub_state" example:"running" doc:"systemd SubState"`
}

// unitConn is the subset of the D-Bus connection used by Manager.
type unitConn interface {
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	RestartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	Close()
}

// Manager controls an allow list of companion units over D-Bus.
type Manager struct {
	conn  unitConn
	units []string
}

// NewManager connects to the user-level (or, with system set, the system)
// D-Bus instance of systemd. Only the listed units can be inspected or
// controlled.
func NewManager(ctx context.Context, system bool, units []string) (*Manager, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if system {
		conn, err = dbus.NewSystemConnectionContext(ctx)
	} else {
		conn, err = dbus.NewUserConnectionContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return newManager(conn, units), nil
}

func newManager(conn unitConn, units []string) *Manager {
	return &Manager{conn: conn, units: slices.Clone(units)}
}

// Units returns the allow list.
func (m *Manager) Units() []string {
	return slices.Clone(m.units)
}

// Status returns the active and sub state of unit.
func (m *Manager) Status(ctx context.Context, unit string) (UnitStatus, error) {
	if err := m.check(unit); err != nil {
		return UnitStatus{}, err
	}
	statuses, err := m.conn.ListUnitsByNamesContext(ctx, []string{unit})
	if err != nil {
		return UnitStatus{}, err
	}
	if len(statuses) == 0 {
		return UnitStatus{Unit: unit, ActiveState: "unknown"}, nil
	}
	return UnitStatus{
		Unit:        unit,
		ActiveState: statuses[0].ActiveState,
		SubState:    statuses[0].SubState,
	}, nil
}

// Act runs start, stop or restart on unit and waits for the job result.
func (m *Manager) Act(ctx context.Context, unit, action string) error {
	if err := m.check(unit); err != nil {
		return err
	}

	var run func(context.Context, string, string, chan<- string) (int, error)
	switch action {
	case "start":
		run = m.conn.StartUnitContext
	case "stop":
		run = m.conn.StopUnitContext
	case "restart":
		run = m.conn.RestartUnitContext
	default:
		return fmt.Errorf("unknown unit action %q", action)
	}

	done := make(chan string, 1)
	if _, err := run(ctx, unit, "replace", done); err != nil {
		return err
	}
	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("%s %s: job %s", action, unit, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cleanly closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

func (m *Manager) check(unit string) error {
	if !slices.Contains(m.units, unit) {
		return fmt.Errorf("%w: %s", ErrUnitNotAllowed, unit)
	}
	return nil
}

// NotifyReady tells systemd the service finished starting. It is a no-op
// outside a Type=notify unit.
func NotifyReady() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyReady)
}

// NotifyStopping tells systemd the service is shutting down.
func NotifyStopping() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyStopping)
}
