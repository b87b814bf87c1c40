// Package helpers runs the helper processes declared in helpers.toml and keeps
// them in line with the file as it changes.
package helpers

import (
	"slices"
	"time"
)

// Spec declares one helper: a single command or a pipeline.
type Spec struct {
	Commands []string `toml:"commands" json:"commands" minItems:"1" doc:"Commands chained stdout to stdin"`
	Enabled  bool     `toml:"enabled" json:"enabled" doc:"Start the helper automatically"`
}

// SameCommands reports whether two specs launch the same processes.
func (s Spec) SameCommands(other Spec) bool {
	return slices.Equal(s.Commands, other.Commands)
}

// State is the runtime state of a helper.
type State string

// Helper states.
const (
	StateIdle     State = "idle"     // not running
	StateRunning  State = "running"  // process group alive
	StateStopping State = "stopping" // SIGTERM sent, waiting for exits
	StateError    State = "error"    // failed to start or exited unsuccessfully
)

// Info is a point-in-time view of a helper.
type Info struct {
	Name      string    `json:"name"`
	Spec      Spec      `json:"spec"`
	State     State     `json:"state"`
	PIDs      []int     `json:"pids"`
	StartedAt time.Time `json:"started_at,omitzero"`
	LastExit  string    `json:"last_exit,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Store persists helper definitions.
type Store interface {
	// Load reads definitions from storage.
	Load() error

	// Save writes definitions to storage.
	Save() error

	// Put adds or replaces a definition and saves.
	Put(name string, spec Spec) error

	// Remove deletes a definition and saves.
	Remove(name string) error

	// Get returns one definition.
	Get(name string) (Spec, bool)

	// All returns a copy of every definition.
	All() map[string]Spec
}
