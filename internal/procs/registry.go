package procs

import (
	"slices"
	"sort"
	"sync"
	"time"
)

// Notifier is invoked once when a tracked process has been reaped.
type Notifier func(pid int, status ExitStatus)

// Record describes a tracked child process.
type Record struct {
	PID       int       `json:"pid"`
	Name      string    `json:"name"`
	Group     string    `json:"group"` // unique per launch, shared by its stages
	Stage     int       `json:"stage"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"started_at"`
}

// group is the set of processes created by one launch, in stage order.
type group struct {
	name string
	pids []int
}

// Registry maps active process identifiers to logical names and pending
// termination notifiers.
type Registry struct {
	mu        sync.RWMutex
	records   map[int]*Record
	groups    map[string]*group
	notifiers map[int]Notifier
}

func newRegistry() *Registry {
	return &Registry{
		records:   make(map[int]*Record),
		groups:    make(map[string]*group),
		notifiers: make(map[int]Notifier),
	}
}

// IsActive reports whether any process is registered under name.
func (r *Registry) IsActive(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.groups[name]
	return ok
}

// IsActivePID reports whether pid is registered.
func (r *Registry) IsActivePID(pid int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[pid]
	return ok
}

// LookupPID returns the lead process registered under name. When the lead has
// already been reaped the first surviving stage is returned. Returns 0 if no
// process is registered under name.
func (r *Registry) LookupPID(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[name]
	if !ok || len(g.pids) == 0 {
		return 0
	}
	return g.pids[0]
}

// LookupName returns the name pid was registered under, or "" if pid is not
// active.
func (r *Registry) LookupName(pid int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.records[pid]; ok {
		return rec.Name
	}
	return ""
}

// Group returns the active PIDs registered under name in stage order.
func (r *Registry) Group(name string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[name]
	if !ok {
		return nil
	}
	return slices.Clone(g.pids)
}

// Lookup returns the record of an active pid.
func (r *Registry) Lookup(pid int) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[pid]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Count returns the number of active processes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Snapshot returns a copy of all records ordered by name and stage.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].PID < out[j].PID
	})
	return out
}

// SetNotifier installs fn for pid, replacing any pending notifier. It returns
// false and installs nothing when pid is not active. A nil fn clears the
// pending notifier.
func (r *Registry) SetNotifier(pid int, fn Notifier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[pid]; !ok {
		return false
	}
	if fn == nil {
		delete(r.notifiers, pid)
		return true
	}
	r.notifiers[pid] = fn
	return true
}

// pids returns every registered PID.
func (r *Registry) pids() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.records))
	for pid := range r.records {
		out = append(out, pid)
	}
	return out
}

// insert registers rec under rec.Name.
func (r *Registry) insert(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.PID] = &rec
	g, ok := r.groups[rec.Name]
	if !ok {
		g = &group{name: rec.Name}
		r.groups[rec.Name] = g
	}
	g.pids = append(g.pids, rec.PID)
}

// release detaches pids from the name they were registered under. The
// records stay so the reaper still collects the processes, but the name is
// free for a new launch.
func (r *Registry) release(name string, pids []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[name]
	if !ok {
		return
	}
	g.pids = slices.DeleteFunc(g.pids, func(pid int) bool {
		return slices.Contains(pids, pid)
	})
	if len(g.pids) == 0 {
		delete(r.groups, name)
	}
}

// remove drops the record for pid. ok is false if pid was not registered.
func (r *Registry) remove(pid int) (rec Record, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, found := r.records[pid]
	if !found {
		return Record{}, false
	}
	delete(r.records, pid)

	if g, exists := r.groups[p.Name]; exists {
		g.pids = slices.DeleteFunc(g.pids, func(id int) bool { return id == pid })
		if len(g.pids) == 0 {
			delete(r.groups, p.Name)
		}
	}
	return *p, true
}

// takeNotifier removes and returns the pending notifier for pid.
func (r *Registry) takeNotifier(pid int) Notifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn := r.notifiers[pid]
	delete(r.notifiers, pid)
	return fn
}
