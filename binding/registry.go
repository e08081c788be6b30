package binding

import (
	"sort"

	"github.com/wippyai/node-shim/errors"
)

// Name identifies a binding.
type Name string

// The complete binding set.
const (
	Buffer      Name = "buffer"
	UV          Name = "uv"
	FS          Name = "fs"
	FSEventWrap Name = "fs_event_wrap"
	Constants   Name = "constants"
	Contextify  Name = "contextify"
	ProcessWrap Name = "process_wrap"
	SpawnSync   Name = "spawn_sync"
	PipeWrap    Name = "pipe_wrap"
	TTYWrap     Name = "tty_wrap"
	Util        Name = "util"
)

var allNames = []Name{
	Buffer, UV, FS, FSEventWrap, Constants, Contextify,
	ProcessWrap, SpawnSync, PipeWrap, TTYWrap, Util,
}

// AllNames returns every valid binding name.
func AllNames() []Name {
	return append([]Name(nil), allNames...)
}

// Valid reports whether n belongs to the binding set.
func (n Name) Valid() bool {
	for _, v := range allNames {
		if v == n {
			return true
		}
	}
	return false
}

// Module is an opaque capability module. Keys are the member names the
// guest sees.
type Module map[string]any

// Registry maps binding names to modules. It is read-only after New.
type Registry struct {
	entries map[Name]Module
}

// New builds a registry from entries. Every key must be a valid Name and
// every module non-nil.
func New(entries map[Name]Module) (*Registry, error) {
	r := &Registry{entries: make(map[Name]Module, len(entries))}
	for name, m := range entries {
		if !name.Valid() {
			return nil, errors.New(errors.PhaseBinding, errors.KindInvalidInput).
				Op("new").
				Name(string(name)).
				Detail("not a binding name").
				Build()
		}
		if m == nil {
			return nil, errors.New(errors.PhaseBinding, errors.KindInvalidInput).
				Op("new").
				Name(string(name)).
				Detail("nil module").
				Build()
		}
		r.entries[name] = m
	}
	return r, nil
}

// MustNew is New that panics on error, for static tables.
func MustNew(entries map[Name]Module) *Registry {
	r, err := New(entries)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the module registered under name. Matching is exact and
// case-sensitive.
func (r *Registry) Lookup(name string) (Module, bool) {
	m, ok := r.entries[Name(name)]
	return m, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []Name {
	names := make([]Name, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	return len(r.entries)
}
