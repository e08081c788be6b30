package modules

import (
	"sort"

	"github.com/wippyai/node-shim/bridge"
	"github.com/wippyai/node-shim/errors"
	"github.com/wippyai/node-shim/vfs"
)

// Name identifies a virtual module.
type Name string

// The complete module set.
const (
	FS           Name = "fs"
	ChildProcess Name = "child_process"
	Path         Name = "path"
	Readline     Name = "readline"
	NodePipe2    Name = "node-pipe2"
)

var allNames = []Name{FS, ChildProcess, Path, Readline, NodePipe2}

// AllNames returns every valid module name.
func AllNames() []Name {
	return append([]Name(nil), allNames...)
}

// Valid reports whether n belongs to the module set.
func (n Name) Valid() bool {
	for _, v := range allNames {
		if v == n {
			return true
		}
	}
	return false
}

// PathResolver turns guest paths into absolute ones. *process.Shim
// satisfies it and fails until the working directory is known.
type PathResolver interface {
	Resolve(p string) (string, error)
}

// Deps are the collaborators the default modules are built on.
type Deps struct {
	Bridge bridge.Bridge
	FS     *vfs.FS
	Paths  PathResolver
	Post   vfs.Poster
}

// Defaults returns the standard module table.
func Defaults(d Deps) map[Name]any {
	return map[Name]any{
		FS:           &FSModule{fs: d.FS, paths: d.Paths, post: d.Post},
		ChildProcess: &ChildProcessModule{bridge: d.Bridge, paths: d.Paths, post: d.Post},
		Path:         &PathModule{paths: d.Paths},
		Readline:     &ReadlineModule{},
		NodePipe2:    NewPipe2(d.Bridge),
	}
}

// Resolver maps module names to implementations. It is read-only after New.
type Resolver struct {
	table map[Name]any
}

// New builds a resolver from table. Every key must be a valid Name.
func New(table map[Name]any) (*Resolver, error) {
	r := &Resolver{table: make(map[Name]any, len(table))}
	for name, impl := range table {
		if !name.Valid() || impl == nil {
			return nil, errors.New(errors.PhaseModule, errors.KindInvalidInput).
				Op("new").
				Name(string(name)).
				Detail("not a module name or nil implementation").
				Build()
		}
		r.table[name] = impl
	}
	return r, nil
}

// Resolve returns the implementation registered under name, or an
// UnresolvableModule error.
func (r *Resolver) Resolve(name string) (any, error) {
	impl, ok := r.table[Name(name)]
	if !ok {
		return nil, errors.UnresolvableModule(name)
	}
	return impl, nil
}

// Names returns the registered names in sorted order.
func (r *Resolver) Names() []Name {
	names := make([]Name, 0, len(r.table))
	for n := range r.table {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
