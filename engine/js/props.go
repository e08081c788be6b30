package js

import (
	"fmt"

	"github.com/dop251/goja"
)

// props sets properties on one object and keeps the first failure.
type props struct {
	obj *goja.Object
	err error
}

func newProps(obj *goja.Object) *props {
	return &props{obj: obj}
}

func (p *props) set(name string, v any) {
	if p.err != nil {
		return
	}
	if err := p.obj.Set(name, v); err != nil {
		p.err = fmt.Errorf("set %s: %w", name, err)
	}
}

// done returns the object, or the first Set error.
func (p *props) done() (*goja.Object, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.obj, nil
}

// must unwraps a built object inside a guest call, throwing on failure.
func (g *guest) must(o *goja.Object, err error) *goja.Object {
	if err != nil {
		panic(g.vm.NewGoError(err))
	}
	return o
}
