package js

import (
	"strings"
	"testing"

	"github.com/dop251/goja"
)

func TestProps_SetsAll(t *testing.T) {
	vm := goja.New()
	p := newProps(vm.NewObject())
	p.set("a", 1)
	p.set("b", "two")
	o, err := p.done()
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if o.Get("a").ToInteger() != 1 || o.Get("b").String() != "two" {
		t.Errorf("unexpected object %v", o.Export())
	}
}

func TestProps_KeepsFirstError(t *testing.T) {
	vm := goja.New()
	v, err := vm.RunString(`Object.freeze({a: 1})`)
	if err != nil {
		t.Fatal(err)
	}
	p := newProps(v.ToObject(vm))
	p.set("a", 2)
	p.set("b", 3)
	o, err := p.done()
	if err == nil {
		t.Fatal("expected an error setting a property of a frozen object")
	}
	if o != nil {
		t.Error("object must not be returned with an error")
	}
	if !strings.HasPrefix(err.Error(), "set a:") {
		t.Errorf("expected the first failure, got %v", err)
	}
}
