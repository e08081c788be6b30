// Package binding holds the fixed table of low-level capability modules a
// guest reaches through process.binding(name).
//
// The set of names is closed. A Registry is built once and never changes,
// so it can be shared between shims without locking. Lookup misses are not
// errors at this level: the process shim decides how to report them.
package binding
