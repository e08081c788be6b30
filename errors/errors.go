package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the shim the error occurred
type Phase string

const (
	PhaseBoot      Phase = "boot"      // bootstrap state machine
	PhaseTransport Phase = "transport" // syscall bridge round trips
	PhaseBinding   Phase = "binding"   // binding registry lookups
	PhaseModule    Phase = "module"    // virtual module resolution
	PhaseLoad      Phase = "load"      // guest program loading
	PhaseExecute   Phase = "execute"   // guest program execution
	PhaseSchedule  Phase = "schedule"  // tick queue draining
	PhaseKernel    Phase = "kernel"    // host-side syscall handling
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindTransportFailure     Kind = "transport_failure"
	KindUnimplementedBinding Kind = "unimplemented_binding"
	KindUnresolvableModule   Kind = "unresolvable_module"
	KindProgramLoad          Kind = "program_load"
	KindGuestExecution       Kind = "guest_execution"
	KindTaskFailure          Kind = "task_failure"
	KindNotInitialized       Kind = "not_initialized"
	KindInvalidInput         Kind = "invalid_input"
	KindNotFound             Kind = "not_found"
	KindUnsupported          Kind = "unsupported"
	KindClosed               Kind = "closed"
)

// Error is the structured error type used throughout the shim
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Name   string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Name != "" {
		b.WriteString(" ")
		b.WriteString(fmt.Sprintf("%q", e.Name))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the operation name (syscall op, state transition)
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Name sets the subject name (binding, module, path)
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinels for errors.Is matching on phase+kind.
var (
	ErrTransportFailure     = &Error{Phase: PhaseTransport, Kind: KindTransportFailure}
	ErrUnimplementedBinding = &Error{Phase: PhaseBinding, Kind: KindUnimplementedBinding}
	ErrUnresolvableModule   = &Error{Phase: PhaseModule, Kind: KindUnresolvableModule}
	ErrProgramLoad          = &Error{Phase: PhaseLoad, Kind: KindProgramLoad}
	ErrGuestExecution       = &Error{Phase: PhaseExecute, Kind: KindGuestExecution}
	ErrTaskFailure          = &Error{Phase: PhaseSchedule, Kind: KindTaskFailure}
)

// TransportFailure creates an error for a failed bridge round trip
func TransportFailure(op string, cause error) *Error {
	return &Error{
		Phase:  PhaseTransport,
		Kind:   KindTransportFailure,
		Op:     op,
		Detail: "syscall failed",
		Cause:  cause,
	}
}

// UnimplementedBinding creates the soft-failure error for an unknown binding
func UnimplementedBinding(name string) *Error {
	return &Error{
		Phase:  PhaseBinding,
		Kind:   KindUnimplementedBinding,
		Name:   name,
		Detail: "unimplemented binding",
	}
}

// UnresolvableModule creates the hard-failure error for an unknown module
func UnresolvableModule(name string) *Error {
	return &Error{
		Phase:  PhaseModule,
		Kind:   KindUnresolvableModule,
		Name:   name,
		Detail: "unknown module " + name,
	}
}

// ProgramLoad creates an error for a guest source that could not be read
func ProgramLoad(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindProgramLoad,
		Name:   path,
		Detail: "read program source",
		Cause:  cause,
	}
}

// GuestExecution creates an error for a failure raised by the guest program
func GuestExecution(cause error) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindGuestExecution,
		Detail: "uncaught guest failure",
		Cause:  cause,
	}
}

// TaskFailure wraps an error raised by a tick task
func TaskFailure(cause error) *Error {
	return &Error{
		Phase:  PhaseSchedule,
		Kind:   KindTaskFailure,
		Detail: "tick task failed",
		Cause:  cause,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Name:   name,
		Detail: what + " not found",
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Closed creates an error for an operation on a closed handle or transport
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " closed",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Description returns the human-readable part of err suitable for guest-facing
// messages: the innermost cause's text, or the detail of a structured error
// without a cause.
func Description(err error) string {
	if err == nil {
		return ""
	}
	for {
		e, ok := err.(*Error)
		if !ok {
			return err.Error()
		}
		if e.Cause == nil {
			if e.Detail != "" {
				return e.Detail
			}
			return e.Error()
		}
		err = e.Cause
	}
}
