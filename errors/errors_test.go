package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseTransport,
				Kind:   KindTransportFailure,
				Op:     "readFile",
				Name:   "/app.js",
				Detail: "kernel refused",
			},
			contains: []string{"[transport]", "transport_failure", "in readFile", `"/app.js"`, "kernel refused"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseBoot,
				Kind:  KindNotInitialized,
			},
			contains: []string{"[boot]", "not_initialized"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindProgramLoad,
				Detail: "read program source",
				Cause:  errors.New("ENOENT"),
			},
			contains: []string{"[load]", "program_load", "caused by", "ENOENT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := TransportFailure("getcwd", cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not walk to cause")
	}
}

func TestError_Is(t *testing.T) {
	err := UnresolvableModule("not-a-real-module")

	if !errors.Is(err, ErrUnresolvableModule) {
		t.Error("expected match on phase+kind")
	}
	if errors.Is(err, ErrUnimplementedBinding) {
		t.Error("unexpected match on different kind")
	}

	wrapped := TaskFailure(GuestExecution(errors.New("boom")))
	if !errors.Is(wrapped, ErrGuestExecution) {
		t.Error("expected match through cause chain")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseKernel, KindNotFound).
		Op("readFile").
		Name("/missing").
		Value(2).
		Detail("errno %d", 2).
		Build()

	if err.Op != "readFile" || err.Name != "/missing" {
		t.Errorf("unexpected op/name: %q %q", err.Op, err.Name)
	}
	if err.Detail != "errno 2" {
		t.Errorf("expected formatted detail, got %q", err.Detail)
	}
	if err.Value != 2 {
		t.Errorf("expected value 2, got %v", err.Value)
	}
}

func TestUnresolvableModule_Message(t *testing.T) {
	err := UnresolvableModule("left-pad")
	if !strings.Contains(err.Error(), "unknown module left-pad") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestDescription(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("plain"), "plain"},
		{"structured without cause", InvalidInput(PhaseBoot, "bad"), "bad"},
		{"structured without detail", New(PhaseBoot, KindClosed).Build(), "[boot] closed"},
		{"nested", ProgramLoad("/a.js", TransportFailure("readFile", errors.New("ENOENT: /a.js"))), "ENOENT: /a.js"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Description(tt.err); got != tt.want {
				t.Errorf("Description() = %q, want %q", got, tt.want)
			}
		})
	}
}
