// Package boot launches a guest program.
//
// A Bootstrapper waits for the bridge's init event, installs the guest's
// argv and environment, resolves the working directory, wires the standard
// streams, reads the program named by argv[1] and hands its source to an
// engine:
//
//	WaitingForInit -> ResolvingCwd -> WiringStreams -> LoadingProgram -> Executing -> Terminated
//	                  |                                |
//	                  +-> FailedInit -> Terminated     +-> FailedLoad -> Terminated
//
// Failures after init write "error: <description>" to the guest's stderr
// and exit with status 1 once that write has completed. Terminated is
// entered when the exit notification has been sent.
package boot
