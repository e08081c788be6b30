// Package errors provides structured error types for the node-shim runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the operation, the subject name, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseTransport, errors.KindTransportFailure).
//		Op("readFile").
//		Name("/app.js").
//		Detail("kernel returned %s", "ENOENT").
//		Build()
//
// Or use convenience constructors for the shim's failure taxonomy:
//
//	err := errors.UnresolvableModule("left-pad")   // hard failure, aborts require
//	err := errors.UnimplementedBinding("inspector") // soft failure, logged only
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind, so the exported Err* sentinels can be used as targets.
package errors
