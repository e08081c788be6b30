// Package process implements the guest's process object.
//
// A Shim carries the guest's identity (argv, environment, working
// directory) and its standard streams, and owns the tick queue behind
// nextTick. Every operation that needs the kernel is a bridge round trip,
// so the working directory is a snapshot refreshed by Init and Chdir rather
// than a live value.
//
// Exit never runs inline. It is queued on the tick scheduler, ends the
// output streams, and only then notifies the kernel, so a guest calling
// exit from inside a completion callback cannot re-enter the loop that is
// delivering it.
package process
