// Package kernel serves the host side of the syscall bridge.
//
// A Kernel owns the guest's descriptor table and working directory. On
// Serve it sends the one-time init event (argv, environment), then answers
// requests:
//
//	getcwd()                -> [cwd]
//	chdir(path)             -> []
//	readFile(path)          -> [bytes]
//	read(fd, n)             -> [bytes, eof]
//	write(fd, bytes)        -> [n]
//	close(fd)               -> []
//	pipe2(flags)            -> [rfd, wfd]
//	spawn(file, argv)       -> [stdout, stderr, code]
//
// and the fire-and-forget exit(code) notification. Failures are reported as
// Node-style messages ("ENOENT: no such file or directory, open '/x'").
//
// The kernel performs no sandboxing; paths are resolved against the host
// filesystem relative to its cwd.
package kernel
