// Package resource provides the kernel's file descriptor table.
//
// Descriptors are small integers mapping to host objects (readers, writers,
// closers). The standard descriptors 0, 1 and 2 are installed explicitly;
// everything else takes the lowest free number:
//
//	table := resource.NewTable()
//	_ = table.Install(resource.Stdout, &resource.Descriptor{Writer: os.Stdout, Name: "<stdout>"})
//
//	r, w := io.Pipe()
//	rfd, _ := table.Open(&resource.Descriptor{Reader: r, Closer: r, Name: "pipe:r"})
//	wfd, _ := table.Open(&resource.Descriptor{Writer: w, Closer: w, Name: "pipe:w"})
//
// # Observers
//
// Register observers to track descriptor lifecycle events:
//
//	table.Subscribe(observer) // receives EventOpened / EventClosed
//
// Closing a descriptor closes its Closer. CloseAll releases everything and
// is called when the guest exits.
package resource
