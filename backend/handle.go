// Package backend implements the emulation backends used when the kernel
// cannot service a request directly over the control protocol: sysfs I/O,
// external-tool invocation, tun/tap device creation, and network-namespace
// file descriptor acquisition.
package backend

import (
	"io"

	"golang.org/x/sys/unix"
)

// Handle wraps a transient OS resource (an open netns or tun/tap file
// descriptor) so the operation that created it can release it on every
// exit path via a single deferred call, generalizing a defer Close()
// idiom to any io.Closer. Transient resources are owned by the operation
// that created them and released on its exit path, success or failure.
type Handle struct {
	FD     int
	closer io.Closer
}

// NewHandle wraps an already-open resource. closer may be nil if fd alone
// should be closed via unix.Close (used for bare netlink-style fds that
// didn't come from an *os.File). A nil closer with a negative fd wraps
// nothing, and closing it is a no-op.
func NewHandle(fd int, closer io.Closer) *Handle {
	return &Handle{FD: fd, closer: closer}
}

// Close releases the underlying resource. It is safe to call on a nil
// Handle (a no-op), so callers can defer h.Close() unconditionally even
// when no resource was opened.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	if h.closer == nil {
		if h.FD < 0 {
			return nil
		}
		return unix.Close(h.FD)
	}
	return h.closer.Close()
}
