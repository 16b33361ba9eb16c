// Package sockets defines the transport collaborator the session layer
// drives: a non-blocking descriptor or in-memory stream with readiness
// polling under blocking, non-blocking and deadline-bound modes.
package sockets

import (
	"time"
)

// Timeout conventions, mirroring the three socket modes:
// negative means blocking (readiness waits are unconditional), zero means
// non-blocking (waits yield Nonblocking immediately), positive bounds each
// readiness wait.
const (
	Blocking    time.Duration = -1
	Nonblocking time.Duration = 0
)

// Readiness is the outcome of one readiness wait.
type Readiness int

const (
	// Ready means the descriptor is readable or writable as requested.
	Ready Readiness = iota
	// TimedOut means the bounded wait expired.
	TimedOut
	// Closed means the socket was closed before or during the wait.
	Closed
	// NotBlocking means the socket is in non-blocking mode and no wait was
	// performed; the caller retries after its own readiness handling.
	NotBlocking
	// TooLarge means the descriptor exceeds the addressable range of the
	// fallback readiness mechanism.
	TooLarge
)

func (r Readiness) String() string {
	switch r {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed out"
	case Closed:
		return "closed"
	case NotBlocking:
		return "not blocking"
	case TooLarge:
		return "too large"
	}
	return "unknown"
}

// Socket is the session layer's view of one bidirectional byte stream. Reads
// and writes are always non-blocking at this level; blocking behavior is
// produced by polling first. Transport-level syscall failures surface as
// *os.SyscallError from Read and Write.
type Socket interface {
	// Fd is the native descriptor, -1 when the socket is not descriptor
	// backed.
	Fd() int
	// Timeout is the socket's current mode, per the package conventions.
	Timeout() time.Duration
	// IsOpen reports whether the socket is still usable. Owners may close
	// a socket at any time between operations on it.
	IsOpen() bool
	// PollReadable waits up to timeout for readable data or a peer close.
	PollReadable(timeout time.Duration) Readiness
	// PollWritable waits up to timeout for output capacity.
	PollWritable(timeout time.Duration) Readiness
	// Read and Write perform one non-blocking transfer. An exhausted
	// buffer fails with EAGAIN, never blocks.
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Wait performs one readiness wait for sock under its current mode. A closed
// socket reports Closed without polling and a non-blocking one reports
// NotBlocking without polling.
func Wait(sock Socket, writing bool) Readiness {
	if sock == nil || !sock.IsOpen() {
		return Closed
	}
	timeout := sock.Timeout()
	if timeout == Nonblocking {
		return NotBlocking
	}
	if writing {
		return sock.PollWritable(timeout)
	}
	return sock.PollReadable(timeout)
}
