package sockets

import (
	"os"
	"sync"
	"syscall"
	"time"
)

// Pipe returns an in-memory connected socket pair. Both ends satisfy the
// Socket contract with real readiness semantics: polling one end wakes when
// the peer writes or closes. Useful for in-process transports and tests that
// need deterministic readiness without descriptors.
func Pipe() (*PipeSocket, *PipeSocket) {
	a2b := newPipeBuffer()
	b2a := newPipeBuffer()
	a := &PipeSocket{in: b2a, out: a2b, timeout: Blocking}
	b := &PipeSocket{in: a2b, out: b2a, timeout: Blocking}
	return a, b
}

// PipeSocket is one end of an in-memory pair. It is not descriptor backed:
// Fd reports -1 and readiness is resolved against the shared buffers.
type PipeSocket struct {
	mu      sync.Mutex
	in      *pipeBuffer
	out     *pipeBuffer
	timeout time.Duration
	closed  bool
}

func (p *PipeSocket) Fd() int {
	return -1
}

func (p *PipeSocket) SetTimeout(d time.Duration) {
	p.mu.Lock()
	if d < 0 {
		d = Blocking
	}
	p.timeout = d
	p.mu.Unlock()
}

func (p *PipeSocket) Timeout() time.Duration {
	p.mu.Lock()
	d := p.timeout
	p.mu.Unlock()
	return d
}

func (p *PipeSocket) IsOpen() bool {
	p.mu.Lock()
	open := !p.closed
	p.mu.Unlock()
	return open
}

func (p *PipeSocket) PollReadable(timeout time.Duration) Readiness {
	if !p.IsOpen() {
		return Closed
	}
	return p.in.waitReadable(timeout)
}

func (p *PipeSocket) PollWritable(timeout time.Duration) Readiness {
	if !p.IsOpen() {
		return Closed
	}
	// The pair is unbounded, output capacity is always available.
	if p.out.writeClosed() {
		return Closed
	}
	return Ready
}

func (p *PipeSocket) Read(b []byte) (int, error) {
	if !p.IsOpen() {
		return 0, os.NewSyscallError("read", syscall.EBADF)
	}
	return p.in.read(b)
}

func (p *PipeSocket) Write(b []byte) (int, error) {
	if !p.IsOpen() {
		return 0, os.NewSyscallError("write", syscall.EPIPE)
	}
	return p.out.write(b)
}

// CloseWrite closes the outbound direction only. The peer observes end of
// stream after draining while this end keeps reading.
func (p *PipeSocket) CloseWrite() error {
	if !p.IsOpen() {
		return os.NewSyscallError("shutdown", syscall.EBADF)
	}
	p.out.close()
	return nil
}

// Close closes this end. The peer observes end of stream after draining.
func (p *PipeSocket) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.out.close()
	p.in.close()
	return nil
}

// pipeBuffer is one direction of the pair. Readiness waits park on a
// notification channel that write and close pulse.
type pipeBuffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
	wake   chan struct{}
}

func newPipeBuffer() *pipeBuffer {
	return &pipeBuffer{wake: make(chan struct{}, 1)}
}

func (pb *pipeBuffer) pulse() {
	select {
	case pb.wake <- struct{}{}:
	default:
	}
}

func (pb *pipeBuffer) read(b []byte) (int, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if len(pb.data) == 0 {
		if pb.closed {
			return 0, nil // end of stream
		}
		return 0, os.NewSyscallError("read", syscall.EAGAIN)
	}
	n := copy(b, pb.data)
	pb.data = pb.data[n:]
	return n, nil
}

func (pb *pipeBuffer) write(b []byte) (int, error) {
	pb.mu.Lock()
	if pb.closed {
		pb.mu.Unlock()
		return 0, os.NewSyscallError("write", syscall.EPIPE)
	}
	pb.data = append(pb.data, b...)
	pb.mu.Unlock()
	pb.pulse()
	return len(b), nil
}

func (pb *pipeBuffer) close() {
	pb.mu.Lock()
	pb.closed = true
	pb.mu.Unlock()
	pb.pulse()
}

func (pb *pipeBuffer) writeClosed() bool {
	pb.mu.Lock()
	c := pb.closed
	pb.mu.Unlock()
	return c
}

func (pb *pipeBuffer) readable() bool {
	pb.mu.Lock()
	ok := len(pb.data) > 0 || pb.closed // end of stream is a readable event
	pb.mu.Unlock()
	return ok
}

func (pb *pipeBuffer) waitReadable(timeout time.Duration) Readiness {
	if pb.readable() {
		return Ready
	}
	if timeout == Nonblocking {
		return NotBlocking
	}
	var expiry <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expiry = timer.C
	}
	for {
		select {
		case <-pb.wake:
			if pb.readable() {
				// Re-pulse for any other waiter parked on this end.
				pb.pulse()
				return Ready
			}
		case <-expiry:
			return TimedOut
		}
	}
}
