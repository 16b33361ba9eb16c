//go:build unix

package sockets

import (
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"
)

// NetSocket adapts a connected descriptor to the Socket contract. The
// descriptor is duplicated so the adapter owns its copy independently of the
// net.Conn it came from, and the copy is switched to non-blocking mode:
// blocking semantics are produced by polling, never by the kernel.
type NetSocket struct {
	fd      int
	timeout atomicDuration
	closed  atomic.Bool
}

// FromConn duplicates the descriptor behind any syscall-backed connection
// (net.TCPConn, net.UnixConn). The source connection stays usable; closing it
// does not invalidate the adapter.
func FromConn(sc syscall.Conn) (*NetSocket, error) {
	rc, rcErr := sc.SyscallConn()
	if rcErr != nil {
		return nil, errors.New("sockets: no raw connection", errors.WithWrap(rcErr))
	}
	var (
		dup    int
		dupErr error
	)
	ctrlErr := rc.Control(func(fd uintptr) {
		dup, dupErr = unix.Dup(int(fd))
	})
	if ctrlErr != nil {
		return nil, errors.New("sockets: raw control failed", errors.WithWrap(ctrlErr))
	}
	if dupErr != nil {
		return nil, errors.New("sockets: descriptor duplication failed", errors.WithWrap(dupErr))
	}
	return NewNetSocket(dup)
}

// NewNetSocket takes ownership of fd.
func NewNetSocket(fd int) (*NetSocket, error) {
	if fd < 0 {
		return nil, errors.New("sockets: invalid descriptor")
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, errors.New("sockets: set nonblock failed", errors.WithWrap(err))
	}
	unix.CloseOnExec(fd)
	ns := &NetSocket{fd: fd}
	ns.timeout.store(Blocking)
	return ns, nil
}

func (ns *NetSocket) Fd() int {
	return ns.fd
}

// SetTimeout switches the socket mode, per the package conventions.
func (ns *NetSocket) SetTimeout(d time.Duration) {
	if d < 0 {
		d = Blocking
	}
	ns.timeout.store(d)
}

func (ns *NetSocket) Timeout() time.Duration {
	return ns.timeout.load()
}

func (ns *NetSocket) IsOpen() bool {
	return !ns.closed.Load()
}

func (ns *NetSocket) PollReadable(timeout time.Duration) Readiness {
	if ns.closed.Load() {
		return Closed
	}
	return waitFd(ns.fd, false, timeout)
}

func (ns *NetSocket) PollWritable(timeout time.Duration) Readiness {
	if ns.closed.Load() {
		return Closed
	}
	return waitFd(ns.fd, true, timeout)
}

func (ns *NetSocket) Read(p []byte) (int, error) {
	if ns.closed.Load() {
		return 0, os.NewSyscallError("read", unix.EBADF)
	}
	for {
		n, err := unix.Read(ns.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("read", err)
		}
		if n < 0 {
			n = 0
		}
		return n, nil
	}
}

func (ns *NetSocket) Write(p []byte) (int, error) {
	if ns.closed.Load() {
		return 0, os.NewSyscallError("write", unix.EBADF)
	}
	for {
		n, err := unix.Write(ns.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("write", err)
		}
		return n, nil
	}
}

// CloseWrite shuts down the outbound direction. The peer observes end of
// stream after draining; this end keeps reading.
func (ns *NetSocket) CloseWrite() error {
	if ns.closed.Load() {
		return os.NewSyscallError("shutdown", unix.EBADF)
	}
	if err := unix.Shutdown(ns.fd, unix.SHUT_WR); err != nil {
		return os.NewSyscallError("shutdown", err)
	}
	return nil
}

func (ns *NetSocket) Close() error {
	if ns.closed.Swap(true) {
		return nil
	}
	return unix.Close(ns.fd)
}

// atomicDuration avoids torn timeout reads when the owner retunes the socket
// while another goroutine resolves readiness.
type atomicDuration struct {
	mu sync.RWMutex
	d  time.Duration
}

func (a *atomicDuration) store(d time.Duration) {
	a.mu.Lock()
	a.d = d
	a.mu.Unlock()
}

func (a *atomicDuration) load() time.Duration {
	a.mu.RLock()
	d := a.d
	a.mu.RUnlock()
	return d
}
