//go:build unix

package sockets

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// pollUnsupported flips when poll(2) reports ENOSYS, routing later waits
// through the select(2) fallback.
var pollUnsupported atomic.Bool

// waitFd blocks until fd is ready in the requested direction, the timeout
// expires, or the peer closes. A negative timeout waits unconditionally.
func waitFd(fd int, writing bool, timeout time.Duration) Readiness {
	if fd < 0 {
		return Closed
	}
	if !pollUnsupported.Load() {
		r, supported := waitPoll(fd, writing, timeout)
		if supported {
			return r
		}
		pollUnsupported.Store(true)
	}
	return waitSelect(fd, writing, timeout)
}

func waitPoll(fd int, writing bool, timeout time.Duration) (Readiness, bool) {
	events := int16(unix.POLLIN)
	if writing {
		events = unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			if timeout >= 0 {
				remaining := time.Until(deadline)
				if remaining <= 0 {
					return TimedOut, true
				}
				ms = int(remaining / time.Millisecond)
				if ms == 0 {
					ms = 1
				}
			}
			continue
		}
		if err == unix.ENOSYS {
			return Ready, false
		}
		if err != nil {
			return Closed, true
		}
		if n == 0 {
			return TimedOut, true
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return Closed, true
		}
		return Ready, true
	}
}

// fdSetSize is the addressable descriptor range of select(2).
const fdSetSize = 1024

func waitSelect(fd int, writing bool, timeout time.Duration) Readiness {
	if fd >= fdSetSize {
		return TooLarge
	}
	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}
	set := &unix.FdSet{}
	set.Zero()
	set.Set(fd)
	var rset, wset *unix.FdSet
	if writing {
		wset = set
	} else {
		rset = set
	}
	for {
		n, err := unix.Select(fd+1, rset, wset, nil, tv)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Closed
		}
		if n == 0 {
			return TimedOut
		}
		return Ready
	}
}
