package sio

import (
	"github.com/brickingsoft/errors"
)

var (
	// ErrZeroReturn means the peer closed the secure channel cleanly.
	ErrZeroReturn = errors.Define("sio: TLS/SSL connection has been closed")
	// ErrWantRead means the operation needs the socket readable first.
	// Surfaced only on non-blocking sockets; retried internally otherwise.
	ErrWantRead = errors.Define("sio: the operation did not complete (want read)")
	// ErrWantWrite means the operation needs the socket writable first.
	ErrWantWrite = errors.Define("sio: the operation did not complete (want write)")
	// ErrWantX509Lookup means a credential lookup callback must run first.
	ErrWantX509Lookup = errors.Define("sio: the operation did not complete (want X509 lookup)")
	// ErrWantConnect means the transport connect phase is incomplete.
	ErrWantConnect = errors.Define("sio: the operation did not complete (want connect)")
	// ErrSyscall means the transport failed underneath the protocol.
	ErrSyscall = errors.Define("sio: underlying transport error")
	// ErrEOF means the transport terminated abruptly, violating the
	// protocol's closure sequence.
	ErrEOF = errors.Define("sio: EOF occurred in violation of protocol")
	// ErrProtocol is a protocol-level failure (bad record, handshake
	// rejection, verification failure).
	ErrProtocol = errors.Define("sio: protocol failure")
	// ErrInvalidState means the engine reported a result outside its own
	// enumeration, or an operation ran in a state that cannot accept it.
	ErrInvalidState = errors.Define("sio: invalid state")
	// ErrNoSocket means the underlying socket reference is gone.
	ErrNoSocket = errors.Define("sio: underlying socket connection gone")
	// ErrTimeout means a bounded readiness wait expired.
	ErrTimeout = errors.Define("sio: operation timed out")
	// ErrOverflow means an input exceeds the engine's single-operation
	// bound.
	ErrOverflow = errors.Define("sio: input too large for a single operation")
	// ErrDecode means certificate or name decoding failed.
	ErrDecode = errors.Define("sio: decode failed")
	// ErrConfig covers bad parameters, unsupported features and load
	// failures.
	ErrConfig = errors.Define("sio: configuration failed")
)

func IsZeroReturn(err error) bool {
	return errors.Is(err, ErrZeroReturn)
}

func IsWantRead(err error) bool {
	return errors.Is(err, ErrWantRead)
}

func IsWantWrite(err error) bool {
	return errors.Is(err, ErrWantWrite)
}

func IsWantX509Lookup(err error) bool {
	return errors.Is(err, ErrWantX509Lookup)
}

func IsWantConnect(err error) bool {
	return errors.Is(err, ErrWantConnect)
}

func IsSyscall(err error) bool {
	return errors.Is(err, ErrSyscall)
}

func IsEOF(err error) bool {
	return errors.Is(err, ErrEOF)
}

func IsProtocol(err error) bool {
	return errors.Is(err, ErrProtocol)
}

func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

func IsNoSocket(err error) bool {
	return errors.Is(err, ErrNoSocket)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsOverflow(err error) bool {
	return errors.Is(err, ErrOverflow)
}

func IsDecode(err error) bool {
	return errors.Is(err, ErrDecode)
}

func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}
