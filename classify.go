package sio

import (
	"fmt"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/sio/pkg/engine"
)

// classifyError maps the engine's result for a just-completed operation onto
// the package taxonomy. The session's pending error queue is drained
// unconditionally so stale entries never contaminate a later unrelated
// failure.
func classifyError(sess engine.Session, ret int) error {
	if sess == nil {
		return errors.From(ErrNoSocket)
	}
	defer sess.DrainErrors()
	switch code := sess.Classify(ret); code {
	case engine.ZeroReturn:
		return errors.From(ErrZeroReturn)
	case engine.WantRead:
		return errors.From(ErrWantRead)
	case engine.WantWrite:
		return errors.From(ErrWantWrite)
	case engine.WantX509Lookup:
		return errors.From(ErrWantX509Lookup)
	case engine.WantConnect:
		return errors.From(ErrWantConnect)
	case engine.Syscall:
		if queued, ok := sess.PopError(); ok {
			return annotated(ErrSyscall, queued)
		}
		if ret == 0 {
			return errors.From(ErrEOF)
		}
		if sysErr := sess.LastSysError(); sysErr != nil {
			// The transport's own error reporting path: the OS-level
			// failure surfaces as-is, errno intact.
			return sysErr
		}
		return errors.From(ErrSyscall)
	case engine.Protocol:
		if queued, ok := sess.PopError(); ok {
			return annotated(ErrProtocol, queued)
		}
		return errors.From(ErrProtocol)
	default:
		return errors.From(ErrInvalidState,
			errors.WithMeta("code", code.String()),
			errors.WithMeta("ret", fmt.Sprintf("%d", ret)))
	}
}

// annotated builds a mnemonic-bearing error for the queued entry, wrapping
// the taxonomy root so Is matching still holds. Lookup misses keep the
// entry's message bare.
func annotated(root error, queued engine.QueuedError) error {
	lib, hasLib := engine.LibraryMnemonic(queued.Library)
	reason, hasReason := engine.ReasonMnemonic(queued.Library, queued.Reason)
	msg := queued.Message
	switch {
	case hasLib && hasReason:
		msg = fmt.Sprintf("[%s: %s] %s", lib, reason, msg)
	case hasLib:
		msg = fmt.Sprintf("[%s] %s", lib, msg)
	}
	if msg == "" {
		return errors.From(root)
	}
	opts := []errors.Option{errors.WithWrap(root)}
	if hasLib {
		opts = append(opts, errors.WithMeta("library", lib))
	}
	if hasReason {
		opts = append(opts, errors.WithMeta("reason", reason))
	}
	return errors.New(msg, opts...)
}
