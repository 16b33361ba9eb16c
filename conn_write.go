package sio

import (
	"context"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/sio/pkg/engine"
	"github.com/brickingsoft/sio/pkg/sockets"
)

// Write encrypts and sends p, returning the byte count. Engine writes are
// atomic for a given buffer: the count is len(p) on success. Inputs larger
// than the engine's single-operation bound fail with ErrOverflow before any
// engine call.
func (c *Conn) Write(ctx context.Context, p []byte) (int, error) {
	sock, sockErr := c.socket()
	if sockErr != nil {
		return 0, sockErr
	}
	if c.state != StateEstablished {
		return 0, errors.From(ErrInvalidState, errors.WithMeta("state", c.state.String()))
	}
	if len(p) > c.cc.engine.MaxWriteSize() {
		return 0, errors.From(ErrOverflow, errors.WithMeta("cause", "buffer exceeds the engine write bound"))
	}
	if len(p) == 0 {
		return 0, nil
	}

	c.syncIOMode(sock)

	// Same readiness-then-attempt discipline as the handshake: a
	// deadline-bound socket proves writability before the first engine
	// call, so a stalled peer fails fast instead of inside the engine.
	switch readiness := sockets.Wait(sock, true); readiness {
	case sockets.Ready, sockets.NotBlocking:
	case sockets.TimedOut:
		return 0, errors.From(ErrTimeout, errors.WithMeta("cause", "the write operation timed out"))
	case sockets.Closed:
		return 0, c.fail(errors.From(ErrNoSocket, errors.WithMeta("cause", "underlying socket has been closed")))
	case sockets.TooLarge:
		return 0, errors.From(ErrConfig, errors.WithMeta("cause", "underlying socket too large for select()"))
	default:
		return 0, errors.From(ErrInvalidState, errors.WithMeta("readiness", readiness.String()))
	}

	var ret int
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		c.syncIOMode(sock)
		ret = c.sess.Write(p)
		code := c.sess.Classify(ret)
		if code != engine.WantRead && code != engine.WantWrite {
			break
		}
		writing := code == engine.WantWrite
		switch readiness := sockets.Wait(sock, writing); readiness {
		case sockets.Ready:
			continue
		case sockets.NotBlocking:
			c.sess.DrainErrors()
			if writing {
				return 0, errors.From(ErrWantWrite)
			}
			return 0, errors.From(ErrWantRead)
		case sockets.TimedOut:
			if writing {
				return 0, errors.From(ErrTimeout, errors.WithMeta("cause", "the write operation timed out"))
			}
			return 0, errors.From(ErrTimeout, errors.WithMeta("cause", "the read operation timed out"))
		case sockets.Closed:
			return 0, c.fail(errors.From(ErrNoSocket, errors.WithMeta("cause", "underlying socket has been closed")))
		case sockets.TooLarge:
			return 0, errors.From(ErrConfig, errors.WithMeta("cause", "underlying socket too large for select()"))
		default:
			return 0, errors.From(ErrInvalidState, errors.WithMeta("readiness", readiness.String()))
		}
	}

	if ret > 0 {
		return ret, nil
	}
	return 0, c.fail(classifyError(c.sess, ret))
}
