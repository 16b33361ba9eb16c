package sio

import (
	"context"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/sio/pkg/engine"
	"github.com/brickingsoft/sio/pkg/sockets"
)

// Read reads up to maxLength decrypted bytes, allocating the result buffer.
// A clean shutdown by the peer before any data arrives yields an empty slice
// and nil error, not a failure.
func (c *Conn) Read(ctx context.Context, maxLength int) ([]byte, error) {
	if maxLength < 0 {
		maxLength = 0
	}
	buf := make([]byte, maxLength)
	n, err := c.read(ctx, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// ReadInto reads decrypted bytes into the caller's buffer, returning the
// count. The transfer length is the buffer's capacity.
func (c *Conn) ReadInto(ctx context.Context, dst []byte) (int, error) {
	return c.read(ctx, dst)
}

func (c *Conn) read(ctx context.Context, dst []byte) (int, error) {
	sock, sockErr := c.socket()
	if sockErr != nil {
		return 0, sockErr
	}
	if c.state != StateEstablished {
		return 0, errors.From(ErrInvalidState, errors.WithMeta("state", c.state.String()))
	}
	if len(dst) == 0 {
		return 0, nil
	}

	c.syncIOMode(sock)

	// Plaintext already decrypted inside the session must be returned
	// without polling: the transport may never become readable again.
	if c.sess.Pending() == 0 {
		switch readiness := sockets.Wait(sock, false); readiness {
		case sockets.Ready, sockets.NotBlocking:
		case sockets.TimedOut:
			return 0, errors.From(ErrTimeout, errors.WithMeta("cause", "the read operation timed out"))
		case sockets.Closed:
			// The peer tore down the raw transport; model it as a short
			// graceful read.
			return 0, nil
		case sockets.TooLarge:
			return 0, errors.From(ErrConfig, errors.WithMeta("cause", "underlying socket too large for select()"))
		default:
			return 0, errors.From(ErrInvalidState, errors.WithMeta("readiness", readiness.String()))
		}
	}

	var (
		ret  int
		code engine.Code
	)
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		c.syncIOMode(sock)
		ret = c.sess.Read(dst)
		code = c.sess.Classify(ret)
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
	// A zero return after the peer's clean bidirectional shutdown is a
	// normal end of stream, not an error.
	if code == engine.ZeroReturn && c.sess.ReceivedShutdown() {
		c.sess.DrainErrors()
		return 0, nil
	}
	return 0, c.fail(classifyError(c.sess, ret))
}
