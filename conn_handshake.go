package sio

import (
	"context"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/sio/pkg/engine"
	"github.com/brickingsoft/sio/pkg/sockets"
)

// Handshake drives the negotiation until it completes or fails. On blocking
// and deadline-bound sockets the want-read/want-write results are retried
// internally around readiness waits. On a non-blocking socket the call
// returns ErrWantRead or ErrWantWrite without completing; the negotiation is
// resumable and a later call continues it rather than restarting.
//
// Cancellation is observed between iterations: a done ctx aborts the loop
// promptly and leaves the connection resumable.
func (c *Conn) Handshake(ctx context.Context) error {
	sock, sockErr := c.socket()
	if sockErr != nil {
		return sockErr
	}
	if !sock.IsOpen() {
		return errors.From(ErrNoSocket, errors.WithMeta("cause", "underlying socket has been closed"))
	}
	switch c.state {
	case StateCreated, StateHandshaking, StateEstablished:
	default:
		return errors.From(ErrInvalidState, errors.WithMeta("state", c.state.String()))
	}
	c.state = StateHandshaking

	var ret int
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.syncIOMode(sock)
		ret = c.sess.HandshakeStep()
		code := c.sess.Classify(ret)
		if code != engine.WantRead && code != engine.WantWrite {
			break
		}
		writing := code == engine.WantWrite
		switch readiness := sockets.Wait(sock, writing); readiness {
		case sockets.Ready:
			continue
		case sockets.NotBlocking:
			// True non-blocking semantics: hand control back, the caller
			// re-invokes after its own readiness wait.
			c.sess.DrainErrors()
			if writing {
				return errors.From(ErrWantWrite)
			}
			return errors.From(ErrWantRead)
		case sockets.TimedOut:
			return c.fail(handshakeTimeout(writing))
		case sockets.Closed:
			return c.fail(errors.From(ErrNoSocket, errors.WithMeta("cause", "underlying socket has been closed")))
		case sockets.TooLarge:
			return c.fail(errors.From(ErrConfig, errors.WithMeta("cause", "underlying socket too large for select()")))
		default:
			return c.fail(errors.From(ErrInvalidState, errors.WithMeta("readiness", readiness.String())))
		}
	}

	if ret == 1 {
		// The peer certificate slot is replaced only here: old material is
		// dropped, the fresh capture (possibly absent) takes its place.
		c.peerDER = c.sess.PeerCertificate()
		c.state = StateEstablished
		return nil
	}
	return c.fail(classifyError(c.sess, ret))
}

func handshakeTimeout(writing bool) error {
	if writing {
		return errors.From(ErrTimeout, errors.WithMeta("cause", "the write operation timed out"))
	}
	return errors.From(ErrTimeout, errors.WithMeta("cause", "the read operation timed out"))
}
