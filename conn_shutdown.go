package sio

import (
	"context"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/sio/pkg/engine"
	"github.com/brickingsoft/sio/pkg/sockets"
)

// Shutdown performs the secure closure exchange and returns the still-open
// underlying socket, whose ownership passes back to the caller for further
// non-TLS use or closure. The zero-result retry is bounded at two attempts;
// see DESIGN.md for why the legacy bound is kept.
func (c *Conn) Shutdown(ctx context.Context) (sockets.Socket, error) {
	sock, sockErr := c.socket()
	if sockErr != nil {
		return nil, sockErr
	}
	if !sock.IsOpen() {
		return nil, errors.From(ErrNoSocket, errors.WithMeta("cause", "underlying socket has been closed"))
	}
	switch c.state {
	case StateEstablished, StateShuttingDown:
	default:
		return nil, errors.From(ErrInvalidState, errors.WithMeta("state", c.state.String()))
	}
	c.state = StateShuttingDown

	var (
		ret   int
		zeros int
	)
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.syncIOMode(sock)
		// Once our close is sent, speculative read-ahead would consume
		// plaintext the peer transmitted before its own close; keep the
		// engine on record boundaries from that point on.
		if c.shutdownSeenZero {
			c.sess.SetReadAhead(false)
		}
		ret = c.sess.ShutdownStep()
		if ret > 0 {
			break
		}
		if ret == 0 {
			zeros++
			if zeros > 1 {
				break
			}
			// Our close notification is out; now wait for the peer's.
			c.shutdownSeenZero = true
			continue
		}
		code := c.sess.Classify(ret)
		if code != engine.WantRead && code != engine.WantWrite {
			break
		}
		writing := code == engine.WantWrite
		switch readiness := sockets.Wait(sock, writing); readiness {
		case sockets.Ready:
			continue
		case sockets.TimedOut:
			if writing {
				return nil, errors.From(ErrTimeout, errors.WithMeta("cause", "the write operation timed out"))
			}
			return nil, errors.From(ErrTimeout, errors.WithMeta("cause", "the read operation timed out"))
		case sockets.TooLarge:
			return nil, errors.From(ErrConfig, errors.WithMeta("cause", "underlying socket too large for select()"))
		default:
			// NotBlocking and Closed both end the loop here; the engine's
			// own result is preserved for reporting below.
			goto done
		}
	}
done:
	if ret < 0 {
		err := classifyError(c.sess, ret)
		if IsWantRead(err) || IsWantWrite(err) {
			// Non-blocking closure is resumable; the caller re-invokes
			// after its own readiness wait.
			return nil, err
		}
		return nil, c.fail(err)
	}
	c.state = StateClosed
	return sock, nil
}
