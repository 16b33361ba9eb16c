package sio

import (
	"context"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/rxp"
	"github.com/brickingsoft/rxp/async"
	"github.com/brickingsoft/sio/pkg/sockets"
)

// WrapAndHandshake wraps sock on cc and drives the handshake on the shared
// executors, delivering the established connection through a future. The
// socket keeps its configured timeout; handshake failures are the same
// errors Handshake reports synchronously.
func WrapAndHandshake(ctx context.Context, cc *Context, sock sockets.Socket, role Role, serverName string) (future async.Future[*Conn]) {
	if _, exist := rxp.TryFrom(ctx); !exist {
		ctx = rxp.With(ctx, Executors())
	}

	promise, promiseErr := async.Make[*Conn](ctx)
	if promiseErr != nil {
		future = async.FailedImmediately[*Conn](ctx, promiseErr)
		return
	}
	future = promise.Future()

	conn, wrapErr := cc.WrapSocket(sock, role, serverName)
	if wrapErr != nil {
		promise.Fail(wrapErr)
		return
	}

	exec, _ := rxp.TryFrom(ctx)
	submitted := exec.TryExecute(ctx, func() {
		if err := conn.Handshake(ctx); err != nil {
			conn.Close()
			promise.Fail(err)
			return
		}
		promise.Succeed(conn)
	})
	if !submitted {
		conn.Close()
		promise.Fail(errors.New("sio: handshake was not submitted", errors.WithWrap(async.Busy)))
	}
	return
}
