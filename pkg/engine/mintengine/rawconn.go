package mintengine

import (
	stderrors "errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bifurcation/mint"
	"golang.org/x/sys/unix"
)

// blocked records the transport direction of the most recent short I/O.
type blocked int

const (
	blockedNone blocked = iota
	blockedRead
	blockedWrite
)

// errRawEOF marks the transport's end of stream. Before the handshake
// completes the session treats it as an abrupt failure; afterwards it is the
// peer's closure signal, because this engine's record layer cannot carry the
// protected close alert and closure travels as a transport half close
// instead.
var errRawEOF = stderrors.New("mintengine: transport end of stream")

// isAgain reports a non-blocking read or write that found the transport dry
// or full.
func isAgain(err error) bool {
	return stderrors.Is(err, unix.EAGAIN)
}

// rawConn adapts the bound transport to the net.Conn surface the record
// layer consumes. The transport is non-blocking: a dry read or full write is
// surfaced as mint's would-block alert while the direction and any hard
// transport error are retained for classification.
//
// Closing a rawConn does not close the transport. The transport belongs to
// the caller of the session layer and outlives the session.
type rawConn struct {
	inner io.ReadWriter

	mu     sync.Mutex
	dir    blocked
	sysErr error
	closed bool
	eof    bool
	nRead  int64
}

func newRawConn(inner io.ReadWriter) *rawConn {
	return &rawConn{inner: inner}
}

func (r *rawConn) Read(p []byte) (int, error) {
	if r.isClosed() {
		return 0, io.EOF
	}
	n, err := r.inner.Read(p)
	if err != nil {
		if stderrors.Is(err, unix.EAGAIN) {
			r.setBlocked(blockedRead)
			return 0, mint.AlertWouldBlock
		}
		if stderrors.Is(err, io.EOF) {
			r.setEOF()
			return 0, errRawEOF
		}
		r.setSysErr(err)
		return n, err
	}
	// A zero-length result with no error is the transport's end of stream.
	if n == 0 && len(p) > 0 {
		r.setEOF()
		return 0, errRawEOF
	}
	r.mu.Lock()
	r.nRead += int64(n)
	r.mu.Unlock()
	return n, nil
}

// totalRead is the byte count consumed from the transport so far.
func (r *rawConn) totalRead() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nRead
}

func (r *rawConn) Write(p []byte) (int, error) {
	if r.isClosed() {
		return 0, io.ErrClosedPipe
	}
	n, err := r.inner.Write(p)
	if err != nil {
		if stderrors.Is(err, unix.EAGAIN) {
			r.setBlocked(blockedWrite)
			return n, mint.AlertWouldBlock
		}
		r.setSysErr(err)
		return n, err
	}
	return n, nil
}

// Close detaches the shim without touching the transport.
func (r *rawConn) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// closeWrite ends the outbound direction of the transport so the peer
// observes end of stream. Transports that cannot half close cannot signal
// closure to a live peer.
func (r *rawConn) closeWrite() error {
	cw, ok := r.inner.(interface{ CloseWrite() error })
	if !ok {
		return stderrors.New("mintengine: transport does not support half close")
	}
	return cw.CloseWrite()
}

func (r *rawConn) setEOF() {
	r.mu.Lock()
	r.eof = true
	r.mu.Unlock()
}

// sawEOF reports whether any read observed the transport's end of stream.
func (r *rawConn) sawEOF() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eof
}

func (r *rawConn) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *rawConn) setBlocked(dir blocked) {
	r.mu.Lock()
	r.dir = dir
	r.mu.Unlock()
}

// takeBlocked returns and resets the recorded short I/O direction.
func (r *rawConn) takeBlocked() blocked {
	r.mu.Lock()
	dir := r.dir
	r.dir = blockedNone
	r.mu.Unlock()
	return dir
}

func (r *rawConn) setSysErr(err error) {
	r.mu.Lock()
	r.sysErr = err
	r.mu.Unlock()
}

func (r *rawConn) lastSysErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sysErr
}

type rawAddr struct{}

func (rawAddr) Network() string { return "raw" }
func (rawAddr) String() string  { return "raw" }

func (r *rawConn) LocalAddr() net.Addr                { return rawAddr{} }
func (r *rawConn) RemoteAddr() net.Addr               { return rawAddr{} }
func (r *rawConn) SetDeadline(t time.Time) error      { return nil }
func (r *rawConn) SetReadDeadline(t time.Time) error  { return nil }
func (r *rawConn) SetWriteDeadline(t time.Time) error { return nil }
