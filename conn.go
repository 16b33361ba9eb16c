package sio

import (
	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/sio/pkg/certs"
	"github.com/brickingsoft/sio/pkg/engine"
	"github.com/brickingsoft/sio/pkg/sockets"
)

// State is the connection lifecycle position.
type State int

const (
	StateCreated State = iota
	StateHandshaking
	StateEstablished
	StateShuttingDown
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	case StateShuttingDown:
		return "shutting down"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Conn is one active or negotiating session bound to one socket. A Conn does
// not own its socket: the reference is a non-owning back-reference whose
// liveness is checked before every operation, since the owning layer may
// close the socket at any point between calls.
//
// Operations on a single Conn are not safe to invoke concurrently; callers
// serialize access. Separate Conns sharing one Context may run concurrently.
type Conn struct {
	cc   *Context
	sess engine.Session
	sock sockets.Socket
	role Role

	state            State
	peerDER          []byte
	shutdownSeenZero bool
}

// bind allocates one engine session from the Context's configuration and
// attaches it to the socket. No peer certificate exists yet; allocation
// failure is fatal for the connection being built.
func (cc *Context) bind(sock sockets.Socket, role Role, serverName string) (*Conn, error) {
	cc.mu.RLock()
	alpn := append([]string(nil), cc.alpn...)
	cc.mu.RUnlock()

	sess, sessErr := cc.cfg.NewSession(engine.Bind{
		Fd:          sock.Fd(),
		Transport:   sock,
		Client:      role == RoleClient,
		ServerName:  serverName,
		ALPN:        alpn,
		Nonblocking: sock.Timeout() >= 0,
	})
	if sessErr != nil {
		return nil, errors.From(ErrConfig, errors.WithWrap(sessErr))
	}
	conn := &Conn{
		cc:    cc,
		sess:  sess,
		sock:  sock,
		role:  role,
		state: StateCreated,
	}
	cc.track(sess, conn)
	return conn, nil
}

// socket resolves the weak back-reference, failing when the owning layer has
// already dropped or closed the socket.
func (c *Conn) socket() (sockets.Socket, error) {
	if c.sock == nil {
		return nil, errors.From(ErrNoSocket)
	}
	return c.sock, nil
}

// syncIOMode aligns the session's transport I/O mode with the socket's
// current timeout. The mode can change between any two calls, so every
// operation re-syncs before touching the engine.
func (c *Conn) syncIOMode(sock sockets.Socket) {
	c.sess.SetNonblocking(sock.Timeout() >= 0)
}

func (c *Conn) fail(err error) error {
	c.state = StateFailed
	return err
}

// Role is the session direction the connection was bound with.
func (c *Conn) Role() Role {
	return c.role
}

// State is the connection's lifecycle position.
func (c *Conn) State() State {
	return c.state
}

// Pending is the count of decrypted bytes buffered inside the engine
// session, readable without transport I/O.
func (c *Conn) Pending() int {
	return c.sess.Pending()
}

// Cipher describes the negotiated cipher, false before the handshake
// completes.
func (c *Conn) Cipher() (CipherInfo, bool) {
	return c.sess.CipherInfo()
}

// CompressionName is the negotiated compression method, false when none.
func (c *Conn) CompressionName() (string, bool) {
	return c.sess.CompressionName()
}

// ALPNProtocol is the negotiated application protocol, false when none was
// agreed.
func (c *Conn) ALPNProtocol() ([]byte, bool) {
	return c.sess.ALPNProtocol()
}

// ChannelBinding returns channel binding data of the given kind
// ("tls-unique"), false when unsupported or not yet available.
func (c *Conn) ChannelBinding(kind string) ([]byte, bool) {
	return c.sess.ChannelBinding(kind)
}

// PeerCertificateDER is the peer's leaf certificate as captured by the last
// completed handshake, nil when the peer presented none.
func (c *Conn) PeerCertificateDER() ([]byte, error) {
	if c.state != StateEstablished && c.peerDER == nil {
		return nil, errors.From(ErrInvalidState, errors.WithMeta("cause", "handshake has not been done"))
	}
	if c.peerDER == nil {
		return nil, nil
	}
	return certs.ToDER(c.peerDER), nil
}

// PeerIdentity decodes the peer's leaf certificate into an identity record.
// The record is produced fresh on every call and never cached; nil identity
// with nil error means the peer presented no certificate.
func (c *Conn) PeerIdentity() (*certs.Identity, error) {
	der, derErr := c.PeerCertificateDER()
	if derErr != nil {
		return nil, derErr
	}
	if der == nil {
		return nil, nil
	}
	identity, decodeErr := certs.Decode(der)
	if decodeErr != nil {
		return nil, errors.From(ErrDecode, errors.WithWrap(decodeErr))
	}
	return identity, nil
}

// DetachSocket drops the socket back-reference. Later operations fail with
// ErrNoSocket. Used by owners that reclaim the transport without a full
// shutdown exchange.
func (c *Conn) DetachSocket() {
	c.sock = nil
}

// Close releases the session, the stored peer certificate and the Context
// reference. The socket is untouched; its owner controls its lifetime.
func (c *Conn) Close() error {
	if c.state == StateClosed && c.sess == nil {
		return nil
	}
	c.peerDER = nil
	c.state = StateClosed
	if c.sess != nil {
		c.cc.untrack(c.sess)
		err := c.sess.Close()
		c.sess = nil
		return err
	}
	return nil
}
