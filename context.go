package sio

import (
	"os"
	"sync"

	"github.com/apex/log"
	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/sio/pkg/certs"
	"github.com/brickingsoft/sio/pkg/engine"
	"github.com/brickingsoft/sio/pkg/sockets"
	"golang.org/x/net/idna"
)

// PasswordFunc supplies the pass phrase protecting encrypted key material.
// Invoked lazily, once per prompt.
type PasswordFunc = engine.PasswordFunc

// FixedPassword wraps a static secret as a password source.
func FixedPassword(secret []byte) PasswordFunc {
	copied := append([]byte(nil), secret...)
	return func() ([]byte, error) {
		return copied, nil
	}
}

// ServerNameCallback runs during server handshakes once the requested host
// name is known. conn is the negotiating connection, serverName the decoded
// request (empty when the client indicated none), cc the Context the
// handshake started from. Returning a non-nil alert vetoes the handshake.
//
// Failures inside the callback never propagate through the engine's call
// stack: panics are caught at the boundary, logged, and converted into a
// fatal internal-error alert.
type ServerNameCallback func(conn *Conn, serverName string, cc *Context) *Alert

// Context owns engine-level configuration shared by every connection wrapped
// from it: trust store, certificate material, verification policy, protocol
// options, cipher preferences and negotiation callbacks. A Context may be
// mutated between connection creations; mutating it while connections are
// active carries no atomicity guarantee.
type Context struct {
	engine  engine.Engine
	cfg     engine.Config
	version ProtocolVersion

	mu       sync.RWMutex
	alpn     []string
	password PasswordFunc
	sniCB    ServerNameCallback
	conns    map[engine.Session]*Conn

	// Logger receives swallowed callback failures. Defaults to the global
	// apex logger.
	Logger log.Interface
}

// NewContext allocates a Context for the given protocol version on eng.
// The process-wide engine lock table is installed on first use.
func NewContext(eng engine.Engine, version ProtocolVersion) (*Context, error) {
	if eng == nil {
		return nil, errors.From(ErrConfig, errors.WithMeta("cause", "nil engine"))
	}
	if !version.Valid() {
		return nil, errors.From(ErrConfig, errors.WithMeta("cause", "invalid protocol version"))
	}
	engine.InstallLockTable(eng)
	cfg, cfgErr := eng.NewConfig(version)
	if cfgErr != nil {
		return nil, errors.From(ErrConfig, errors.WithWrap(cfgErr))
	}
	return &Context{
		engine:  eng,
		cfg:     cfg,
		version: version,
		conns:   make(map[engine.Session]*Conn),
		Logger:  log.Log,
	}, nil
}

// Protocol is the version selector the Context was created with.
func (cc *Context) Protocol() ProtocolVersion {
	return cc.version
}

// SetCipherList installs the cipher preference string, failing when the
// engine rejects every entry.
func (cc *Context) SetCipherList(list string) error {
	if err := cc.cfg.SetCipherList(list); err != nil {
		return errors.From(ErrConfig, errors.WithMeta("cause", "no cipher can be selected"), errors.WithWrap(err))
	}
	return nil
}

// LoadCertChain loads the PEM certificate chain and private key from files.
// keyFile may be empty when the key lives alongside the chain. password is
// consulted lazily when the key material is encrypted; its result must fit
// the engine's prompt buffer. On any failure the Context's prior password
// configuration is restored, so no callback state leaks from failed loads.
func (cc *Context) LoadCertChain(certFile string, keyFile string, password PasswordFunc) error {
	if certFile == "" {
		return errors.From(ErrConfig, errors.WithMeta("cause", "certfile is required"))
	}
	if keyFile == "" {
		keyFile = certFile
	}
	chainPEM, chainErr := os.ReadFile(certFile)
	if chainErr != nil {
		return errors.From(ErrConfig, errors.WithWrap(chainErr))
	}
	keyPEM, keyErr := os.ReadFile(keyFile)
	if keyErr != nil {
		return errors.From(ErrConfig, errors.WithWrap(keyErr))
	}

	cc.mu.Lock()
	prior := cc.password
	if password != nil {
		cc.password = password
	}
	effective := cc.password
	cc.mu.Unlock()

	restore := func() {
		cc.mu.Lock()
		cc.password = prior
		cc.mu.Unlock()
	}

	bounded := cc.boundedPassword(effective)
	if err := cc.cfg.UseCertChain(chainPEM); err != nil {
		restore()
		return errors.From(ErrConfig, errors.WithWrap(err))
	}
	if err := cc.cfg.UsePrivateKey(keyPEM, bounded); err != nil {
		restore()
		return errors.From(ErrConfig, errors.WithWrap(err))
	}
	if err := cc.cfg.CheckPrivateKey(); err != nil {
		restore()
		return errors.From(ErrConfig, errors.WithWrap(err))
	}
	return nil
}

// boundedPassword enforces the engine's prompt buffer constraint around one
// password source, memoizing the result so a prompt asks at most once.
func (cc *Context) boundedPassword(source PasswordFunc) engine.PasswordFunc {
	if source == nil {
		return nil
	}
	var (
		once   sync.Once
		secret []byte
		err    error
	)
	maxLen := cc.cfg.PasswordMaxLen()
	return func() ([]byte, error) {
		once.Do(func() {
			secret, err = source()
			if err != nil {
				return
			}
			if len(secret) > maxLen {
				secret = nil
				err = errors.From(ErrConfig,
					errors.WithMeta("cause", "password cannot be longer than the engine buffer"))
			}
		})
		return secret, err
	}
}

// LoadVerifyLocations extends the trust store from a CA bundle file and/or a
// hashed CA directory; at least one must be given.
func (cc *Context) LoadVerifyLocations(caFile string, caPath string) error {
	if caFile == "" && caPath == "" {
		return errors.From(ErrConfig, errors.WithMeta("cause", "cafile or capath is required"))
	}
	var bundle []byte
	if caFile != "" {
		data, readErr := os.ReadFile(caFile)
		if readErr != nil {
			return errors.From(ErrConfig, errors.WithWrap(readErr))
		}
		bundle = data
	}
	if err := cc.cfg.LoadVerifyLocations(bundle, caPath); err != nil {
		return errors.From(ErrConfig, errors.WithWrap(err))
	}
	return nil
}

// SetDefaultVerifyPaths loads the system trust store.
func (cc *Context) SetDefaultVerifyPaths() error {
	if err := cc.cfg.SetDefaultVerifyPaths(); err != nil {
		return errors.From(ErrConfig, errors.WithWrap(err))
	}
	return nil
}

// LoadDHParams installs Diffie-Hellman parameters from a PEM file.
func (cc *Context) LoadDHParams(path string) error {
	if path == "" {
		return errors.From(ErrConfig, errors.WithMeta("cause", "dh params path is required"))
	}
	pem, readErr := os.ReadFile(path)
	if readErr != nil {
		return errors.From(ErrConfig, errors.WithWrap(readErr))
	}
	if err := cc.cfg.SetDHParams(pem); err != nil {
		return errors.From(ErrConfig, errors.WithWrap(err))
	}
	return nil
}

// SetECDHCurve selects the key exchange curve by name.
func (cc *Context) SetECDHCurve(name string) error {
	if err := cc.cfg.SetECDHCurve(name); err != nil {
		return errors.From(ErrConfig, errors.WithMeta("curve", name), errors.WithWrap(err))
	}
	return nil
}

// Verify is the current peer verification mode.
func (cc *Context) Verify() VerifyMode {
	return cc.cfg.Verify()
}

// SetVerify installs the peer verification mode.
func (cc *Context) SetVerify(mode VerifyMode) error {
	if !mode.Valid() {
		return errors.From(ErrConfig, errors.WithMeta("cause", "invalid verification mode"))
	}
	if err := cc.cfg.SetVerify(mode); err != nil {
		return errors.From(ErrConfig, errors.WithWrap(err))
	}
	return nil
}

// ProtocolOptions is the current protocol toggle bitset.
func (cc *Context) ProtocolOptions() Options {
	return cc.cfg.Options()
}

// SetProtocolOptions replaces the toggle bitset, returning the effective
// set. Clearing previously set flags fails explicitly on engines that do not
// support it.
func (cc *Context) SetProtocolOptions(opts Options) (Options, error) {
	current := cc.cfg.Options()
	if clearing := current &^ opts; clearing != 0 && !cc.engine.SupportsClearOptions() {
		return current, errors.From(ErrConfig, errors.WithMeta("cause", "this engine cannot clear options"))
	}
	effective, err := cc.cfg.SetOptions(opts)
	if err != nil {
		return current, errors.From(ErrConfig, errors.WithWrap(err))
	}
	return effective, nil
}

// SetALPNProtos installs the application protocol preference list, most
// preferred first, propagated to every later wrapped connection.
func (cc *Context) SetALPNProtos(protos []string) {
	cc.mu.Lock()
	cc.alpn = append([]string(nil), protos...)
	cc.mu.Unlock()
}

// SessionStats reports the engine's session cache counters.
func (cc *Context) SessionStats() Stats {
	return cc.cfg.Stats()
}

// CACertificates lists the trust store's CA-flagged certificates as decoded
// identity records.
func (cc *Context) CACertificates() ([]*certs.Identity, error) {
	ders := cc.cfg.CACerts(true)
	out := make([]*certs.Identity, 0, len(ders))
	for _, der := range ders {
		identity, decodeErr := certs.Decode(der)
		if decodeErr != nil {
			return nil, errors.From(ErrDecode, errors.WithWrap(decodeErr))
		}
		out = append(out, identity)
	}
	return out, nil
}

// CACertificatesDER lists the whole trust store in raw DER form.
func (cc *Context) CACertificatesDER() [][]byte {
	return cc.cfg.CACerts(false)
}

// SetServerNameCallback installs or clears (nil) the per-handshake server
// name hook on the server role. The engine-facing wrapper never lets a
// callback failure escape into the handshake machinery: panics are logged
// and converted to a fatal internal-error alert.
func (cc *Context) SetServerNameCallback(cb ServerNameCallback) {
	cc.mu.Lock()
	cc.sniCB = cb
	cc.mu.Unlock()
	if cb == nil {
		cc.cfg.SetServerNameCallback(nil)
		return
	}
	cc.cfg.SetServerNameCallback(func(sess engine.Session, serverName string) (alert Alert) {
		defer func() {
			if r := recover(); r != nil {
				cc.logger().Errorf("sio: server name callback failed: %v", r)
				alert = engine.AlertInternalError
			}
		}()
		cc.mu.RLock()
		hook := cc.sniCB
		conn := cc.conns[sess]
		cc.mu.RUnlock()
		if hook == nil {
			return engine.AlertNone
		}
		veto := hook(conn, serverName, cc)
		if veto != nil {
			return *veto
		}
		return engine.AlertNone
	})
}

// WrapSocket binds sock to a new connection in the given role. serverName is
// a client-side indication and is encoded per the internationalized domain
// name convention before use; supplying one for a server role, or on an
// engine without server name support, is a hard configuration failure.
func (cc *Context) WrapSocket(sock sockets.Socket, role Role, serverName string) (*Conn, error) {
	if sock == nil {
		return nil, errors.From(ErrNoSocket)
	}
	encoded := ""
	if serverName != "" {
		if role == RoleServer {
			return nil, errors.From(ErrConfig,
				errors.WithMeta("cause", "server name is a client-side indication"))
		}
		if !cc.engine.SupportsServerName() {
			return nil, errors.From(ErrConfig,
				errors.WithMeta("cause", "engine does not support server name indication"))
		}
		ascii, idnaErr := idna.Lookup.ToASCII(serverName)
		if idnaErr != nil {
			return nil, errors.From(ErrConfig, errors.WithWrap(idnaErr))
		}
		encoded = ascii
	}
	return cc.bind(sock, role, encoded)
}

// Close releases the configuration handle. Connections already wrapped hold
// their own engine references and stay valid until individually closed.
func (cc *Context) Close() error {
	return cc.cfg.Close()
}

func (cc *Context) logger() log.Interface {
	if cc.Logger != nil {
		return cc.Logger
	}
	return log.Log
}

func (cc *Context) track(sess engine.Session, conn *Conn) {
	cc.mu.Lock()
	cc.conns[sess] = conn
	cc.mu.Unlock()
}

func (cc *Context) untrack(sess engine.Session) {
	cc.mu.Lock()
	delete(cc.conns, sess)
	cc.mu.Unlock()
}
