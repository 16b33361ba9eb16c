// Package engine defines the contract between the session layer and the
// underlying TLS implementation. The session layer never touches key material
// or record encoding itself, it only interprets results and schedules
// retries.
package engine

import (
	"io"
)

// ProtocolVersion selects the protocol family a Config negotiates.
type ProtocolVersion int

const (
	// ProtocolAuto negotiates the highest version both peers support.
	ProtocolAuto ProtocolVersion = iota
	ProtocolTLS10
	ProtocolTLS11
	ProtocolTLS12
	ProtocolTLS13
)

func (v ProtocolVersion) Valid() bool {
	return v >= ProtocolAuto && v <= ProtocolTLS13
}

func (v ProtocolVersion) String() string {
	switch v {
	case ProtocolAuto:
		return "auto"
	case ProtocolTLS10:
		return "TLSv1"
	case ProtocolTLS11:
		return "TLSv1.1"
	case ProtocolTLS12:
		return "TLSv1.2"
	case ProtocolTLS13:
		return "TLSv1.3"
	}
	return "unknown"
}

// VerifyMode controls how a Config treats the peer certificate.
type VerifyMode int

const (
	VerifyNone VerifyMode = iota
	VerifyOptional
	VerifyRequired
)

func (m VerifyMode) Valid() bool {
	return m >= VerifyNone && m <= VerifyRequired
}

// Options is the bitset of protocol toggles a Config carries. Engines that
// cannot clear previously set flags report that through
// Engine.SupportsClearOptions.
type Options uint64

const (
	OptionNoTLS10 Options = 1 << iota
	OptionNoTLS11
	OptionNoTLS12
	OptionNoTLS13
	OptionNoCompression
	OptionNoRenegotiation
	OptionNoTickets
	OptionCipherServerPreference
	OptionSingleECDHUse
)

// Alert mirrors the protocol alert numbering. AlertNone is the out-of-band
// "proceed" value used by callbacks that may veto a handshake.
type Alert uint8

const (
	AlertCloseNotify            Alert = 0
	AlertUnexpectedMessage      Alert = 10
	AlertBadRecordMAC           Alert = 20
	AlertRecordOverflow         Alert = 22
	AlertHandshakeFailure       Alert = 40
	AlertBadCertificate         Alert = 42
	AlertUnsupportedCertificate Alert = 43
	AlertCertificateRevoked     Alert = 44
	AlertCertificateExpired     Alert = 45
	AlertCertificateUnknown     Alert = 46
	AlertIllegalParameter       Alert = 47
	AlertUnknownCA              Alert = 48
	AlertAccessDenied           Alert = 49
	AlertDecodeError            Alert = 50
	AlertDecryptError           Alert = 51
	AlertProtocolVersion        Alert = 70
	AlertInsufficientSecurity   Alert = 71
	AlertInternalError          Alert = 80
	AlertUserCanceled           Alert = 90
	AlertMissingExtension       Alert = 109
	AlertUnsupportedExtension   Alert = 110
	AlertUnrecognizedName       Alert = 112
	AlertCertificateRequired    Alert = 116
	AlertNoApplicationProtocol  Alert = 120
	AlertNone                   Alert = 255
)

// QueuedError is one entry popped from a session's pending error queue,
// identifying the engine library and reason for a protocol-level failure.
type QueuedError struct {
	Library int
	Reason  int
	Message string
}

// ServerNameCallback is invoked by server sessions once the requested host
// name is known. Returning an alert other than AlertNone vetoes the
// handshake. Implementations installed through the session layer never
// panic across this boundary; the layer converts panics into
// AlertInternalError before they reach the engine.
type ServerNameCallback func(sess Session, serverName string) Alert

// PasswordFunc supplies the pass phrase protecting encrypted key material.
// It is invoked lazily, once per prompt.
type PasswordFunc func() ([]byte, error)

// Bind carries everything a Config needs to allocate one Session attached to
// one transport.
type Bind struct {
	// Fd is the transport's native descriptor, or -1 when the transport is
	// not descriptor backed.
	Fd int
	// Transport is the raw byte stream the session performs its own I/O on.
	// Reads and writes are non-blocking: an empty or full transport fails
	// with EAGAIN rather than blocking.
	Transport io.ReadWriter
	// Client selects the session direction.
	Client bool
	// ServerName is the host name indicated during a client handshake.
	// Empty means no indication.
	ServerName string
	// ALPN is the application protocol preference list, most preferred
	// first. Nil means no negotiation.
	ALPN []string
	// Nonblocking is the transport's I/O mode at bind time. Sessions must
	// accept later SetNonblocking calls as the mode changes.
	Nonblocking bool
}

// CipherInfo describes the negotiated cipher of an established session.
type CipherInfo struct {
	Name     string
	Protocol string
	Bits     int
}

// Engine is one TLS implementation. Engines are stateless factories; all
// negotiated state lives in Configs and Sessions.
type Engine interface {
	// Name identifies the engine in diagnostics.
	Name() string
	// MaxWriteSize is the largest buffer a single Session.Write accepts.
	MaxWriteSize() int
	// SupportsServerName reports whether sessions can send and receive the
	// server name indication extension.
	SupportsServerName() bool
	// SupportsClearOptions reports whether Config.SetOptions can clear
	// previously set flags.
	SupportsClearOptions() bool
	// LockCount is the number of internal lock slots the engine needs
	// externally serialized, zero when the engine synchronizes itself.
	LockCount() int
	// InstallLocking registers the process wide lock callbacks. Called at
	// most once per process, before any Config exists.
	InstallLocking(lock, unlock func(slot int))
	// NewConfig allocates a configuration handle for the given protocol
	// selector.
	NewConfig(version ProtocolVersion) (Config, error)
}

// Config is one engine-level configuration handle, shared by every session
// created from it. Mutating a Config while sessions are active carries no
// atomicity guarantee.
type Config interface {
	// NewSession allocates one session bound to one transport.
	NewSession(bind Bind) (Session, error)
	// SetCipherList installs the cipher preference string. It fails when no
	// entry is usable.
	SetCipherList(list string) error
	// UseCertChain installs the PEM encoded leaf and intermediate chain.
	UseCertChain(chainPEM []byte) error
	// UsePrivateKey installs the PEM encoded private key, consulting
	// password when the material is encrypted.
	UsePrivateKey(keyPEM []byte, password PasswordFunc) error
	// CheckPrivateKey verifies the installed key matches the installed
	// leaf certificate.
	CheckPrivateKey() error
	// PasswordMaxLen is the engine's buffer bound for one password prompt.
	PasswordMaxLen() int
	// LoadVerifyLocations extends the trust store from a CA bundle and/or
	// a CA directory. Empty arguments are skipped.
	LoadVerifyLocations(bundlePEM []byte, dir string) error
	// SetDefaultVerifyPaths loads the system trust store.
	SetDefaultVerifyPaths() error
	// SetVerify installs the peer verification mode.
	SetVerify(mode VerifyMode) error
	Verify() VerifyMode
	// SetOptions replaces the option bitset, returning the effective set.
	SetOptions(opts Options) (Options, error)
	Options() Options
	// SetDHParams installs PEM encoded Diffie-Hellman parameters.
	SetDHParams(pem []byte) error
	// SetECDHCurve selects the key exchange curve by name.
	SetECDHCurve(name string) error
	// SetServerNameCallback installs or clears (nil) the per-handshake
	// server name hook.
	SetServerNameCallback(cb ServerNameCallback)
	// Stats reports the session cache counters.
	Stats() Stats
	// CACerts lists the trust store contents in DER form. When caOnly is
	// set, only CA-flagged certificates are returned.
	CACerts(caOnly bool) [][]byte
	// Close releases the handle. Sessions created from it keep their own
	// references and stay valid.
	Close() error
}

// Session is one negotiated or negotiating connection. Sessions are not safe
// for concurrent use; callers serialize access.
//
// HandshakeStep, Read, Write and ShutdownStep return the engine's native
// result: positive on progress, zero or negative on incompletion or failure.
// Classify interprets the result of the call that just returned it.
type Session interface {
	HandshakeStep() int
	Read(p []byte) int
	Write(p []byte) int
	ShutdownStep() int

	// Classify maps the result of the just-completed operation onto the
	// shared code enumeration.
	Classify(ret int) Code
	// PopError pops one entry from the pending error queue.
	PopError() (QueuedError, bool)
	// DrainErrors discards the pending error queue. Classification sites
	// call this unconditionally so stale entries never leak into later
	// unrelated failures.
	DrainErrors()
	// LastSysError is the transport-level error behind a Syscall result,
	// nil when the failure was not a transport one.
	LastSysError() error

	// Pending is the count of decrypted bytes already buffered inside the
	// session, readable without any transport I/O.
	Pending() int
	// SetNonblocking aligns the session's transport I/O mode with the
	// socket's current state. Called before every operation.
	SetNonblocking(nonblocking bool)
	// SetReadAhead toggles speculative transport reads beyond the current
	// record. Disabled during shutdown so plaintext sent before the peer's
	// close is not consumed.
	SetReadAhead(enabled bool)

	// PeerCertificate is the peer's leaf certificate in DER form, nil when
	// the peer presented none.
	PeerCertificate() []byte
	CipherInfo() (CipherInfo, bool)
	CompressionName() (string, bool)
	ALPNProtocol() ([]byte, bool)
	// ChannelBinding returns the channel binding data of the given kind
	// ("tls-unique"), false when the kind is unsupported or the data is
	// not yet available.
	ChannelBinding(kind string) ([]byte, bool)
	// ReceivedShutdown reports whether the peer's close notification has
	// been consumed.
	ReceivedShutdown() bool
	// HandshakeDone reports whether the session reached the established
	// state at least once.
	HandshakeDone() bool
	// Close releases the session and its Config reference.
	Close() error
}

// Stats is the session cache counter snapshot of one Config.
type Stats struct {
	Number             int64
	Connect            int64
	ConnectGood        int64
	ConnectRenegotiate int64
	Accept             int64
	AcceptGood         int64
	AcceptRenegotiate  int64
	Hits               int64
	Misses             int64
	Timeouts           int64
	CacheFull          int64
}
