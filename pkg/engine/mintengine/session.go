package mintengine

import (
	stderrors "errors"
	"io"
	"runtime"

	"github.com/bifurcation/mint"
	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/sio/pkg/engine"
)

const (
	stashChunk  = 4096
	settleSpins = 1000
)

// session drives one mint connection in non-blocking steps. Sessions are not
// safe for concurrent use, matching the contract; only the error and
// direction records shared with the transport shim are synchronized.
type session struct {
	cfg    *config
	conn   *mint.Conn
	raw    *rawConn
	client bool

	code   engine.Code
	queued []engine.QueuedError

	stash            []byte
	seenRaw          int64
	readAhead        bool
	handshakeDone    bool
	sentShutdown     bool
	receivedShutdown bool
	closed           bool
}

func newSession(cfg *config, bind engine.Bind, mc *mint.Config) *session {
	raw := newRawConn(bind.Transport)
	sess := &session{
		cfg:       cfg,
		raw:       raw,
		client:    bind.Client,
		code:      engine.Ok,
		readAhead: true,
	}
	if !bind.Client {
		mc.ExtensionHandler = &sniHandler{sess: sess}
	}
	sess.conn = mint.NewConn(raw, mc, bind.Client)
	return sess
}

// sniHandler surfaces the requested host name to the installed callback
// while the client hello is being processed. A veto aborts the handshake.
type sniHandler struct {
	sess *session
}

func (h *sniHandler) Send(hs mint.HandshakeType, el *mint.ExtensionList) error {
	return nil
}

func (h *sniHandler) Receive(hs mint.HandshakeType, el *mint.ExtensionList) error {
	if hs != mint.HandshakeTypeClientHello {
		return nil
	}
	cb := h.sess.cfg.serverNameCallback()
	if cb == nil {
		return nil
	}
	var sni mint.ServerNameExtension
	name := ""
	if found, _ := el.Find(&sni); found {
		name = string(sni)
	}
	if alert := cb(h.sess, name); alert != engine.AlertNone {
		h.sess.queue(engine.QueuedError{
			Library: engine.LibSSL,
			Reason:  int(alert),
			Message: "server name callback vetoed the handshake",
		})
		return errors.New("mintengine: server name rejected")
	}
	return nil
}

// HandshakeStep advances the handshake until it completes or blocks.
func (s *session) HandshakeStep() int {
	for {
		alert := s.conn.Handshake()
		switch alert {
		case mint.AlertNoAlert:
			if st := s.conn.GetHsState(); st == mint.StateClientConnected || st == mint.StateServerConnected {
				if !s.handshakeDone {
					s.handshakeDone = true
					s.seenRaw = s.raw.totalRead()
					s.cfg.noteHandshakeDone(s.client)
				}
				s.code = engine.Ok
				return 1
			}
		case mint.AlertWouldBlock:
			s.code = s.wantFromTransport()
			return -1
		default:
			return s.failAlert(alert)
		}
	}
}

// Read drains the session's stash before touching the record layer.
func (s *session) Read(p []byte) int {
	if len(p) == 0 {
		s.code = engine.Ok
		return 0
	}
	if len(s.stash) > 0 {
		n := copy(p, s.stash)
		s.stash = s.stash[n:]
		s.code = engine.Ok
		return n
	}
	n, err := s.conn.Read(p)
	if err != nil {
		if stderrors.Is(err, mint.AlertWouldBlock) {
			// The record layer may still be decrypting bytes it already
			// consumed from the transport; let it finish before reporting a
			// transport wait the transport would never satisfy.
			s.settle()
			if len(s.stash) > 0 {
				n = copy(p, s.stash)
				s.stash = s.stash[n:]
				s.code = engine.Ok
				return n
			}
			if s.receivedShutdown || s.raw.sawEOF() {
				s.receivedShutdown = true
				s.code = engine.ZeroReturn
				return 0
			}
			s.code = engine.WantRead
			return -1
		}
		return s.failRead(err)
	}
	if n == 0 {
		s.code = engine.WantRead
		return -1
	}
	s.seenRaw = s.raw.totalRead()
	s.code = engine.Ok
	return n
}

// settle gives the record layer a bounded window to surface plaintext for
// transport bytes it already consumed. Without it a caller could wait on
// transport readability for data that will never arrive there again.
func (s *session) settle() {
	if !s.handshakeDone || s.sentShutdown {
		return
	}
	if s.raw.totalRead() == s.seenRaw {
		return
	}
	for i := 0; i < settleSpins; i++ {
		scratch := make([]byte, stashChunk)
		n, err := s.conn.Read(scratch)
		if n > 0 {
			s.stash = append(s.stash, scratch[:n]...)
			s.seenRaw = s.raw.totalRead()
			return
		}
		if err != nil && !stderrors.Is(err, mint.AlertWouldBlock) {
			if isEndOfStream(err) {
				s.receivedShutdown = true
			}
			s.seenRaw = s.raw.totalRead()
			return
		}
		runtime.Gosched()
	}
	// Likely a partial record; genuinely more transport bytes are needed.
	s.seenRaw = s.raw.totalRead()
}

// isEndOfStream covers both the record layer's own clean close report and the
// transport half close peers of this engine use to signal closure.
func isEndOfStream(err error) bool {
	return stderrors.Is(err, io.EOF) || stderrors.Is(err, errRawEOF)
}

func (s *session) failRead(err error) int {
	switch {
	case stderrors.Is(err, mint.AlertWouldBlock):
		s.code = engine.WantRead
		return -1
	case isEndOfStream(err):
		if s.handshakeDone {
			s.receivedShutdown = true
			s.code = engine.ZeroReturn
			return 0
		}
		// An end of stream mid-handshake is a truncated connection.
		s.code = engine.Syscall
		return 0
	default:
		return s.failure(err)
	}
}

// Write hands a private copy to the record layer; mint encrypts
// asynchronously and the caller may reuse p immediately.
func (s *session) Write(p []byte) int {
	if len(p) == 0 {
		s.code = engine.Ok
		return 0
	}
	buffered := append([]byte(nil), p...)
	n, err := s.conn.Write(buffered)
	if err != nil {
		switch {
		case stderrors.Is(err, mint.AlertWouldBlock):
			s.code = engine.WantWrite
			return -1
		case stderrors.Is(err, io.EOF):
			s.code = engine.ZeroReturn
			return 0
		case stderrors.Is(err, errRawEOF):
			s.code = engine.Syscall
			return 0
		default:
			return s.failure(err)
		}
	}
	s.code = engine.Ok
	return n
}

// ShutdownStep performs one leg of the bidirectional close. The record layer
// cannot carry the protected close alert, so the notification travels as a
// transport half close. The first call flushes any buffered inbound data and
// ends the write side, reporting 0 unless the peer's closure was already
// observed. Later calls watch the transport for the peer's end of stream.
func (s *session) ShutdownStep() int {
	if s.sentShutdown && s.receivedShutdown {
		s.code = engine.Ok
		return 1
	}
	if !s.sentShutdown {
		s.drainInbound()
		if err := s.raw.closeWrite(); err != nil {
			s.raw.setSysErr(err)
			s.code = engine.Syscall
			return -1
		}
		s.sentShutdown = true
		s.code = engine.Ok
		if s.receivedShutdown {
			return 1
		}
		return 0
	}
	// Trailing application data the caller never read is discarded; only the
	// peer's end of stream completes the exchange.
	scratch := make([]byte, 256)
	for {
		n, err := s.raw.inner.Read(scratch)
		if err != nil {
			if isAgain(err) {
				s.code = engine.WantRead
				return -1
			}
			if stderrors.Is(err, io.EOF) {
				break
			}
			s.raw.setSysErr(err)
			s.code = engine.Syscall
			return -1
		}
		if n == 0 {
			break
		}
	}
	s.receivedShutdown = true
	s.code = engine.Ok
	return 1
}

// drainInbound moves already-arrived plaintext into the stash so a pending
// close notification can be observed. Only performed while read-ahead is
// allowed.
func (s *session) drainInbound() {
	if !s.handshakeDone || !s.readAhead {
		return
	}
	for {
		scratch := make([]byte, stashChunk)
		n, err := s.conn.Read(scratch)
		if n > 0 {
			s.stash = append(s.stash, scratch[:n]...)
			continue
		}
		if err != nil && isEndOfStream(err) {
			s.receivedShutdown = true
		}
		return
	}
}

func (s *session) failAlert(alert mint.Alert) int {
	if sysErr := s.raw.lastSysErr(); sysErr != nil {
		s.code = engine.Syscall
		return -1
	}
	s.queue(engine.QueuedError{
		Library: engine.LibSSL,
		Reason:  int(alert),
		Message: alert.String(),
	})
	s.code = engine.Protocol
	return -1
}

func (s *session) failure(err error) int {
	var alert mint.Alert
	if stderrors.As(err, &alert) {
		return s.failAlert(alert)
	}
	if sysErr := s.raw.lastSysErr(); sysErr != nil {
		s.code = engine.Syscall
		return -1
	}
	s.raw.setSysErr(err)
	s.code = engine.Syscall
	return -1
}

func (s *session) wantFromTransport() engine.Code {
	if s.raw.takeBlocked() == blockedWrite {
		return engine.WantWrite
	}
	return engine.WantRead
}

func (s *session) Classify(ret int) engine.Code {
	return s.code
}

func (s *session) queue(entry engine.QueuedError) {
	s.queued = append(s.queued, entry)
}

func (s *session) PopError() (engine.QueuedError, bool) {
	if len(s.queued) == 0 {
		return engine.QueuedError{}, false
	}
	entry := s.queued[0]
	s.queued = s.queued[1:]
	return entry, true
}

func (s *session) DrainErrors() {
	s.queued = nil
}

func (s *session) LastSysError() error {
	return s.raw.lastSysErr()
}

// Pending counts buffered plaintext, prefetching one non-blocking read when
// the stash is empty and read-ahead is allowed.
func (s *session) Pending() int {
	if len(s.stash) > 0 {
		return len(s.stash)
	}
	if !s.handshakeDone || s.sentShutdown || !s.readAhead {
		return 0
	}
	s.settle()
	if len(s.stash) > 0 {
		return len(s.stash)
	}
	scratch := make([]byte, stashChunk)
	n, err := s.conn.Read(scratch)
	if n > 0 {
		s.stash = append(s.stash, scratch[:n]...)
		s.seenRaw = s.raw.totalRead()
		return n
	}
	if err != nil && isEndOfStream(err) {
		s.receivedShutdown = true
	}
	return 0
}

// SetNonblocking is advisory: the connection always runs non-blocking and
// the caller supplies readiness waits.
func (s *session) SetNonblocking(nonblocking bool) {}

func (s *session) SetReadAhead(enabled bool) {
	s.readAhead = enabled
}

func (s *session) PeerCertificate() []byte {
	if !s.handshakeDone {
		return nil
	}
	state := s.conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	return append([]byte(nil), state.PeerCertificates[0].Raw...)
}

func (s *session) CipherInfo() (engine.CipherInfo, bool) {
	if !s.handshakeDone {
		return engine.CipherInfo{}, false
	}
	state := s.conn.ConnectionState()
	info, known := suiteInfo[state.CipherSuite.Suite]
	if !known {
		return engine.CipherInfo{}, false
	}
	return info, true
}

// CompressionName is always NULL: TLS 1.3 removed record compression.
func (s *session) CompressionName() (string, bool) {
	if !s.handshakeDone {
		return "", false
	}
	return "NULL", true
}

func (s *session) ALPNProtocol() ([]byte, bool) {
	if !s.handshakeDone {
		return nil, false
	}
	proto := s.conn.ConnectionState().NextProto
	if proto == "" {
		return nil, false
	}
	return []byte(proto), true
}

// ChannelBinding supports the exporter kind. The finished-message kind is
// undefined for TLS 1.3.
func (s *session) ChannelBinding(kind string) ([]byte, bool) {
	if !s.handshakeDone || kind != "tls-exporter" {
		return nil, false
	}
	material, err := s.conn.ComputeExporter("EXPORTER-Channel-Binding", nil, 32)
	if err != nil {
		return nil, false
	}
	return material, true
}

func (s *session) ReceivedShutdown() bool {
	return s.receivedShutdown
}

func (s *session) HandshakeDone() bool {
	return s.handshakeDone
}

// Close releases the session. When the close notification was never sent the
// record layer still tears down its goroutines, which notifies the peer; the
// transport itself stays open and owned by the caller.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cfg.noteSessionClosed()
	closeErr := s.conn.Close()
	s.raw.Close()
	if closeErr != nil && !stderrors.Is(closeErr, io.EOF) {
		return closeErr
	}
	return nil
}
