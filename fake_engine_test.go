package sio_test

import (
	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/sio/pkg/engine"
)

// step is one scripted engine result.
type step struct {
	ret  int
	code engine.Code
	data []byte
}

// fakeEngine scripts engine behavior so the session layer's state machine
// can be exercised without any cryptography.
type fakeEngine struct {
	serverName bool
	clearOpts  bool
	maxWrite   int
	locks      int

	lockInstalled bool
	cfg           *fakeConfig
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		serverName: true,
		clearOpts:  true,
		maxWrite:   1 << 20,
	}
}

func (e *fakeEngine) Name() string               { return "fake" }
func (e *fakeEngine) MaxWriteSize() int          { return e.maxWrite }
func (e *fakeEngine) SupportsServerName() bool   { return e.serverName }
func (e *fakeEngine) SupportsClearOptions() bool { return e.clearOpts }
func (e *fakeEngine) LockCount() int             { return e.locks }

func (e *fakeEngine) InstallLocking(lock, unlock func(slot int)) {
	e.lockInstalled = true
}

func (e *fakeEngine) NewConfig(version engine.ProtocolVersion) (engine.Config, error) {
	cfg := &fakeConfig{eng: e, verify: engine.VerifyNone}
	e.cfg = cfg
	return cfg, nil
}

type fakeConfig struct {
	eng  *fakeEngine
	next *fakeSession

	cipherList string
	cipherErr  error
	verify     engine.VerifyMode
	options    engine.Options
	sniCB      engine.ServerNameCallback
	stats      engine.Stats
	trust      [][]byte
	trustCA    []bool

	chainPEM []byte
	keyErr   error
	checkErr error

	lastBind engine.Bind
	closed   bool
}

func (c *fakeConfig) NewSession(bind engine.Bind) (engine.Session, error) {
	c.lastBind = bind
	if c.next == nil {
		c.next = newFakeSession()
	}
	sess := c.next
	sess.cfg = c
	c.next = nil
	return sess, nil
}

func (c *fakeConfig) SetCipherList(list string) error {
	if c.cipherErr != nil {
		return c.cipherErr
	}
	c.cipherList = list
	return nil
}

func (c *fakeConfig) UseCertChain(chainPEM []byte) error {
	c.chainPEM = chainPEM
	return nil
}

func (c *fakeConfig) UsePrivateKey(keyPEM []byte, password engine.PasswordFunc) error {
	if password != nil {
		if _, err := password(); err != nil {
			return err
		}
	}
	return c.keyErr
}

func (c *fakeConfig) CheckPrivateKey() error { return c.checkErr }
func (c *fakeConfig) PasswordMaxLen() int    { return 64 }

func (c *fakeConfig) LoadVerifyLocations(bundlePEM []byte, dir string) error {
	if len(bundlePEM) == 0 && dir == "" {
		return errors.New("fake: nothing to load")
	}
	return nil
}

func (c *fakeConfig) SetDefaultVerifyPaths() error { return nil }

func (c *fakeConfig) SetVerify(mode engine.VerifyMode) error {
	c.verify = mode
	return nil
}

func (c *fakeConfig) Verify() engine.VerifyMode { return c.verify }

func (c *fakeConfig) SetOptions(opts engine.Options) (engine.Options, error) {
	c.options = opts
	return opts, nil
}

func (c *fakeConfig) Options() engine.Options { return c.options }

func (c *fakeConfig) SetDHParams(pem []byte) error   { return nil }
func (c *fakeConfig) SetECDHCurve(name string) error { return nil }

func (c *fakeConfig) SetServerNameCallback(cb engine.ServerNameCallback) {
	c.sniCB = cb
}

func (c *fakeConfig) Stats() engine.Stats { return c.stats }

func (c *fakeConfig) CACerts(caOnly bool) [][]byte {
	var out [][]byte
	for i, der := range c.trust {
		if caOnly && !c.trustCA[i] {
			continue
		}
		out = append(out, der)
	}
	return out
}

func (c *fakeConfig) Close() error {
	c.closed = true
	return nil
}

// fakeSession pops one scripted step per operation; an exhausted script
// reports success.
type fakeSession struct {
	cfg *fakeConfig

	hsSteps       []step
	readSteps     []step
	writeSteps    []step
	shutdownSteps []step

	code     engine.Code
	queued   []engine.QueuedError
	sysErr   error
	pending  int
	received bool
	done     bool
	peerDER  []byte

	readAhead   []bool
	nonblocking []bool
	closed      bool
	drains      int
}

func newFakeSession() *fakeSession {
	return &fakeSession{code: engine.Ok}
}

func pop(steps *[]step) (step, bool) {
	if len(*steps) == 0 {
		return step{}, false
	}
	s := (*steps)[0]
	*steps = (*steps)[1:]
	return s, true
}

func (s *fakeSession) HandshakeStep() int {
	st, ok := pop(&s.hsSteps)
	if !ok {
		s.done = true
		s.code = engine.Ok
		return 1
	}
	s.code = st.code
	if st.ret == 1 {
		s.done = true
	}
	return st.ret
}

func (s *fakeSession) Read(p []byte) int {
	st, ok := pop(&s.readSteps)
	if !ok {
		s.code = engine.Ok
		return copy(p, "default")
	}
	s.code = st.code
	if st.ret > 0 {
		return copy(p, st.data)
	}
	return st.ret
}

func (s *fakeSession) Write(p []byte) int {
	st, ok := pop(&s.writeSteps)
	if !ok {
		s.code = engine.Ok
		return len(p)
	}
	s.code = st.code
	if st.ret > 0 {
		return len(p)
	}
	return st.ret
}

func (s *fakeSession) ShutdownStep() int {
	st, ok := pop(&s.shutdownSteps)
	if !ok {
		s.code = engine.Ok
		return 1
	}
	s.code = st.code
	return st.ret
}

func (s *fakeSession) Classify(ret int) engine.Code { return s.code }

func (s *fakeSession) PopError() (engine.QueuedError, bool) {
	if len(s.queued) == 0 {
		return engine.QueuedError{}, false
	}
	q := s.queued[0]
	s.queued = s.queued[1:]
	return q, true
}

func (s *fakeSession) DrainErrors() {
	s.drains++
	s.queued = nil
}

func (s *fakeSession) LastSysError() error { return s.sysErr }

func (s *fakeSession) Pending() int { return s.pending }

func (s *fakeSession) SetNonblocking(nonblocking bool) {
	s.nonblocking = append(s.nonblocking, nonblocking)
}

func (s *fakeSession) SetReadAhead(enabled bool) {
	s.readAhead = append(s.readAhead, enabled)
}

func (s *fakeSession) PeerCertificate() []byte { return s.peerDER }

func (s *fakeSession) CipherInfo() (engine.CipherInfo, bool) {
	if !s.done {
		return engine.CipherInfo{}, false
	}
	return engine.CipherInfo{Name: "FAKE_SUITE", Protocol: "TLSv1.3", Bits: 128}, true
}

func (s *fakeSession) CompressionName() (string, bool) {
	return "NULL", s.done
}

func (s *fakeSession) ALPNProtocol() ([]byte, bool) {
	return nil, false
}

func (s *fakeSession) ChannelBinding(kind string) ([]byte, bool) {
	return nil, false
}

func (s *fakeSession) ReceivedShutdown() bool { return s.received }
func (s *fakeSession) HandshakeDone() bool    { return s.done }

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}
