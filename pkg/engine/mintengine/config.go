package mintengine

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bifurcation/mint"
	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/sio/pkg/engine"
)

const passwordMaxLen = 1024

var (
	ErrNoCertificate = errors.Define("mintengine: no certificate data found")
	ErrNoPrivateKey  = errors.Define("mintengine: no private key data found")
	ErrKeyMismatch   = errors.Define("mintengine: private key does not match certificate")
	ErrNoCipher      = errors.Define("mintengine: no cipher can be selected")
)

// suite name table, preference strings use the RFC names.
var suiteByName = map[string]mint.CipherSuite{
	"TLS_AES_128_GCM_SHA256":       mint.TLS_AES_128_GCM_SHA256,
	"TLS_AES_256_GCM_SHA384":       mint.TLS_AES_256_GCM_SHA384,
	"TLS_CHACHA20_POLY1305_SHA256": mint.TLS_CHACHA20_POLY1305_SHA256,
}

var suiteInfo = map[mint.CipherSuite]engine.CipherInfo{
	mint.TLS_AES_128_GCM_SHA256:       {Name: "TLS_AES_128_GCM_SHA256", Protocol: "TLSv1.3", Bits: 128},
	mint.TLS_AES_256_GCM_SHA384:       {Name: "TLS_AES_256_GCM_SHA384", Protocol: "TLSv1.3", Bits: 256},
	mint.TLS_CHACHA20_POLY1305_SHA256: {Name: "TLS_CHACHA20_POLY1305_SHA256", Protocol: "TLSv1.3", Bits: 256},
}

var groupByName = map[string]mint.NamedGroup{
	"prime256v1": mint.P256,
	"P-256":      mint.P256,
	"secp384r1":  mint.P384,
	"P-384":      mint.P384,
	"secp521r1":  mint.P521,
	"P-521":      mint.P521,
	"X25519":     mint.X25519,
	"x25519":     mint.X25519,
}

type trustEntry struct {
	der []byte
	ca  bool
}

type config struct {
	mu sync.RWMutex

	verify  engine.VerifyMode
	options engine.Options
	suites  []mint.CipherSuite
	groups  []mint.NamedGroup

	roots *x509.CertPool
	trust []trustEntry

	chain []*x509.Certificate
	cert  *mint.Certificate

	sniCB engine.ServerNameCallback

	stats engine.Stats
}

func newConfig() *config {
	return &config{
		verify: engine.VerifyNone,
	}
}

// SetCipherList parses an OpenSSL-style preference string. Entries are
// separated by colons, spaces or commas; DEFAULT and ALL select the engine's
// built-in preference. Unknown entries are skipped, an empty result fails.
func (c *config) SetCipherList(list string) error {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ':' || r == ' ' || r == ','
	})
	selected := make([]mint.CipherSuite, 0, len(fields))
	for _, field := range fields {
		if field == "DEFAULT" || field == "ALL" {
			c.mu.Lock()
			c.suites = nil
			c.mu.Unlock()
			return nil
		}
		suite, known := suiteByName[field]
		if !known {
			continue
		}
		selected = append(selected, suite)
	}
	if len(selected) == 0 {
		return errors.From(ErrNoCipher, errors.WithMeta("list", list))
	}
	c.mu.Lock()
	c.suites = selected
	c.mu.Unlock()
	return nil
}

// UseCertChain parses every CERTIFICATE block of chainPEM, leaf first.
func (c *config) UseCertChain(chainPEM []byte) error {
	var parsed []*x509.Certificate
	rest := chainPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return errors.New("mintengine: parse certificate failed", errors.WithWrap(certErr))
		}
		parsed = append(parsed, cert)
	}
	if len(parsed) == 0 {
		return errors.From(ErrNoCertificate)
	}
	c.mu.Lock()
	c.chain = parsed
	c.cert = nil
	c.mu.Unlock()
	return nil
}

// UsePrivateKey parses the first private key block of keyPEM, decrypting it
// through password when the block carries encryption headers. The installed
// chain must precede the key.
func (c *config) UsePrivateKey(keyPEM []byte, password engine.PasswordFunc) error {
	c.mu.RLock()
	chain := c.chain
	c.mu.RUnlock()
	if len(chain) == 0 {
		return errors.From(ErrNoCertificate, errors.WithMeta("cause", "certificate chain must be installed first"))
	}
	var block *pem.Block
	rest := keyPEM
	for {
		block, rest = pem.Decode(rest)
		if block == nil || strings.Contains(block.Type, "PRIVATE KEY") {
			break
		}
	}
	if block == nil {
		return errors.From(ErrNoPrivateKey)
	}
	der := block.Bytes
	if x509.IsEncryptedPEMBlock(block) {
		if password == nil {
			return errors.From(ErrNoPrivateKey, errors.WithMeta("cause", "key is encrypted and no password was given"))
		}
		secret, pwErr := password()
		if pwErr != nil {
			return errors.New("mintengine: password callback failed", errors.WithWrap(pwErr))
		}
		decrypted, decErr := x509.DecryptPEMBlock(block, secret)
		if decErr != nil {
			return errors.New("mintengine: decrypt private key failed", errors.WithWrap(decErr))
		}
		der = decrypted
	}
	signer, keyErr := parsePrivateKey(der)
	if keyErr != nil {
		return keyErr
	}
	c.mu.Lock()
	c.cert = &mint.Certificate{
		Chain:      chain,
		PrivateKey: signer,
	}
	c.mu.Unlock()
	return nil
}

func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, errors.From(ErrNoPrivateKey, errors.WithMeta("cause", "key cannot sign"))
		}
		return signer, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.From(ErrNoPrivateKey, errors.WithMeta("cause", "unrecognized key encoding"))
}

// CheckPrivateKey verifies the installed key signs for the installed leaf.
func (c *config) CheckPrivateKey() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.chain) == 0 {
		return errors.From(ErrNoCertificate)
	}
	if c.cert == nil {
		return errors.From(ErrNoPrivateKey)
	}
	leafKey, ok := c.chain[0].PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !leafKey.Equal(c.cert.PrivateKey.Public()) {
		return errors.From(ErrKeyMismatch)
	}
	return nil
}

func (c *config) PasswordMaxLen() int {
	return passwordMaxLen
}

// LoadVerifyLocations extends the trust store from a PEM bundle and/or a
// directory of PEM files.
func (c *config) LoadVerifyLocations(bundlePEM []byte, dir string) error {
	added := 0
	if len(bundlePEM) > 0 {
		n, err := c.addTrustPEM(bundlePEM)
		if err != nil {
			return err
		}
		added += n
	}
	if dir != "" {
		entries, dirErr := os.ReadDir(dir)
		if dirErr != nil {
			return errors.New("mintengine: read CA directory failed", errors.WithWrap(dirErr))
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			data, readErr := os.ReadFile(filepath.Join(dir, entry.Name()))
			if readErr != nil {
				continue
			}
			n, err := c.addTrustPEM(data)
			if err != nil {
				continue
			}
			added += n
		}
	}
	if added == 0 {
		return errors.From(ErrNoCertificate, errors.WithMeta("cause", "no usable CA certificates"))
	}
	return nil
}

func (c *config) addTrustPEM(bundle []byte) (int, error) {
	added := 0
	rest := bundle
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return added, errors.New("mintengine: parse CA certificate failed", errors.WithWrap(certErr))
		}
		c.mu.Lock()
		if c.roots == nil {
			c.roots = x509.NewCertPool()
		}
		c.roots.AddCert(cert)
		c.trust = append(c.trust, trustEntry{der: cert.Raw, ca: cert.IsCA})
		c.mu.Unlock()
		added++
	}
	return added, nil
}

// SetDefaultVerifyPaths merges the system trust store. System roots are not
// enumerable in DER form on every platform, so they feed verification but
// not the CACerts listing.
func (c *config) SetDefaultVerifyPaths() error {
	pool, poolErr := x509.SystemCertPool()
	if poolErr != nil {
		return errors.New("mintengine: load system trust store failed", errors.WithWrap(poolErr))
	}
	c.mu.Lock()
	if c.roots == nil {
		c.roots = pool
	} else {
		// Keep explicit locations; system roots only fill the gap.
		for _, entry := range c.trust {
			if cert, err := x509.ParseCertificate(entry.der); err == nil {
				pool.AddCert(cert)
			}
		}
		c.roots = pool
	}
	c.mu.Unlock()
	return nil
}

// SetVerify installs the peer verification mode. The stack has no notion of
// optional client certificates, it either requires them or does not.
func (c *config) SetVerify(mode engine.VerifyMode) error {
	if mode == engine.VerifyOptional {
		return errors.From(ErrUnsupported, errors.WithMeta("cause", "optional peer verification"))
	}
	c.mu.Lock()
	c.verify = mode
	c.mu.Unlock()
	return nil
}

func (c *config) Verify() engine.VerifyMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verify
}

// SetOptions stores the toggle bitset. Disabling TLS 1.3 is rejected when a
// session is created, not here, matching the deferred validation of the
// version selector.
func (c *config) SetOptions(opts engine.Options) (engine.Options, error) {
	c.mu.Lock()
	c.options = opts
	c.mu.Unlock()
	return opts, nil
}

func (c *config) Options() engine.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.options
}

// SetDHParams is unsupported: TLS 1.3 negotiates groups, custom finite field
// parameters have no slot.
func (c *config) SetDHParams(params []byte) error {
	return errors.From(ErrUnsupported, errors.WithMeta("cause", "custom DH parameters"))
}

func (c *config) SetECDHCurve(name string) error {
	group, known := groupByName[name]
	if !known {
		return errors.From(ErrUnsupported, errors.WithMeta("curve", name))
	}
	c.mu.Lock()
	c.groups = []mint.NamedGroup{group}
	c.mu.Unlock()
	return nil
}

func (c *config) SetServerNameCallback(cb engine.ServerNameCallback) {
	c.mu.Lock()
	c.sniCB = cb
	c.mu.Unlock()
}

func (c *config) serverNameCallback() engine.ServerNameCallback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sniCB
}

func (c *config) Stats() engine.Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *config) CACerts(caOnly bool) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]byte, 0, len(c.trust))
	for _, entry := range c.trust {
		if caOnly && !entry.ca {
			continue
		}
		out = append(out, append([]byte(nil), entry.der...))
	}
	return out
}

func (c *config) Close() error {
	return nil
}

// NewSession binds a mint connection to the transport. The connection always
// runs in mint's non-blocking mode; blocking behavior is supplied by the
// caller's readiness waits.
func (c *config) NewSession(bind engine.Bind) (engine.Session, error) {
	c.mu.RLock()
	if c.options&engine.OptionNoTLS13 != 0 {
		c.mu.RUnlock()
		return nil, errors.From(ErrUnsupported, errors.WithMeta("cause", "TLSv1.3 is disabled by options"))
	}
	if !bind.Client && c.cert == nil {
		c.mu.RUnlock()
		return nil, errors.From(ErrNoCertificate, errors.WithMeta("cause", "server sessions need a certificate"))
	}
	mc := &mint.Config{
		ServerName:         bind.ServerName,
		NextProtos:         append([]string(nil), bind.ALPN...),
		RootCAs:            c.roots,
		InsecureSkipVerify: bind.Client && c.verify == engine.VerifyNone,
		RequireClientAuth:  !bind.Client && c.verify == engine.VerifyRequired,
		CipherSuites:       append([]mint.CipherSuite(nil), c.suites...),
		Groups:             append([]mint.NamedGroup(nil), c.groups...),
		NonBlocking:        true,
	}
	if c.cert != nil {
		mc.Certificates = []*mint.Certificate{c.cert}
	}
	c.mu.RUnlock()

	if bind.Transport == nil {
		return nil, errors.New("mintengine: bind carries no transport")
	}
	sess := newSession(c, bind, mc)
	c.mu.Lock()
	c.stats.Number++
	if bind.Client {
		c.stats.Connect++
	} else {
		c.stats.Accept++
	}
	c.mu.Unlock()
	return sess, nil
}

func (c *config) noteHandshakeDone(client bool) {
	c.mu.Lock()
	if client {
		c.stats.ConnectGood++
	} else {
		c.stats.AcceptGood++
	}
	c.mu.Unlock()
}

func (c *config) noteSessionClosed() {
	c.mu.Lock()
	if c.stats.Number > 0 {
		c.stats.Number--
	}
	c.mu.Unlock()
}
