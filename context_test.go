package sio_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/brickingsoft/sio"
	"github.com/brickingsoft/sio/pkg/engine"
	"github.com/brickingsoft/sio/pkg/sockets"
	"github.com/google/go-cmp/cmp"
)

func TestNewContextRejectsNilEngine(t *testing.T) {
	if _, err := sio.NewContext(nil, sio.ProtocolAuto); !sio.IsConfig(err) {
		t.Errorf("err = %v, want ErrConfig", err)
	}
}

func TestNewContextRejectsUnknownVersion(t *testing.T) {
	eng := newFakeEngine()
	if _, err := sio.NewContext(eng, sio.ProtocolVersion(99)); !sio.IsConfig(err) {
		t.Errorf("err = %v, want ErrConfig", err)
	}
}

func TestSetCipherListFailureWraps(t *testing.T) {
	cc, eng := newFakeContext(t)
	defer cc.Close()
	eng.cfg.cipherErr = os.ErrInvalid
	if err := cc.SetCipherList("NONSENSE"); !sio.IsConfig(err) {
		t.Errorf("err = %v, want ErrConfig", err)
	}
	eng.cfg.cipherErr = nil
	if err := cc.SetCipherList("DEFAULT"); err != nil {
		t.Fatal(err)
	}
	if eng.cfg.cipherList != "DEFAULT" {
		t.Errorf("cipher list = %q", eng.cfg.cipherList)
	}
}

func writeTempFiles(t *testing.T) (certFile, keyFile string) {
	t.Helper()
	dir := t.TempDir()
	certFile = filepath.Join(dir, "chain.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, []byte("chain"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, []byte("key"), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestLoadCertChainMissingFile(t *testing.T) {
	cc, _ := newFakeContext(t)
	defer cc.Close()
	if err := cc.LoadCertChain("", "", nil); !sio.IsConfig(err) {
		t.Errorf("empty cert file: err = %v, want ErrConfig", err)
	}
	if err := cc.LoadCertChain(filepath.Join(t.TempDir(), "absent.pem"), "", nil); !sio.IsConfig(err) {
		t.Errorf("absent cert file: err = %v, want ErrConfig", err)
	}
}

func TestLoadCertChainRestoresPasswordOnFailure(t *testing.T) {
	cc, eng := newFakeContext(t)
	defer cc.Close()
	certFile, keyFile := writeTempFiles(t)

	prompts := 0
	failing := func() ([]byte, error) {
		prompts++
		return []byte("secret"), nil
	}

	eng.cfg.keyErr = os.ErrInvalid
	if err := cc.LoadCertChain(certFile, keyFile, failing); !sio.IsConfig(err) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	if prompts != 1 {
		t.Fatalf("prompts = %d during the failed load", prompts)
	}

	// The failed load must not leave its password installed: the retry
	// without one runs against the prior (absent) configuration.
	eng.cfg.keyErr = nil
	if err := cc.LoadCertChain(certFile, keyFile, nil); err != nil {
		t.Fatal(err)
	}
	if prompts != 1 {
		t.Errorf("prompts = %d, the rejected password leaked into the retry", prompts)
	}
}

func TestLoadCertChainBoundsPasswordLength(t *testing.T) {
	cc, _ := newFakeContext(t)
	defer cc.Close()
	certFile, keyFile := writeTempFiles(t)

	long := make([]byte, 65) // PasswordMaxLen is 64
	err := cc.LoadCertChain(certFile, keyFile, sio.FixedPassword(long))
	if !sio.IsConfig(err) {
		t.Errorf("err = %v, want ErrConfig", err)
	}
}

func TestSetProtocolOptionsClearRequiresSupport(t *testing.T) {
	cc, eng := newFakeContext(t)
	defer cc.Close()

	opts, err := cc.SetProtocolOptions(sio.OptionNoTLS10 | sio.OptionNoTLS11)
	if err != nil {
		t.Fatal(err)
	}
	if opts != sio.OptionNoTLS10|sio.OptionNoTLS11 {
		t.Fatalf("opts = %v", opts)
	}

	eng.clearOpts = false
	if _, clearErr := cc.SetProtocolOptions(sio.OptionNoTLS10); !sio.IsConfig(clearErr) {
		t.Errorf("err = %v, want ErrConfig when clearing unsupported", clearErr)
	}

	// Adding flags is not a clear and stays allowed.
	if _, addErr := cc.SetProtocolOptions(sio.OptionNoTLS10 | sio.OptionNoTLS11 | sio.OptionNoCompression); addErr != nil {
		t.Errorf("additive update failed: %v", addErr)
	}
}

func TestWrapSocketRequiresSocket(t *testing.T) {
	cc, _ := newFakeContext(t)
	defer cc.Close()
	if _, err := cc.WrapSocket(nil, sio.RoleClient, ""); !sio.IsNoSocket(err) {
		t.Errorf("err = %v, want ErrNoSocket", err)
	}
}

func TestWrapSocketServerNameSupport(t *testing.T) {
	cc, eng := newFakeContext(t)
	defer cc.Close()
	eng.serverName = false
	a, b := sockets.Pipe()
	defer a.Close()
	defer b.Close()

	if _, err := cc.WrapSocket(a, sio.RoleClient, "example.com"); !sio.IsConfig(err) {
		t.Errorf("err = %v, want ErrConfig without server name support", err)
	}
	// No name requested works on any engine.
	conn, err := cc.WrapSocket(a, sio.RoleClient, "")
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
}

func TestWrapSocketEncodesServerName(t *testing.T) {
	cc, eng := newFakeContext(t)
	defer cc.Close()
	a, b := sockets.Pipe()
	defer a.Close()
	defer b.Close()

	conn, err := cc.WrapSocket(a, sio.RoleClient, "bücher.example")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if got := eng.cfg.lastBind.ServerName; got != "xn--bcher-kva.example" {
		t.Errorf("bound server name = %q", got)
	}
	if !eng.cfg.lastBind.Client {
		t.Error("client bind not flagged")
	}
}

func TestWrapSocketServerRejectsName(t *testing.T) {
	cc, eng := newFakeContext(t)
	defer cc.Close()
	a, b := sockets.Pipe()
	defer a.Close()
	defer b.Close()

	if _, err := cc.WrapSocket(b, sio.RoleServer, "example.com"); !sio.IsConfig(err) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}

	conn, err := cc.WrapSocket(b, sio.RoleServer, "")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if got := eng.cfg.lastBind.ServerName; got != "" {
		t.Errorf("server bind carries a server name: %q", got)
	}
}

func TestSetALPNProtosPropagates(t *testing.T) {
	cc, eng := newFakeContext(t)
	defer cc.Close()
	a, b := sockets.Pipe()
	defer a.Close()
	defer b.Close()

	cc.SetALPNProtos([]string{"h2", "http/1.1"})
	conn, err := cc.WrapSocket(a, sio.RoleClient, "")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if diff := cmp.Diff([]string{"h2", "http/1.1"}, eng.cfg.lastBind.ALPN); diff != "" {
		t.Errorf("bound ALPN mismatch (-want +got):\n%s", diff)
	}
}

func TestServerNameCallbackReceivesConn(t *testing.T) {
	cc, eng := newFakeContext(t)
	defer cc.Close()
	a, b := sockets.Pipe()
	defer a.Close()
	defer b.Close()

	sess := newFakeSession()
	conn := wrap(t, cc, eng, sess, a)
	defer conn.Close()

	var gotConn *sio.Conn
	var gotName string
	cc.SetServerNameCallback(func(c *sio.Conn, serverName string, from *sio.Context) *sio.Alert {
		gotConn = c
		gotName = serverName
		if from != cc {
			t.Error("callback bound to a different context")
		}
		return nil
	})

	if alert := eng.cfg.sniCB(sess, "example.com"); alert != engine.AlertNone {
		t.Fatalf("alert = %v, want none", alert)
	}
	if gotConn != conn {
		t.Error("callback did not receive the negotiating connection")
	}
	if gotName != "example.com" {
		t.Errorf("server name = %q", gotName)
	}
}

func TestServerNameCallbackVeto(t *testing.T) {
	cc, eng := newFakeContext(t)
	defer cc.Close()

	veto := sio.Alert(engine.AlertUnrecognizedName)
	cc.SetServerNameCallback(func(*sio.Conn, string, *sio.Context) *sio.Alert {
		return &veto
	})
	if alert := eng.cfg.sniCB(newFakeSession(), "unknown.example"); alert != engine.AlertUnrecognizedName {
		t.Errorf("alert = %v, want unrecognized name", alert)
	}
}

func TestServerNameCallbackPanicIsContained(t *testing.T) {
	cc, eng := newFakeContext(t)
	defer cc.Close()
	cc.Logger = &log.Logger{Handler: discard.Default, Level: log.ErrorLevel}

	cc.SetServerNameCallback(func(*sio.Conn, string, *sio.Context) *sio.Alert {
		panic("callback exploded")
	})
	alert := eng.cfg.sniCB(newFakeSession(), "example.com")
	if alert != engine.AlertInternalError {
		t.Errorf("alert = %v, want internal error", alert)
	}
}

func TestServerNameCallbackClear(t *testing.T) {
	cc, eng := newFakeContext(t)
	defer cc.Close()
	cc.SetServerNameCallback(func(*sio.Conn, string, *sio.Context) *sio.Alert { return nil })
	cc.SetServerNameCallback(nil)
	if eng.cfg.sniCB != nil {
		t.Error("callback not cleared")
	}
}

func contextTestCertDER(t *testing.T) []byte {
	t.Helper()
	key, keyErr := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if keyErr != nil {
		t.Fatal(keyErr)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(7),
		Subject:               pkix.Name{CommonName: "trust anchor"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, certErr := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if certErr != nil {
		t.Fatal(certErr)
	}
	return der
}

func TestCACertificates(t *testing.T) {
	cc, eng := newFakeContext(t)
	defer cc.Close()

	caDER := contextTestCertDER(t)
	eng.cfg.trust = [][]byte{caDER, {0x30, 0x01, 0x00}}
	eng.cfg.trustCA = []bool{true, false}

	identities, err := cc.CACertificates()
	if err != nil {
		t.Fatal(err)
	}
	if len(identities) != 1 {
		t.Fatalf("identities = %d, want the CA entry only", len(identities))
	}
	found := false
	for _, rdn := range identities[0].Subject {
		for _, av := range rdn {
			if av.Type == "commonName" && av.Value == "trust anchor" {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("subject = %v", identities[0].Subject)
	}
	if got := cc.CACertificatesDER(); len(got) != 2 {
		t.Errorf("DER listing = %d entries, want the full store", len(got))
	}
}

func TestCACertificatesDecodeFailure(t *testing.T) {
	cc, eng := newFakeContext(t)
	defer cc.Close()
	eng.cfg.trust = [][]byte{{0xde, 0xad}}
	eng.cfg.trustCA = []bool{true}
	if _, err := cc.CACertificates(); !sio.IsDecode(err) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestContextClose(t *testing.T) {
	cc, eng := newFakeContext(t)
	if err := cc.Close(); err != nil {
		t.Fatal(err)
	}
	if !eng.cfg.closed {
		t.Error("configuration handle not released")
	}
}
