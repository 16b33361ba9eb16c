package engine_test

import (
	"testing"

	"github.com/brickingsoft/sio/pkg/engine"
)

func TestProtocolVersionValid(t *testing.T) {
	for v := engine.ProtocolAuto; v <= engine.ProtocolTLS13; v++ {
		if !v.Valid() {
			t.Errorf("%v reported invalid", v)
		}
	}
	if engine.ProtocolVersion(-1).Valid() {
		t.Error("negative version reported valid")
	}
	if engine.ProtocolVersion(99).Valid() {
		t.Error("out-of-range version reported valid")
	}
}

func TestProtocolVersionString(t *testing.T) {
	cases := map[engine.ProtocolVersion]string{
		engine.ProtocolAuto:       "auto",
		engine.ProtocolTLS10:      "TLSv1",
		engine.ProtocolTLS11:      "TLSv1.1",
		engine.ProtocolTLS12:      "TLSv1.2",
		engine.ProtocolTLS13:      "TLSv1.3",
		engine.ProtocolVersion(9): "unknown",
	}
	for v, want := range cases {
		if got := v.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(v), got, want)
		}
	}
}

func TestVerifyModeValid(t *testing.T) {
	for _, m := range []engine.VerifyMode{engine.VerifyNone, engine.VerifyOptional, engine.VerifyRequired} {
		if !m.Valid() {
			t.Errorf("%d reported invalid", m)
		}
	}
	if engine.VerifyMode(3).Valid() {
		t.Error("out-of-range mode reported valid")
	}
}

func TestCodeString(t *testing.T) {
	cases := map[engine.Code]string{
		engine.Ok:             "ok",
		engine.ZeroReturn:     "zero return",
		engine.WantRead:       "want read",
		engine.WantWrite:      "want write",
		engine.WantX509Lookup: "want x509 lookup",
		engine.WantConnect:    "want connect",
		engine.Syscall:        "syscall",
		engine.Protocol:       "protocol",
		engine.Code(42):       "invalid",
	}
	for c, want := range cases {
		if got := c.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", int(c), got, want)
		}
	}
}

func TestLibraryMnemonic(t *testing.T) {
	if m, ok := engine.LibraryMnemonic(engine.LibSSL); !ok || m != "SSL" {
		t.Errorf("LibSSL = %q, %v", m, ok)
	}
	if m, ok := engine.LibraryMnemonic(engine.LibPEM); !ok || m != "PEM" {
		t.Errorf("LibPEM = %q, %v", m, ok)
	}
	if _, ok := engine.LibraryMnemonic(12345); ok {
		t.Error("unknown library resolved")
	}
}

func TestReasonMnemonic(t *testing.T) {
	cases := []struct {
		lib    int
		reason int
		want   string
	}{
		{engine.LibSSL, int(engine.AlertHandshakeFailure), "HANDSHAKE_FAILURE"},
		{engine.LibSSL, int(engine.AlertBadCertificate), "BAD_CERTIFICATE"},
		{engine.LibSSL, int(engine.AlertCloseNotify), "CLOSE_NOTIFY"},
		{engine.LibPEM, engine.ReasonPEMNoStartLine, "NO_START_LINE"},
		{engine.LibX509, engine.ReasonX509KeyMismatch, "KEY_VALUES_MISMATCH"},
	}
	for _, tc := range cases {
		if got, ok := engine.ReasonMnemonic(tc.lib, tc.reason); !ok || got != tc.want {
			t.Errorf("ReasonMnemonic(%d, %d) = %q, %v, want %q", tc.lib, tc.reason, got, ok, tc.want)
		}
	}
	if _, ok := engine.ReasonMnemonic(engine.LibSSL, 9999); ok {
		t.Error("unknown reason resolved")
	}
	// An SSL reason number is meaningless under another library.
	if _, ok := engine.ReasonMnemonic(engine.LibEVP, int(engine.AlertHandshakeFailure)); ok {
		t.Error("reason resolved under the wrong library")
	}
}
