// Package sio is a TLS/SSL session layer over raw byte-stream sockets. A
// Context owns engine-level configuration shared by many connections; a Conn
// binds one engine session to one socket and drives handshake, encrypted
// read/write and shutdown under blocking, non-blocking and deadline-bound
// I/O. Peer identity is decoded on demand through pkg/certs and every engine
// failure is classified onto the package's error taxonomy.
//
// The cryptographic engine itself is a collaborator behind pkg/engine;
// pkg/engine/mintengine provides the default implementation.
package sio

import (
	"github.com/brickingsoft/sio/pkg/engine"
)

type (
	// ProtocolVersion selects the protocol family a Context negotiates.
	ProtocolVersion = engine.ProtocolVersion
	// VerifyMode controls peer certificate verification.
	VerifyMode = engine.VerifyMode
	// Options is the protocol toggle bitset.
	Options = engine.Options
	// Alert mirrors the protocol alert numbering.
	Alert = engine.Alert
	// Stats is the session cache counter snapshot.
	Stats = engine.Stats
	// CipherInfo describes a negotiated cipher.
	CipherInfo = engine.CipherInfo
)

const (
	ProtocolAuto  = engine.ProtocolAuto
	ProtocolTLS10 = engine.ProtocolTLS10
	ProtocolTLS11 = engine.ProtocolTLS11
	ProtocolTLS12 = engine.ProtocolTLS12
	ProtocolTLS13 = engine.ProtocolTLS13

	VerifyNone     = engine.VerifyNone
	VerifyOptional = engine.VerifyOptional
	VerifyRequired = engine.VerifyRequired

	OptionNoTLS10                = engine.OptionNoTLS10
	OptionNoTLS11                = engine.OptionNoTLS11
	OptionNoTLS12                = engine.OptionNoTLS12
	OptionNoTLS13                = engine.OptionNoTLS13
	OptionNoCompression          = engine.OptionNoCompression
	OptionNoRenegotiation        = engine.OptionNoRenegotiation
	OptionNoTickets              = engine.OptionNoTickets
	OptionCipherServerPreference = engine.OptionCipherServerPreference
	OptionSingleECDHUse          = engine.OptionSingleECDHUse
)

// Role selects the session direction of a wrapped socket.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}
