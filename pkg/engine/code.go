package engine

// Code is the engine's own error enumeration for a just-completed operation.
// The session layer checks codes in this order when classifying a failure.
type Code int

const (
	// Ok means the operation completed.
	Ok Code = iota
	// ZeroReturn means the peer signalled a clean closure.
	ZeroReturn
	// WantRead means more transport input is needed before progress.
	WantRead
	// WantWrite means transport output is pending before progress.
	WantWrite
	// WantX509Lookup means a credential lookup callback must run first.
	WantX509Lookup
	// WantConnect means the transport connect phase is incomplete.
	WantConnect
	// Syscall means the transport itself failed; the pending error queue
	// and the last transport error disambiguate further.
	Syscall
	// Protocol means a protocol-level failure (bad record, handshake
	// rejection, verification failure).
	Protocol
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "ok"
	case ZeroReturn:
		return "zero return"
	case WantRead:
		return "want read"
	case WantWrite:
		return "want write"
	case WantX509Lookup:
		return "want x509 lookup"
	case WantConnect:
		return "want connect"
	case Syscall:
		return "syscall"
	case Protocol:
		return "protocol"
	}
	return "invalid"
}
