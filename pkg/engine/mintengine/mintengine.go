// Package mintengine backs the session layer with the mint TLS 1.3 stack.
// mint negotiates in discrete non-blocking steps, which maps directly onto
// the session layer's retry discipline: every operation either makes
// progress or reports the transport direction it is waiting on.
package mintengine

import (
	"math"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/sio/pkg/engine"
)

var (
	// ErrUnsupported reports a configuration surface the stack does not have.
	ErrUnsupported = errors.Define("mintengine: not supported by this engine")
)

// Default is the shared engine instance.
var Default engine.Engine = &Engine{}

// Engine is the mint-backed engine. It is stateless; all negotiated state
// lives in configs and sessions.
type Engine struct{}

func (e *Engine) Name() string {
	return "mint"
}

func (e *Engine) MaxWriteSize() int {
	return math.MaxInt32
}

func (e *Engine) SupportsServerName() bool {
	return true
}

func (e *Engine) SupportsClearOptions() bool {
	return true
}

// LockCount is zero: mint synchronizes itself and needs no external lock
// table.
func (e *Engine) LockCount() int {
	return 0
}

func (e *Engine) InstallLocking(lock, unlock func(slot int)) {}

// NewConfig allocates a configuration handle. The stack only speaks
// TLS 1.3, so version must be the automatic selector or TLS 1.3 itself.
func (e *Engine) NewConfig(version engine.ProtocolVersion) (engine.Config, error) {
	switch version {
	case engine.ProtocolAuto, engine.ProtocolTLS13:
	default:
		return nil, errors.From(ErrUnsupported,
			errors.WithMeta("version", version.String()),
			errors.WithMeta("cause", "engine only negotiates TLSv1.3"))
	}
	return newConfig(), nil
}
