package sio

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/brickingsoft/rxp"
)

var (
	executors     rxp.Executors = nil
	executorsOnce sync.Once
)

// Startup builds the shared executors used by asynchronous handshakes.
// A default set is created on demand; call Startup at program start when
// custom options are needed, later calls have no effect.
func Startup(options ...rxp.Option) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case error:
				err = e
				break
			case string:
				err = errors.New(e)
				break
			default:
				err = errors.New(fmt.Sprintf("%+v", r))
				break
			}
		}
	}()
	executors = rxp.New(options...)
	return
}

// Shutdown closes the executors without waiting for in-flight tasks.
//
// Use ShutdownGracefully to wait for them instead.
func Shutdown() error {
	runtime.SetFinalizer(executors, nil)
	return Executors().Close()
}

// ShutdownGracefully closes the executors after in-flight tasks finish.
//
// Configure a deadline via Startup options when a timeout is required.
func ShutdownGracefully() error {
	runtime.SetFinalizer(executors, nil)
	return Executors().CloseGracefully()
}

// Executors returns the shared executors, creating a default set on first
// use.
func Executors() rxp.Executors {
	executorsOnce.Do(func() {
		if executors == nil {
			executors = rxp.New()
			runtime.SetFinalizer(executors, rxp.Executors.CloseGracefully)
		}
	})
	return executors
}
