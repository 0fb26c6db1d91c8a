package dispatcher

import (
	"errors"
	"fmt"
)

// ErrBackpressure is returned by Submit when the target partition queue is
// full.
var ErrBackpressure = errors.New("dispatcher queue is full")

// HandlerError ties a handler failure to the handler that produced it.
type HandlerError struct {
	Module  string
	Handler string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s (module %s): %v", e.Handler, e.Module, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// PanicError is a recovered handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}
