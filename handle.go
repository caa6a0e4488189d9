package zeroconf

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// nativeOperation is one in-flight daemon operation (a registration or a
// browse) together with the daemon connection that carries it.
type nativeOperation interface {
	// poll waits at most timeout for the operation to become ready and then
	// dispatches every pending event, invoking callbacks synchronously.
	// Errors matching ErrPoll are fatal to the operation.
	poll(timeout time.Duration, alive func() bool) error

	// release frees every native resource held by the operation. It is
	// called exactly once.
	release() error
}

type handleState int32

const (
	handleUnbound handleState = iota
	handleBound
	handleReleased
)

func (s handleState) String() string {
	switch s {
	case handleUnbound:
		return "unbound"
	case handleBound:
		return "bound"
	case handleReleased:
		return "released"
	default:
		return fmt.Sprintf("handleState(%d)", int32(s))
	}
}

// nativeHandle exclusively owns a nativeOperation: unbound -> bound -> released.
type nativeHandle struct {
	state atomic.Int32
	op    nativeOperation

	faultLock sync.Mutex
	fault     error
}

func (h *nativeHandle) current() handleState {
	return handleState(h.state.Load())
}

// bind acquires the operation. On failure the handle stays unbound and the
// error is returned untouched.
func (h *nativeHandle) bind(acquire func() (nativeOperation, error)) error {
	if s := h.current(); s != handleUnbound {
		return fmt.Errorf("%w: handle is %s", ErrInvalidState, s)
	}

	op, err := acquire()
	if err != nil {
		return err
	}

	h.op = op
	if !h.state.CompareAndSwap(int32(handleUnbound), int32(handleBound)) {
		_ = op.release()
		return fmt.Errorf("%w: handle released while binding", ErrInvalidState)
	}

	return nil
}

func (h *nativeHandle) bound() bool {
	return h.current() == handleBound
}

// operation returns the bound operation, or an error if the handle is not
// usable anymore.
func (h *nativeHandle) operation() (nativeOperation, error) {
	switch s := h.current(); s {
	case handleBound:
		h.faultLock.Lock()
		fault := h.fault
		h.faultLock.Unlock()

		if fault != nil {
			return nil, fault
		}

		return h.op, nil
	default:
		return nil, fmt.Errorf("%w: handle is %s", ErrInvalidState, s)
	}
}

// fail records a fatal error, every later use of the operation returns it.
// It reports whether err is the first recorded fault.
func (h *nativeHandle) fail(err error) bool {
	h.faultLock.Lock()
	defer h.faultLock.Unlock()

	if h.fault != nil {
		return false
	}

	h.fault = err
	return true
}

// release frees the operation the first time it is called on a bound
// handle, any later call is a no-op. An unbound handle becomes released.
func (h *nativeHandle) release() error {
	if h.state.CompareAndSwap(int32(handleUnbound), int32(handleReleased)) {
		return nil
	} else if !h.state.CompareAndSwap(int32(handleBound), int32(handleReleased)) {
		return nil
	}

	return h.op.release()
}
