package zeroconf

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultRunTimeout is the per poll timeout used by EventLoop.Run when none is given.
const DefaultRunTimeout = 100 * time.Millisecond

// EventLoop drives a single registration or browse. It must be polled
// repeatedly to keep the operation going, callbacks run synchronously
// inside Poll on the calling goroutine.
//
// An EventLoop must not be polled from more than one goroutine at a time.
type EventLoop struct {
	handle  *nativeHandle
	log     Logger
	onFault func(error)
}

// newEventLoop creates the loop for handle. onFault hands a fatal poll
// error to the owning adapter's callback, it is called at most once.
func newEventLoop(handle *nativeHandle, log Logger, onFault func(error)) *EventLoop {
	return &EventLoop{handle: handle, log: log, onFault: onFault}
}

// Poll waits at most timeout for native events and dispatches every event
// that is ready. A zero timeout checks once without blocking.
//
// Polling after the owning adapter was closed fails with ErrInvalidState.
// An error matching ErrPoll is fatal: the adapter must be recreated. It is
// also delivered once to the adapter's callback.
func (l *EventLoop) Poll(timeout time.Duration) error {
	if l == nil || l.handle == nil {
		return fmt.Errorf("%w: event loop not started", ErrInvalidState)
	}

	op, err := l.handle.operation()
	if err != nil {
		return err
	}

	if err := op.poll(timeout, l.handle.bound); err != nil {
		if errors.Is(err, ErrPoll) && l.handle.fail(err) {
			l.log.WithError(err).Errorf("event loop failed, adapter must be recreated")
			if l.onFault != nil {
				l.onFault(err)
			}
		}

		return err
	}

	return nil
}

// Run polls until ctx is done, the adapter is closed or polling fails. It
// returns nil when the adapter was closed.
func (l *EventLoop) Run(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := l.Poll(timeout); err != nil {
			if l.handle != nil && l.handle.current() == handleReleased {
				return nil
			}

			return err
		}
	}
}

// pollChannel waits at most timeout for ch to become ready, then dispatches
// the events that were ready at that point in arrival order. Dispatching
// stops as soon as alive reports false. A closed channel is fatal.
func pollChannel[T any](ch <-chan T, timeout time.Duration, alive func() bool, dispatch func(T) error) error {
	var ev T
	var ok bool
	if timeout <= 0 {
		select {
		case ev, ok = <-ch:
		default:
			return nil
		}
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case ev, ok = <-ch:
		case <-timer.C:
			return nil
		}
	}

	pending := len(ch)
	for {
		if !ok {
			return fmt.Errorf("%w: native event source closed", ErrPoll)
		} else if !alive() {
			return nil
		}

		if err := dispatch(ev); err != nil {
			return err
		}

		if pending == 0 {
			return nil
		}
		pending--

		select {
		case ev, ok = <-ch:
		default:
			return nil
		}
	}
}
