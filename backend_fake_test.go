//go:build test_unit

package zeroconf

import (
	"sync/atomic"
	"testing"
	"time"
)

type fakeEvent struct {
	reg   ServiceRegistration
	ev    BrowserEvent
	err   error
	fatal error
}

type fakeOperation struct {
	registerParams *registerParams
	browseParams   *browseParams

	regDeliver    func(ServiceRegistration, error)
	browseDeliver func(BrowserEvent, error)

	events   chan fakeEvent
	releases atomic.Int32
}

func (o *fakeOperation) emit(e fakeEvent) {
	o.events <- e
}

func (o *fakeOperation) disconnect() {
	close(o.events)
}

func (o *fakeOperation) poll(timeout time.Duration, alive func() bool) error {
	return pollChannel(o.events, timeout, alive, func(e fakeEvent) error {
		if e.fatal != nil {
			return e.fatal
		}

		if o.regDeliver != nil {
			o.regDeliver(e.reg, e.err)
		} else {
			o.browseDeliver(e.ev, e.err)
		}

		return nil
	})
}

func (o *fakeOperation) release() error {
	o.releases.Add(1)
	return nil
}

// fakeBackend hands out fakeOperation values the tests feed events into.
type fakeBackend struct {
	name string
	err  error
	ops  []*fakeOperation
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{name: "fake-" + t.Name()}
	registerBackend(b.name, b)
	t.Cleanup(func() { delete(backends, b.name) })
	return b
}

func (b *fakeBackend) last() *fakeOperation {
	return b.ops[len(b.ops)-1]
}

func (b *fakeBackend) register(p *registerParams, deliver func(ServiceRegistration, error)) (nativeOperation, error) {
	if b.err != nil {
		return nil, b.err
	}

	op := &fakeOperation{registerParams: p, regDeliver: deliver, events: make(chan fakeEvent, 16)}
	b.ops = append(b.ops, op)
	return op, nil
}

func (b *fakeBackend) browse(p *browseParams, deliver func(BrowserEvent, error)) (nativeOperation, error) {
	if b.err != nil {
		return nil, b.err
	}

	op := &fakeOperation{browseParams: p, browseDeliver: deliver, events: make(chan fakeEvent, 16)}
	b.ops = append(b.ops, op)
	return op, nil
}
