package zeroconf

import (
	"fmt"
)

// MdnsBrowser discovers and resolves instances of a service type. The first
// sub-type of the service type, if any, filters the results.
//
// The callback only ever receives resolved services, removal notices or
// errors. Close releases the native handle and stops any further callback.
type MdnsBrowser struct {
	log     Logger
	backend string
	state   adapterState

	serviceType ServiceType
	domain      string
	iface       NetworkInterface

	callback ServiceDiscoveredCallback
	context  *BoxedContext

	handle *nativeHandle
}

func NewMdnsBrowser(serviceType ServiceType) *MdnsBrowser {
	return &MdnsBrowser{
		log:         defaultLogger(),
		backend:     DefaultBackend,
		serviceType: serviceType,
		iface:       InterfaceUnspec,
	}
}

func (b *MdnsBrowser) SetNetworkInterface(iface NetworkInterface) error {
	if err := checkConfigurable(b.state); err != nil {
		return err
	}

	b.iface = iface
	return nil
}

// SetDomain sets the domain to browse, defaults to local.
func (b *MdnsBrowser) SetDomain(domain string) error {
	if err := checkConfigurable(b.state); err != nil {
		return err
	}

	b.domain = domain
	return nil
}

func (b *MdnsBrowser) SetServiceDiscoveredCallback(cb ServiceDiscoveredCallback) error {
	if err := checkConfigurable(b.state); err != nil {
		return err
	}

	b.callback = cb
	return nil
}

// SetContext boxes v and hands it to every callback invocation.
func (b *MdnsBrowser) SetContext(v any) error {
	if err := checkConfigurable(b.state); err != nil {
		return err
	}

	b.context = WrapContext(v)
	return nil
}

func (b *MdnsBrowser) SetLogger(log Logger) error {
	if err := checkConfigurable(b.state); err != nil {
		return err
	}

	b.log = loggerOrNull(log)
	return nil
}

// SetBackend selects the backend by name, see Backends.
func (b *MdnsBrowser) SetBackend(name string) error {
	if err := checkConfigurable(b.state); err != nil {
		return err
	}

	b.backend = name
	return nil
}

func (b *MdnsBrowser) ServiceType() ServiceType           { return b.serviceType }
func (b *MdnsBrowser) Domain() string                     { return b.domain }
func (b *MdnsBrowser) NetworkInterface() NetworkInterface { return b.iface }
func (b *MdnsBrowser) Context() *BoxedContext             { return b.context }
func (b *MdnsBrowser) Backend() string                    { return b.backend }

// BrowseServices starts browsing and returns the EventLoop that must be
// polled to receive events. On error the browser stays configurable.
func (b *MdnsBrowser) BrowseServices() (*EventLoop, error) {
	if err := checkConfigurable(b.state); err != nil {
		return nil, err
	} else if b.serviceType.IsZero() {
		return nil, fmt.Errorf("%w: missing service type", ErrInvalidServiceType)
	}

	be, err := lookupBackend(b.backend)
	if err != nil {
		return nil, err
	}

	log := b.log.WithField("browse", b.serviceType.String())
	params := &browseParams{
		serviceType: b.serviceType,
		domain:      b.domain,
		iface:       b.iface,
		log:         log,
	}

	log.Debugf("browsing services with %s backend", b.backend)

	handle := &nativeHandle{}
	if err := handle.bind(func() (nativeOperation, error) {
		return be.browse(params, b.deliver)
	}); err != nil {
		return nil, err
	}

	b.handle = handle
	b.state = stateActive
	return newEventLoop(handle, log, func(err error) { b.deliver(nil, err) }), nil
}

// deliver is called by the backend from inside EventLoop.Poll.
func (b *MdnsBrowser) deliver(ev BrowserEvent, err error) {
	if b.handle == nil || !b.handle.bound() {
		b.log.Debugf("dropping browse event after close")
		return
	}

	if err != nil {
		b.log.WithError(err).Debugf("browse error")
	} else {
		switch ev := ev.(type) {
		case ServiceDiscovery:
			b.log.Debugf("service resolved: %s at %s:%d", ev.Name, ev.HostName, ev.Port)
		case ServiceRemoval:
			b.log.Debugf("service removed: %s", ev.Name)
		}
	}

	if b.callback == nil {
		b.log.Warnf("browse event received but no callback was set")
		return
	}

	b.callback(ev, err, b.context)
}

// Close stops browsing and releases the native handle. It is safe to call
// more than once.
func (b *MdnsBrowser) Close() error {
	b.state = stateClosed
	if b.handle == nil {
		return nil
	}

	if err := b.handle.release(); err != nil {
		return fmt.Errorf("failed releasing browser: %w", err)
	}

	return nil
}
