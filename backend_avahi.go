package zeroconf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	avahiService              = "org.freedesktop.Avahi"
	avahiServerPath           = "/"
	avahiServerIface          = "org.freedesktop.Avahi.Server"
	avahiEntryGroupIface      = "org.freedesktop.Avahi.EntryGroup"
	avahiServiceBrowserIface  = "org.freedesktop.Avahi.ServiceBrowser"
	avahiServiceResolverIface = "org.freedesktop.Avahi.ServiceResolver"

	dbusService = "org.freedesktop.DBus"

	// Avahi constants
	avahiProtoUnspec = int32(-1) // AVAHI_PROTO_UNSPEC - use both IPv4 and IPv6
)

// AvahiEntryGroupState
const (
	avahiEntryGroupUncommited int32 = iota
	avahiEntryGroupRegistering
	avahiEntryGroupEstablished
	avahiEntryGroupCollision
	avahiEntryGroupFailure
)

func init() {
	registerBackend("avahi", avahiBackend{})
}

// avahiBackend talks to avahi-daemon over the system D-Bus, sharing the
// mDNS responder with the rest of the system.
//
// Compatibility: Requires avahi-daemon 0.6.x or later (uses stable D-Bus API).
type avahiBackend struct{}

// avahiClient is a private system bus connection to avahi-daemon. Its signal
// channel is the readiness source of the operation built on top of it.
type avahiClient struct {
	log     Logger
	conn    *dbus.Conn
	object  func(dest string, path dbus.ObjectPath) dbus.BusObject
	server  dbus.BusObject
	signals chan *dbus.Signal
	version string
}

// newAvahiClient connects to avahi-daemon and subscribes to the signals of
// the given interfaces. Subscribing happens before any object is created
// since avahi may emit signals for it right away.
func newAvahiClient(log Logger, ifaces ...string) (*avahiClient, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("%w: failed connecting to system bus: %w", ErrConnectionFailed, err)
	}

	c := &avahiClient{log: log, conn: conn, object: conn.Object}
	c.server = c.object(avahiService, avahiServerPath)

	// Verify avahi-daemon is available by calling GetHostName (available in all versions)
	var hostname string
	if err := c.server.Call(avahiServerIface+".GetHostName", 0).Store(&hostname); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed contacting avahi-daemon (is it running?): %w", ErrConnectionFailed, err)
	}

	c.version = getAvahiVersion(c.server)
	log.Debugf("connected to avahi-daemon %s on %s", c.version, hostname)

	matches := [][]dbus.MatchOption{{
		dbus.WithMatchSender(dbusService),
		dbus.WithMatchInterface(dbusService),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, avahiService),
	}}
	for _, iface := range ifaces {
		matches = append(matches, []dbus.MatchOption{
			dbus.WithMatchSender(avahiService),
			dbus.WithMatchInterface(iface),
		})
	}

	c.signals = make(chan *dbus.Signal, 64)
	conn.Signal(c.signals)

	for _, match := range matches {
		if err := conn.AddMatchSignal(match...); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: failed adding signal match: %w", ErrConnectionFailed, err)
		}
	}

	return c, nil
}

// getAvahiVersion attempts to retrieve the avahi-daemon version.
// Returns "unknown" if version cannot be determined.
func getAvahiVersion(server dbus.BusObject) string {
	// GetVersionString is available in avahi 0.8+
	var versionStr string
	if err := server.Call(avahiServerIface+".GetVersionString", 0).Store(&versionStr); err == nil {
		return versionStr
	}

	var apiVersion uint32
	if err := server.Call(avahiServerIface+".GetAPIVersion", 0).Store(&apiVersion); err == nil {
		return fmt.Sprintf("API v%d", apiVersion)
	}

	return "unknown"
}

func (c *avahiClient) hostName() (string, error) {
	var hostname string
	if err := c.server.Call(avahiServerIface+".GetHostName", 0).Store(&hostname); err != nil {
		return "", fmt.Errorf("failed getting host name: %w", err)
	}

	return hostname, nil
}

// handleBusSignal reports whether sig is a bus signal rather than an avahi
// one. The daemon leaving the bus is fatal.
func (c *avahiClient) handleBusSignal(sig *dbus.Signal) (bool, error) {
	if sig.Name != dbusService+".NameOwnerChanged" {
		return false, nil
	}

	var name, oldOwner, newOwner string
	if err := dbus.Store(sig.Body, &name, &oldOwner, &newOwner); err != nil || name != avahiService {
		return true, nil
	}

	if len(newOwner) == 0 {
		return true, fmt.Errorf("%w: avahi-daemon left the bus", ErrPoll)
	}

	c.log.Debugf("avahi-daemon owner changed from %s to %s", oldOwner, newOwner)
	return true, nil
}

func (c *avahiClient) free(obj dbus.BusObject, iface string) {
	if obj == nil {
		return
	}

	if err := obj.Call(iface+".Free", 0).Err; err != nil {
		c.log.WithError(err).Debugf("failed freeing %s", obj.Path())
	}
}

func (c *avahiClient) close() error {
	c.conn.RemoveSignal(c.signals)
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed closing system bus connection: %w", err)
	}

	return nil
}

// avahiError tags err with the error matching the D-Bus error name, or base.
func avahiError(base error, err error) error {
	var name string
	var dbusErr dbus.Error
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		name = dbusErrPtr.Name
	} else if errors.As(err, &dbusErr) {
		name = dbusErr.Name
	}

	switch name {
	case avahiService + ".InvalidServiceTypeError", avahiService + ".InvalidServiceSubtypeError":
		base = ErrInvalidServiceType
	case avahiService + ".CollisionError":
		base = ErrNameCollision
	case avahiService + ".DisconnectedError", avahiService + ".NoDaemonError":
		base = ErrConnectionFailed
	}

	return fmt.Errorf("%w: %w", base, err)
}

// formatAvahiSubType formats sub-type for kind: _printer._sub._http._tcp
func formatAvahiSubType(subType, kind string) string {
	return "_" + strings.TrimPrefix(subType, "_") + "._sub." + kind
}

func formatAvahiBrowseType(st ServiceType, log Logger) string {
	if len(st.subTypes) == 0 {
		return st.Kind()
	} else if len(st.subTypes) > 1 {
		log.Warnf("browsing by multiple sub-types is not supported on avahi, using first sub-type only")
	}

	return formatAvahiSubType(st.subTypes[0], st.Kind())
}

// parseAvahiServiceType parses the type reported by the daemon, falling
// back to fallback for anything unexpected.
func parseAvahiServiceType(kind string, fallback ServiceType) ServiceType {
	st, err := ParseServiceType(kind)
	if err != nil {
		return fallback
	}

	return st
}

type avahiRegistration struct {
	*avahiClient

	group   dbus.BusObject
	reg     ServiceRegistration
	deliver func(ServiceRegistration, error)
}

func (avahiBackend) register(p *registerParams, deliver func(ServiceRegistration, error)) (nativeOperation, error) {
	c, err := newAvahiClient(p.log, avahiEntryGroupIface)
	if err != nil {
		return nil, err
	}

	r := &avahiRegistration{avahiClient: c, deliver: deliver}
	if err := r.submit(p); err != nil {
		_ = r.release()
		return nil, err
	}

	return r, nil
}

func (r *avahiRegistration) submit(p *registerParams) error {
	name := p.name
	if len(name) == 0 {
		var err error
		if name, err = r.hostName(); err != nil {
			return avahiError(ErrRegistrationFailed, err)
		}
	}

	// Create a new entry group for our service
	var groupPath dbus.ObjectPath
	if err := r.server.Call(avahiServerIface+".EntryGroupNew", 0).Store(&groupPath); err != nil {
		return avahiError(ErrRegistrationFailed, fmt.Errorf("failed creating entry group: %w", err))
	}

	r.group = r.object(avahiService, groupPath)

	kind := p.serviceType.Kind()

	// AddService signature: iiussssqaay
	// interface (i): network interface index, -1 for all
	// protocol (i): IP protocol, -1 for both IPv4/IPv6
	// flags (u): publish flags, 0 for default
	// name (s): service instance name
	// type (s): service type (e.g., "_http._tcp")
	// domain (s): domain to publish in, empty for default
	// host (s): hostname, empty for default
	// port (q): port number (uint16)
	// txt (aay): TXT record data as array of byte arrays
	if err := r.group.Call(avahiEntryGroupIface+".AddService", 0,
		int32(p.iface),
		avahiProtoUnspec,
		uint32(0),
		name,
		kind,
		p.domain,
		p.host,
		p.port,
		p.txt.encodeBytes(),
	).Err; err != nil {
		return avahiError(ErrRegistrationFailed, fmt.Errorf("failed adding service: %w", err))
	}

	for _, subType := range p.serviceType.subTypes {
		p.log.Debugf("adding service subtype %s", subType)

		// AddServiceSubtype signature: iiussss
		if err := r.group.Call(avahiEntryGroupIface+".AddServiceSubtype", 0,
			int32(p.iface),
			avahiProtoUnspec,
			uint32(0),
			name,
			kind,
			p.domain,
			formatAvahiSubType(subType, kind),
		).Err; err != nil {
			return avahiError(ErrRegistrationFailed, fmt.Errorf("failed adding service subtype %s: %w", subType, err))
		}
	}

	// Commit the entry group to publish the service
	if err := r.group.Call(avahiEntryGroupIface+".Commit", 0).Err; err != nil {
		return avahiError(ErrRegistrationFailed, fmt.Errorf("failed committing entry group: %w", err))
	}

	r.reg = ServiceRegistration{Name: name, ServiceType: p.serviceType, Domain: normalizeDomain(p.domain), Port: p.port}
	return nil
}

func (r *avahiRegistration) poll(timeout time.Duration, alive func() bool) error {
	return pollChannel(r.signals, timeout, alive, r.dispatch)
}

func (r *avahiRegistration) dispatch(sig *dbus.Signal) error {
	if handled, err := r.handleBusSignal(sig); handled {
		return err
	}

	if sig.Path != r.group.Path() || sig.Name != avahiEntryGroupIface+".StateChanged" {
		r.log.Tracef("ignoring signal %s from %s", sig.Name, sig.Path)
		return nil
	}

	var state int32
	var errStr string
	if err := dbus.Store(sig.Body, &state, &errStr); err != nil {
		r.log.WithError(err).Warnf("invalid entry group state signal")
		return nil
	}

	switch state {
	case avahiEntryGroupEstablished:
		r.deliver(r.reg, nil)
	case avahiEntryGroupCollision:
		r.deliver(ServiceRegistration{}, fmt.Errorf("%w: %s is already advertised", ErrNameCollision, r.reg.Name))
	case avahiEntryGroupFailure:
		r.deliver(ServiceRegistration{}, fmt.Errorf("%w: %s", ErrRegistrationFailed, errStr))
	case avahiEntryGroupUncommited, avahiEntryGroupRegistering:
		r.log.Debugf("entry group state is %d", state)
	}

	return nil
}

func (r *avahiRegistration) release() error {
	// freeing the entry group also unpublishes the service
	r.free(r.group, avahiEntryGroupIface)
	r.group = nil

	return r.close()
}

type avahiResolver struct {
	obj  dbus.BusObject
	name string
}

type avahiBrowse struct {
	*avahiClient

	serviceType ServiceType
	browser     dbus.BusObject
	resolvers   map[dbus.ObjectPath]*avahiResolver
	deliver     func(BrowserEvent, error)
}

func (avahiBackend) browse(p *browseParams, deliver func(BrowserEvent, error)) (nativeOperation, error) {
	c, err := newAvahiClient(p.log, avahiServiceBrowserIface, avahiServiceResolverIface)
	if err != nil {
		return nil, err
	}

	b := &avahiBrowse{avahiClient: c, serviceType: p.serviceType, deliver: deliver}
	b.resolvers = make(map[dbus.ObjectPath]*avahiResolver)

	// ServiceBrowserNew signature: iissu
	var browserPath dbus.ObjectPath
	if err := b.server.Call(avahiServerIface+".ServiceBrowserNew", 0,
		int32(p.iface),
		avahiProtoUnspec,
		formatAvahiBrowseType(p.serviceType, p.log),
		p.domain,
		uint32(0),
	).Store(&browserPath); err != nil {
		_ = b.close()
		return nil, avahiError(ErrBrowseFailed, fmt.Errorf("failed creating service browser: %w", err))
	}

	b.browser = b.object(avahiService, browserPath)
	return b, nil
}

func (b *avahiBrowse) poll(timeout time.Duration, alive func() bool) error {
	return pollChannel(b.signals, timeout, alive, b.dispatch)
}

func (b *avahiBrowse) dispatch(sig *dbus.Signal) error {
	if handled, err := b.handleBusSignal(sig); handled {
		return err
	}

	if sig.Path == b.browser.Path() {
		b.dispatchBrowser(sig)
	} else if res, ok := b.resolvers[sig.Path]; ok {
		b.dispatchResolver(sig.Path, res, sig)
	} else {
		b.log.Tracef("ignoring signal %s from %s", sig.Name, sig.Path)
	}

	return nil
}

func (b *avahiBrowse) dispatchBrowser(sig *dbus.Signal) {
	switch sig.Name {
	case avahiServiceBrowserIface + ".ItemNew", avahiServiceBrowserIface + ".ItemRemove":
		// ItemNew/ItemRemove signature: iisssu
		var ifIdx, proto int32
		var name, kind, domain string
		var flags uint32
		if err := dbus.Store(sig.Body, &ifIdx, &proto, &name, &kind, &domain, &flags); err != nil {
			b.log.WithError(err).Warnf("invalid %s signal", sig.Name)
			return
		}

		if sig.Name == avahiServiceBrowserIface+".ItemNew" {
			b.resolve(ifIdx, proto, name, kind, domain)
			return
		}

		b.deliver(ServiceRemoval{
			Name:        name,
			ServiceType: parseAvahiServiceType(kind, b.serviceType),
			Domain:      normalizeDomain(domain),
			Interface:   NetworkInterface(ifIdx),
		}, nil)
	case avahiServiceBrowserIface + ".Failure":
		var msg string
		_ = dbus.Store(sig.Body, &msg)
		b.deliver(nil, fmt.Errorf("%w: %s", ErrBrowseFailed, msg))
	case avahiServiceBrowserIface + ".AllForNow", avahiServiceBrowserIface + ".CacheExhausted":
		b.log.Tracef("service browser: %s", sig.Name)
	}
}

// resolve chains a resolver to a newly found service so that only resolved
// services reach the callback.
func (b *avahiBrowse) resolve(ifIdx, proto int32, name, kind, domain string) {
	b.log.Debugf("resolving service %s", name)

	// ServiceResolverNew signature: iisssiu
	var resolverPath dbus.ObjectPath
	if err := b.server.Call(avahiServerIface+".ServiceResolverNew", 0,
		ifIdx,
		proto,
		name,
		kind,
		domain,
		avahiProtoUnspec,
		uint32(0),
	).Store(&resolverPath); err != nil {
		b.deliver(nil, avahiError(ErrResolutionFailed, fmt.Errorf("failed resolving service %s: %w", name, err)))
		return
	}

	b.resolvers[resolverPath] = &avahiResolver{obj: b.object(avahiService, resolverPath), name: name}
}

func (b *avahiBrowse) dispatchResolver(path dbus.ObjectPath, res *avahiResolver, sig *dbus.Signal) {
	switch sig.Name {
	case avahiServiceResolverIface + ".Found":
		disc, err := avahiDiscoveryFromFound(sig.Body, b.serviceType)
		if err != nil {
			b.deliver(nil, fmt.Errorf("%w: invalid resolver result for %s: %w", ErrResolutionFailed, res.name, err))
		} else {
			b.deliver(disc, nil)
		}
	case avahiServiceResolverIface + ".Failure":
		var msg string
		_ = dbus.Store(sig.Body, &msg)
		b.deliver(nil, fmt.Errorf("%w: service %s: %s", ErrResolutionFailed, res.name, msg))
	default:
		return
	}

	b.free(res.obj, avahiServiceResolverIface)
	delete(b.resolvers, path)
}

// avahiDiscoveryFromFound decodes the body of a ServiceResolver.Found signal.
func avahiDiscoveryFromFound(body []interface{}, fallback ServiceType) (ServiceDiscovery, error) {
	// Found signature: iissssisqaayu
	var ifIdx, proto, aproto int32
	var name, kind, domain, host, address string
	var port uint16
	var txt [][]byte
	var flags uint32
	if err := dbus.Store(body, &ifIdx, &proto, &name, &kind, &domain, &host, &aproto, &address, &port, &txt, &flags); err != nil {
		return ServiceDiscovery{}, err
	}

	return ServiceDiscovery{
		Name:        name,
		ServiceType: parseAvahiServiceType(kind, fallback),
		Domain:      normalizeDomain(domain),
		HostName:    host,
		Address:     address,
		Port:        port,
		Txt:         parseTxtEntries(txt),
		Interface:   NetworkInterface(ifIdx),
	}, nil
}

func (b *avahiBrowse) release() error {
	for path, res := range b.resolvers {
		b.free(res.obj, avahiServiceResolverIface)
		delete(b.resolvers, path)
	}

	b.free(b.browser, avahiServiceBrowserIface)
	b.browser = nil

	return b.close()
}
