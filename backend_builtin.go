package zeroconf

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

func init() {
	registerBackend("builtin", builtinBackend{})
}

// builtinBackend runs a pure-Go mDNS responder in process, for systems
// without a shared daemon. The responder performs its own resolution, it
// has no collision detection and never reports removed services.
type builtinBackend struct{}

func builtinHostName() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed getting host name: %w", err)
	}

	hostname, _, _ = strings.Cut(hostname, ".")
	return hostname, nil
}

type builtinRegistration struct {
	server  *zeroconf.Server
	events  chan ServiceRegistration
	deliver func(ServiceRegistration, error)
}

func (builtinBackend) register(p *registerParams, deliver func(ServiceRegistration, error)) (_ nativeOperation, err error) {
	ifaces, err := p.iface.netInterfaces()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	name := p.name
	if len(name) == 0 {
		if name, err = builtinHostName(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
		}
	}

	domain := normalizeDomain(p.domain)

	var server *zeroconf.Server
	if len(p.host) > 0 {
		ips, err := net.LookupHost(p.host)
		if err != nil {
			return nil, fmt.Errorf("%w: failed resolving host %s: %w", ErrRegistrationFailed, p.host, err)
		}

		server, err = zeroconf.RegisterProxy(name, p.serviceType.String(), domain+".", int(p.port), p.host, ips, p.txt.encodeStrings(), ifaces)
		if err != nil {
			return nil, fmt.Errorf("%w: failed starting mdns responder: %w", ErrConnectionFailed, err)
		}
	} else {
		server, err = zeroconf.Register(name, p.serviceType.String(), domain+".", int(p.port), p.txt.encodeStrings(), ifaces)
		if err != nil {
			return nil, fmt.Errorf("%w: failed starting mdns responder: %w", ErrConnectionFailed, err)
		}
	}

	p.log.Debugf("builtin responder announcing %s", name)

	// the responder announces right away, confirm on the first poll
	r := &builtinRegistration{server: server, deliver: deliver}
	r.events = make(chan ServiceRegistration, 1)
	r.events <- ServiceRegistration{Name: name, ServiceType: p.serviceType, Domain: domain, Port: p.port}
	return r, nil
}

func (r *builtinRegistration) poll(timeout time.Duration, alive func() bool) error {
	return pollChannel(r.events, timeout, alive, func(reg ServiceRegistration) error {
		r.deliver(reg, nil)
		return nil
	})
}

func (r *builtinRegistration) release() error {
	r.server.Shutdown()
	return nil
}

type builtinBrowse struct {
	log         Logger
	serviceType ServiceType
	iface       NetworkInterface

	cancel  context.CancelFunc
	entries chan *zeroconf.ServiceEntry
	deliver func(BrowserEvent, error)
}

func (builtinBackend) browse(p *browseParams, deliver func(BrowserEvent, error)) (nativeOperation, error) {
	ifaces, err := p.iface.netInterfaces()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	var opts []zeroconf.ClientOption
	if len(ifaces) > 0 {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	resolver, err := zeroconf.NewResolver(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed creating mdns resolver: %w", ErrConnectionFailed, err)
	}

	if len(p.serviceType.subTypes) > 1 {
		p.log.Warnf("browsing by multiple sub-types is not supported, using first sub-type only")
	}

	browseType := p.serviceType.Kind()
	if len(p.serviceType.subTypes) > 0 {
		browseType += ",_" + p.serviceType.subTypes[0]
	}

	b := &builtinBrowse{log: p.log, serviceType: p.serviceType, iface: p.iface, deliver: deliver}
	b.entries = make(chan *zeroconf.ServiceEntry, 32)

	var ctx context.Context
	ctx, b.cancel = context.WithCancel(context.Background())
	if err := resolver.Browse(ctx, browseType, normalizeDomain(p.domain)+".", b.entries); err != nil {
		b.cancel()
		return nil, fmt.Errorf("%w: %w", ErrBrowseFailed, err)
	}

	return b, nil
}

func (b *builtinBrowse) poll(timeout time.Duration, alive func() bool) error {
	return pollChannel(b.entries, timeout, alive, func(entry *zeroconf.ServiceEntry) error {
		disc, err := b.discoveryFromEntry(entry)
		if err != nil {
			b.deliver(nil, err)
		} else {
			b.deliver(disc, nil)
		}

		return nil
	})
}

func (b *builtinBrowse) discoveryFromEntry(entry *zeroconf.ServiceEntry) (ServiceDiscovery, error) {
	if len(entry.HostName) == 0 || entry.Port <= 0 {
		return ServiceDiscovery{}, fmt.Errorf("%w: service %s of type %s in domain %s has no host or port", ErrResolutionFailed, entry.Instance, entry.Service, entry.Domain)
	}

	st, err := ParseServiceType(entry.Service)
	if err != nil {
		b.log.WithError(err).Tracef("keeping browsed service type for %s", entry.Instance)
		st = b.serviceType
	}

	var address string
	if len(entry.AddrIPv4) > 0 {
		address = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		address = entry.AddrIPv6[0].String()
	}

	return ServiceDiscovery{
		Name:        entry.Instance,
		ServiceType: st,
		Domain:      normalizeDomain(entry.Domain),
		HostName:    strings.TrimSuffix(entry.HostName, "."),
		Address:     address,
		Port:        uint16(entry.Port),
		Txt:         parseTxtStrings(entry.Text),
		Interface:   b.iface,
	}, nil
}

func (b *builtinBrowse) release() error {
	b.cancel()
	return nil
}
