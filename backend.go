package zeroconf

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/exp/slices"
)

type registerParams struct {
	name        string
	serviceType ServiceType
	domain      string
	host        string
	port        uint16
	txt         *TxtRecord
	iface       NetworkInterface
	log         Logger
}

type browseParams struct {
	serviceType ServiceType
	domain      string
	iface       NetworkInterface
	log         Logger
}

// backend starts native operations against one kind of mDNS daemon. Every
// operation owns its own daemon connection. deliver is the trampoline back
// into the adapter and is only called from nativeOperation.poll.
type backend interface {
	register(p *registerParams, deliver func(ServiceRegistration, error)) (nativeOperation, error)
	browse(p *browseParams, deliver func(BrowserEvent, error)) (nativeOperation, error)
}

var backends = map[string]backend{}

func registerBackend(name string, b backend) {
	backends[name] = b
}

func lookupBackend(name string) (backend, error) {
	if b, ok := backends[name]; ok {
		return b, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
}

// Backends returns the names of the available backends.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// normalizeDomain returns d without the trailing dot, defaulting to local.
func normalizeDomain(d string) string {
	labels := dns.SplitDomainName(d)
	if len(labels) == 0 {
		return "local"
	}

	return strings.Join(labels, ".")
}
