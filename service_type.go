package zeroconf

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/exp/slices"
)

// ServiceType is a DNS-SD service type such as _http._tcp, optionally
// qualified by sub-types. It is immutable once constructed.
type ServiceType struct {
	name     string
	protocol string
	subTypes []string
}

// NewServiceType creates a service type from its name (e.g. http) and
// protocol (e.g. tcp).
func NewServiceType(name, protocol string) (ServiceType, error) {
	return NewServiceTypeWithSubTypes(name, protocol)
}

// NewServiceTypeWithSubTypes creates a service type with the given sub-types,
// rendered in the order supplied.
func NewServiceTypeWithSubTypes(name, protocol string, subTypes ...string) (ServiceType, error) {
	if err := checkServiceTypePart("name", name); err != nil {
		return ServiceType{}, err
	}
	if err := checkServiceTypePart("protocol", protocol); err != nil {
		return ServiceType{}, err
	}
	for _, subType := range subTypes {
		if err := checkServiceTypePart("sub-type", subType); err != nil {
			return ServiceType{}, err
		}
	}

	return ServiceType{name: name, protocol: protocol, subTypes: slices.Clone(subTypes)}, nil
}

// ParseServiceType parses the rendered form produced by ServiceType.String,
// leading underscores are optional: _http._tcp,_printer
func ParseServiceType(s string) (ServiceType, error) {
	parts := strings.Split(strings.TrimSuffix(s, "."), ",")

	head := strings.Split(parts[0], ".")
	if len(head) != 2 {
		return ServiceType{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidServiceType, s)
	}

	subTypes := make([]string, 0, len(parts)-1)
	for _, part := range parts[1:] {
		subTypes = append(subTypes, strings.TrimPrefix(part, "_"))
	}

	return NewServiceTypeWithSubTypes(strings.TrimPrefix(head[0], "_"), strings.TrimPrefix(head[1], "_"), subTypes...)
}

func checkServiceTypePart(what, part string) error {
	if len(part) == 0 {
		return fmt.Errorf("%w: empty %s", ErrInvalidServiceType, what)
	} else if strings.ContainsAny(part, ".,") {
		return fmt.Errorf("%w: invalid character in %s %q", ErrInvalidServiceType, what, part)
	} else if _, ok := dns.IsDomainName("_" + part); !ok {
		return fmt.Errorf("%w: %s %q is not a valid dns label", ErrInvalidServiceType, what, part)
	}

	return nil
}

func (t ServiceType) Name() string {
	return t.name
}

func (t ServiceType) Protocol() string {
	return t.protocol
}

// SubTypes returns a copy of the sub-types.
func (t ServiceType) SubTypes() []string {
	return slices.Clone(t.subTypes)
}

// Kind returns the service type without sub-types: _name._protocol
func (t ServiceType) Kind() string {
	return fmt.Sprintf("_%s._%s", t.name, t.protocol)
}

// String renders the canonical DNS-SD form: _name._protocol[,_subtype...]
func (t ServiceType) String() string {
	if len(t.subTypes) == 0 {
		return t.Kind()
	}

	return t.Kind() + ",_" + strings.Join(t.subTypes, ",_")
}

// IsZero reports whether t was never constructed.
func (t ServiceType) IsZero() bool {
	return len(t.name) == 0
}

func (t ServiceType) Equal(other ServiceType) bool {
	return t.name == other.name && t.protocol == other.protocol && slices.Equal(t.subTypes, other.subTypes)
}
