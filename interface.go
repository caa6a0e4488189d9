package zeroconf

import (
	"fmt"
	"net"
)

// NetworkInterface selects the network interface an operation is bound to.
type NetworkInterface int32

// InterfaceUnspec binds to all available interfaces, most applications want this.
const InterfaceUnspec NetworkInterface = -1

// InterfaceAtIndex selects the interface with the given OS index.
func InterfaceAtIndex(idx uint32) NetworkInterface {
	return NetworkInterface(idx)
}

func (i NetworkInterface) IsUnspec() bool {
	return i < 0
}

// Index returns the OS interface index, ok is false for InterfaceUnspec.
func (i NetworkInterface) Index() (idx uint32, ok bool) {
	if i.IsUnspec() {
		return 0, false
	}

	return uint32(i), true
}

// netInterfaces resolves the interface list expected by the builtin responder,
// nil means all interfaces.
func (i NetworkInterface) netInterfaces() ([]net.Interface, error) {
	idx, ok := i.Index()
	if !ok {
		return nil, nil
	}

	iface, err := net.InterfaceByIndex(int(idx))
	if err != nil {
		return nil, fmt.Errorf("failed resolving network interface %d: %w", idx, err)
	}

	return []net.Interface{*iface}, nil
}

func (i NetworkInterface) String() string {
	if i.IsUnspec() {
		return "unspec"
	}

	return fmt.Sprintf("if#%d", int32(i))
}
