package zeroconf

// DefaultBackend is the backend used unless another is selected: on linux
// the system avahi-daemon.
const DefaultBackend = "avahi"
