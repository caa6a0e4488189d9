package zeroconf

// BrowserEvent is either a ServiceDiscovery or a ServiceRemoval.
type BrowserEvent interface {
	browserEvent()
}

// ServiceDiscovery is a service found and resolved by an MdnsBrowser.
type ServiceDiscovery struct {
	Name        string           `json:"name"`
	ServiceType ServiceType      `json:"-"`
	Domain      string           `json:"domain"`
	HostName    string           `json:"host_name"`
	Address     string           `json:"address"`
	Port        uint16           `json:"port"`
	Txt         *TxtRecord       `json:"-"`
	Interface   NetworkInterface `json:"interface"`
}

func (ServiceDiscovery) browserEvent() {}

// ServiceRemoval is a service that went away: the "abc" of
// "abc._http._tcp.local" is the name, "local" the domain.
type ServiceRemoval struct {
	Name        string           `json:"name"`
	ServiceType ServiceType      `json:"-"`
	Domain      string           `json:"domain"`
	Interface   NetworkInterface `json:"interface"`
}

func (ServiceRemoval) browserEvent() {}

// ServiceDiscoveredCallback is invoked from EventLoop.Poll for every
// resolved or removed service, err is set when browsing or resolving failed.
type ServiceDiscoveredCallback func(ev BrowserEvent, err error, ctx *BoxedContext)
