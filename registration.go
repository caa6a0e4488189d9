package zeroconf

// ServiceRegistration describes a service the daemon has finished
// advertising.
type ServiceRegistration struct {
	Name        string      `json:"name"`
	ServiceType ServiceType `json:"-"`
	Domain      string      `json:"domain"`
	Port        uint16      `json:"port"`
}

// ServiceRegisteredCallback is invoked from EventLoop.Poll once the
// registration succeeds or fails. Exactly one of reg and err is meaningful.
type ServiceRegisteredCallback func(reg ServiceRegistration, err error, ctx *BoxedContext)
