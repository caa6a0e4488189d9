package zeroconf

import (
	"fmt"
)

type adapterState int

const (
	stateConfigured adapterState = iota
	stateActive
	stateClosed
)

func (s adapterState) String() string {
	switch s {
	case stateConfigured:
		return "configured"
	case stateActive:
		return "active"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("adapterState(%d)", int(s))
	}
}

func checkConfigurable(state adapterState) error {
	if state != stateConfigured {
		return fmt.Errorf("%w: adapter is %s", ErrInvalidState, state)
	}

	return nil
}

// MdnsService advertises a single service instance.
//
// Setters are only valid before Register. The registered callback and the
// context stay with the service until Close, which releases the native
// handle and stops any further callback.
type MdnsService struct {
	log     Logger
	backend string
	state   adapterState

	serviceType ServiceType
	port        uint16
	name        string
	domain      string
	host        string
	iface       NetworkInterface
	txt         *TxtRecord

	callback ServiceRegisteredCallback
	context  *BoxedContext

	handle    *nativeHandle
	confirmed bool
}

// NewMdnsService creates a service of the given type listening on port.
func NewMdnsService(serviceType ServiceType, port uint16) *MdnsService {
	return &MdnsService{
		log:         defaultLogger(),
		backend:     DefaultBackend,
		serviceType: serviceType,
		port:        port,
		iface:       InterfaceUnspec,
	}
}

// SetName sets the instance name, defaults to the host name.
func (s *MdnsService) SetName(name string) error {
	if err := checkConfigurable(s.state); err != nil {
		return err
	}

	s.name = name
	return nil
}

func (s *MdnsService) SetNetworkInterface(iface NetworkInterface) error {
	if err := checkConfigurable(s.state); err != nil {
		return err
	}

	s.iface = iface
	return nil
}

// SetDomain sets the domain to advertise in, defaults to local.
func (s *MdnsService) SetDomain(domain string) error {
	if err := checkConfigurable(s.state); err != nil {
		return err
	}

	s.domain = domain
	return nil
}

// SetHost sets the SRV target host, defaults to this machine.
func (s *MdnsService) SetHost(host string) error {
	if err := checkConfigurable(s.state); err != nil {
		return err
	}

	s.host = host
	return nil
}

// SetTxtRecord stores a copy of txt.
func (s *MdnsService) SetTxtRecord(txt *TxtRecord) error {
	if err := checkConfigurable(s.state); err != nil {
		return err
	}

	s.txt = txt.Clone()
	return nil
}

func (s *MdnsService) SetRegisteredCallback(cb ServiceRegisteredCallback) error {
	if err := checkConfigurable(s.state); err != nil {
		return err
	}

	s.callback = cb
	return nil
}

// SetContext boxes v and hands it to every callback invocation.
func (s *MdnsService) SetContext(v any) error {
	if err := checkConfigurable(s.state); err != nil {
		return err
	}

	s.context = WrapContext(v)
	return nil
}

func (s *MdnsService) SetLogger(log Logger) error {
	if err := checkConfigurable(s.state); err != nil {
		return err
	}

	s.log = loggerOrNull(log)
	return nil
}

// SetBackend selects the backend by name, see Backends.
func (s *MdnsService) SetBackend(name string) error {
	if err := checkConfigurable(s.state); err != nil {
		return err
	}

	s.backend = name
	return nil
}

func (s *MdnsService) ServiceType() ServiceType           { return s.serviceType }
func (s *MdnsService) Port() uint16                       { return s.port }
func (s *MdnsService) Name() string                       { return s.name }
func (s *MdnsService) Domain() string                     { return s.domain }
func (s *MdnsService) Host() string                       { return s.host }
func (s *MdnsService) NetworkInterface() NetworkInterface { return s.iface }
func (s *MdnsService) TxtRecord() *TxtRecord              { return s.txt.Clone() }
func (s *MdnsService) Context() *BoxedContext             { return s.context }
func (s *MdnsService) Backend() string                    { return s.backend }

// Register submits the service to the daemon and returns the EventLoop that
// must be polled to receive the outcome. On error the service stays
// configurable.
func (s *MdnsService) Register() (*EventLoop, error) {
	if err := checkConfigurable(s.state); err != nil {
		return nil, err
	} else if s.serviceType.IsZero() {
		return nil, fmt.Errorf("%w: missing service type", ErrInvalidServiceType)
	}

	b, err := lookupBackend(s.backend)
	if err != nil {
		return nil, err
	}

	log := s.log.WithField("service", s.serviceType.String())
	params := &registerParams{
		name:        s.name,
		serviceType: s.serviceType,
		domain:      s.domain,
		host:        s.host,
		port:        s.port,
		txt:         s.txt.Clone(),
		iface:       s.iface,
		log:         log,
	}

	log.Debugf("registering service on port %d with %s backend", s.port, s.backend)

	handle := &nativeHandle{}
	if err := handle.bind(func() (nativeOperation, error) {
		return b.register(params, s.deliver)
	}); err != nil {
		return nil, err
	}

	s.handle = handle
	s.state = stateActive
	return newEventLoop(handle, log, func(err error) { s.deliver(ServiceRegistration{}, err) }), nil
}

// deliver is called by the backend from inside EventLoop.Poll.
func (s *MdnsService) deliver(reg ServiceRegistration, err error) {
	if s.handle == nil || !s.handle.bound() {
		s.log.Debugf("dropping registration event after close")
		return
	}

	if err == nil {
		if s.confirmed {
			s.log.Debugf("dropping duplicate registration confirmation for %s", reg.Name)
			return
		}

		s.confirmed = true
		if reg.ServiceType.IsZero() {
			reg.ServiceType = s.serviceType
		}
		if reg.Port == 0 {
			reg.Port = s.port
		}

		s.log.Infof("registered service %s.%s.%s on port %d", reg.Name, reg.ServiceType.Kind(), reg.Domain, reg.Port)
	} else {
		s.log.WithError(err).Warnf("service registration failed")
	}

	if s.callback == nil {
		s.log.Warnf("registration event received but no callback was set")
		return
	}

	s.callback(reg, err, s.context)
}

// Close stops advertising the service and releases the native handle. It is
// safe to call more than once.
func (s *MdnsService) Close() error {
	s.state = stateClosed
	if s.handle == nil {
		return nil
	}

	if err := s.handle.release(); err != nil {
		return fmt.Errorf("failed releasing service: %w", err)
	}

	return nil
}
