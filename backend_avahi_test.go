//go:build test_unit

package zeroconf

import (
	"errors"
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBusObject stands in for a remote avahi object. Calls are recorded and
// answered from replies, an empty reply otherwise.
type fakeBusObject struct {
	dbus.BusObject
	path    dbus.ObjectPath
	calls   []string
	args    [][]interface{}
	replies map[string]*dbus.Call
}

func (o *fakeBusObject) Path() dbus.ObjectPath { return o.path }
func (o *fakeBusObject) Destination() string   { return avahiService }

func (o *fakeBusObject) Call(method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	o.calls = append(o.calls, method)
	o.args = append(o.args, args)
	if reply, ok := o.replies[method]; ok {
		return reply
	}
	return &dbus.Call{}
}

func newTestAvahiClient() *avahiClient {
	return &avahiClient{log: &NullLogger{}}
}

func TestFormatAvahiSubType(t *testing.T) {
	assert.Equal(t, "_printer._sub._http._tcp", formatAvahiSubType("printer", "_http._tcp"))
	assert.Equal(t, "_printer._sub._http._tcp", formatAvahiSubType("_printer", "_http._tcp"))
}

func TestFormatAvahiBrowseType(t *testing.T) {
	assert.Equal(t, "_http._tcp", formatAvahiBrowseType(mustServiceType(t, "http", "tcp"), &NullLogger{}))
	assert.Equal(t, "_printer._sub._http._tcp", formatAvahiBrowseType(mustServiceType(t, "http", "tcp", "printer"), &NullLogger{}))
	assert.Equal(t, "_a._sub._http._tcp", formatAvahiBrowseType(mustServiceType(t, "http", "tcp", "a", "b"), &NullLogger{}))
}

func TestParseAvahiServiceType(t *testing.T) {
	fallback := mustServiceType(t, "http", "tcp", "printer")

	assert.Equal(t, "_ipp._tcp", parseAvahiServiceType("_ipp._tcp", fallback).String())
	assert.True(t, parseAvahiServiceType("garbage", fallback).Equal(fallback))
}

func TestAvahiError(t *testing.T) {
	for _, tc := range []struct {
		name string
		want error
	}{
		{avahiService + ".InvalidServiceTypeError", ErrInvalidServiceType},
		{avahiService + ".InvalidServiceSubtypeError", ErrInvalidServiceType},
		{avahiService + ".CollisionError", ErrNameCollision},
		{avahiService + ".DisconnectedError", ErrConnectionFailed},
		{avahiService + ".NoDaemonError", ErrConnectionFailed},
		{avahiService + ".InvalidPortError", ErrRegistrationFailed},
	} {
		err := avahiError(ErrRegistrationFailed, dbus.Error{Name: tc.name})
		assert.ErrorIs(t, err, tc.want, tc.name)

		wrapped := avahiError(ErrRegistrationFailed, fmt.Errorf("failed adding service: %w", &dbus.Error{Name: tc.name}))
		assert.ErrorIs(t, wrapped, tc.want, tc.name)
	}

	plain := avahiError(ErrResolutionFailed, errors.New("timeout"))
	assert.ErrorIs(t, plain, ErrResolutionFailed)
	assert.NotErrorIs(t, plain, ErrConnectionFailed)
}

func TestAvahiNameOwnerChanged(t *testing.T) {
	c := newTestAvahiClient()

	handled, err := c.handleBusSignal(&dbus.Signal{Name: avahiEntryGroupIface + ".StateChanged"})
	assert.False(t, handled)
	assert.NoError(t, err)

	handled, err = c.handleBusSignal(&dbus.Signal{
		Name: dbusService + ".NameOwnerChanged",
		Body: []interface{}{"org.example.Other", ":1.2", ""},
	})
	assert.True(t, handled)
	assert.NoError(t, err)

	handled, err = c.handleBusSignal(&dbus.Signal{
		Name: dbusService + ".NameOwnerChanged",
		Body: []interface{}{avahiService, ":1.2", ":1.3"},
	})
	assert.True(t, handled)
	assert.NoError(t, err)

	handled, err = c.handleBusSignal(&dbus.Signal{
		Name: dbusService + ".NameOwnerChanged",
		Body: []interface{}{avahiService, ":1.2", ""},
	})
	assert.True(t, handled)
	assert.ErrorIs(t, err, ErrPoll)
}

func TestAvahiRegistrationDispatch(t *testing.T) {
	type result struct {
		reg ServiceRegistration
		err error
	}

	var results []result
	group := &fakeBusObject{path: "/Client1/EntryGroup1"}
	r := &avahiRegistration{
		avahiClient: newTestAvahiClient(),
		group:       group,
		reg:         ServiceRegistration{Name: "foo", Domain: "local", Port: 8080},
		deliver: func(reg ServiceRegistration, err error) {
			results = append(results, result{reg, err})
		},
	}

	stateChanged := func(path dbus.ObjectPath, state int32, msg string) *dbus.Signal {
		return &dbus.Signal{Path: path, Name: avahiEntryGroupIface + ".StateChanged", Body: []interface{}{state, msg}}
	}

	require.NoError(t, r.dispatch(stateChanged(group.path, avahiEntryGroupRegistering, "")))
	require.NoError(t, r.dispatch(stateChanged("/Client1/EntryGroup2", avahiEntryGroupEstablished, "")))
	assert.Empty(t, results)

	require.NoError(t, r.dispatch(stateChanged(group.path, avahiEntryGroupEstablished, "")))
	require.NoError(t, r.dispatch(stateChanged(group.path, avahiEntryGroupCollision, "")))
	require.NoError(t, r.dispatch(stateChanged(group.path, avahiEntryGroupFailure, "Local name collision")))

	require.Len(t, results, 3)
	assert.NoError(t, results[0].err)
	assert.Equal(t, "foo", results[0].reg.Name)
	assert.ErrorIs(t, results[1].err, ErrNameCollision)
	assert.ErrorIs(t, results[2].err, ErrRegistrationFailed)
	assert.NotErrorIs(t, results[2].err, ErrNameCollision)

	// malformed body is ignored
	require.NoError(t, r.dispatch(&dbus.Signal{Path: group.path, Name: avahiEntryGroupIface + ".StateChanged", Body: []interface{}{"x"}}))
	assert.Len(t, results, 3)

	err := r.dispatch(&dbus.Signal{Name: dbusService + ".NameOwnerChanged", Body: []interface{}{avahiService, ":1.2", ""}})
	assert.ErrorIs(t, err, ErrPoll)
}

func foundBody(name string) []interface{} {
	return []interface{}{
		int32(2), int32(0), name, "_http._tcp", "local", "host.local",
		int32(0), "192.168.1.10", uint16(8080),
		[][]byte{[]byte("path=/"), []byte("path=/other"), []byte("flag")},
		uint32(0),
	}
}

func TestAvahiDiscoveryFromFound(t *testing.T) {
	disc, err := avahiDiscoveryFromFound(foundBody("foo"), mustServiceType(t, "http", "tcp", "printer"))
	require.NoError(t, err)

	assert.Equal(t, "foo", disc.Name)
	assert.Equal(t, "_http._tcp", disc.ServiceType.String())
	assert.Equal(t, "local", disc.Domain)
	assert.Equal(t, "host.local", disc.HostName)
	assert.Equal(t, "192.168.1.10", disc.Address)
	assert.Equal(t, uint16(8080), disc.Port)
	assert.Equal(t, InterfaceAtIndex(2), disc.Interface)

	path, _ := disc.Txt.GetString("path")
	assert.Equal(t, "/", path)
	flag, ok := disc.Txt.Get("flag")
	assert.True(t, ok)
	assert.Empty(t, flag)

	_, err = avahiDiscoveryFromFound([]interface{}{"short"}, ServiceType{})
	assert.Error(t, err)
}

func TestAvahiBrowseDispatch(t *testing.T) {
	var events []BrowserEvent
	var errs []error

	st := mustServiceType(t, "http", "tcp")
	browser := &fakeBusObject{path: "/Client1/ServiceBrowser1"}
	resolver := &fakeBusObject{path: "/Client1/ServiceResolver1"}
	failing := &fakeBusObject{path: "/Client1/ServiceResolver2"}

	b := &avahiBrowse{
		avahiClient: newTestAvahiClient(),
		serviceType: st,
		browser:     browser,
		resolvers: map[dbus.ObjectPath]*avahiResolver{
			resolver.path: {obj: resolver, name: "foo"},
			failing.path:  {obj: failing, name: "bar"},
		},
		deliver: func(ev BrowserEvent, err error) {
			if err != nil {
				errs = append(errs, err)
			} else {
				events = append(events, ev)
			}
		},
	}

	require.NoError(t, b.dispatch(&dbus.Signal{Path: resolver.path, Name: avahiServiceResolverIface + ".Found", Body: foundBody("foo")}))
	require.NoError(t, b.dispatch(&dbus.Signal{Path: failing.path, Name: avahiServiceResolverIface + ".Failure", Body: []interface{}{"Timeout reached"}}))
	require.NoError(t, b.dispatch(&dbus.Signal{
		Path: browser.path,
		Name: avahiServiceBrowserIface + ".ItemRemove",
		Body: []interface{}{int32(2), int32(0), "foo", "_http._tcp", "local", uint32(0)},
	}))
	require.NoError(t, b.dispatch(&dbus.Signal{Path: browser.path, Name: avahiServiceBrowserIface + ".AllForNow"}))
	require.NoError(t, b.dispatch(&dbus.Signal{Path: browser.path, Name: avahiServiceBrowserIface + ".Failure", Body: []interface{}{"Bad state"}}))
	require.NoError(t, b.dispatch(&dbus.Signal{Path: "/Client1/Unknown", Name: avahiServiceResolverIface + ".Found"}))

	require.Len(t, events, 2)
	disc, ok := events[0].(ServiceDiscovery)
	require.True(t, ok)
	assert.Equal(t, "foo", disc.Name)

	removal, ok := events[1].(ServiceRemoval)
	require.True(t, ok)
	assert.Equal(t, ServiceRemoval{Name: "foo", ServiceType: removal.ServiceType, Domain: "local", Interface: InterfaceAtIndex(2)}, removal)
	assert.Equal(t, "_http._tcp", removal.ServiceType.String())

	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], ErrResolutionFailed)
	assert.ErrorIs(t, errs[1], ErrBrowseFailed)

	// resolvers are freed once they reported
	assert.Empty(t, b.resolvers)
	assert.Equal(t, []string{avahiServiceResolverIface + ".Free"}, resolver.calls)
	assert.Equal(t, []string{avahiServiceResolverIface + ".Free"}, failing.calls)
}

func TestAvahiBrowseResolvesNewItems(t *testing.T) {
	var events []BrowserEvent
	var errs []error

	browser := &fakeBusObject{path: "/Client1/ServiceBrowser1"}
	server := &fakeBusObject{path: avahiServerPath, replies: map[string]*dbus.Call{
		avahiServerIface + ".ServiceResolverNew": {Body: []interface{}{dbus.ObjectPath("/Client1/ServiceResolver1")}},
	}}

	objects := map[dbus.ObjectPath]*fakeBusObject{}
	client := newTestAvahiClient()
	client.server = server
	client.object = func(_ string, path dbus.ObjectPath) dbus.BusObject {
		obj := &fakeBusObject{path: path}
		objects[path] = obj
		return obj
	}

	b := &avahiBrowse{
		avahiClient: client,
		serviceType: mustServiceType(t, "http", "tcp"),
		browser:     browser,
		resolvers:   map[dbus.ObjectPath]*avahiResolver{},
		deliver: func(ev BrowserEvent, err error) {
			if err != nil {
				errs = append(errs, err)
			} else {
				events = append(events, ev)
			}
		},
	}

	require.NoError(t, b.dispatch(&dbus.Signal{
		Path: browser.path,
		Name: avahiServiceBrowserIface + ".ItemNew",
		Body: []interface{}{int32(2), int32(0), "foo", "_http._tcp", "local", uint32(0)},
	}))

	// nothing reaches the callback before the service is resolved
	assert.Empty(t, events)
	assert.Equal(t, []string{avahiServerIface + ".ServiceResolverNew"}, server.calls)
	assert.Equal(t, []interface{}{int32(2), int32(0), "foo", "_http._tcp", "local", avahiProtoUnspec, uint32(0)}, server.args[0])

	res, ok := b.resolvers["/Client1/ServiceResolver1"]
	require.True(t, ok)
	assert.Equal(t, "foo", res.name)

	require.NoError(t, b.dispatch(&dbus.Signal{Path: "/Client1/ServiceResolver1", Name: avahiServiceResolverIface + ".Found", Body: foundBody("foo")}))

	require.Len(t, events, 1)
	disc, ok := events[0].(ServiceDiscovery)
	require.True(t, ok)
	assert.Equal(t, "foo", disc.Name)
	assert.Equal(t, "host.local", disc.HostName)
	assert.Equal(t, uint16(8080), disc.Port)
	assert.Empty(t, errs)

	assert.Empty(t, b.resolvers)
	assert.Equal(t, []string{avahiServiceResolverIface + ".Free"}, objects["/Client1/ServiceResolver1"].calls)
}

func TestAvahiBrowseResolverCreationFails(t *testing.T) {
	var events []BrowserEvent
	var errs []error

	browser := &fakeBusObject{path: "/Client1/ServiceBrowser1"}
	server := &fakeBusObject{path: avahiServerPath, replies: map[string]*dbus.Call{
		avahiServerIface + ".ServiceResolverNew": {Err: dbus.Error{Name: avahiService + ".TooManyObjectsError"}},
	}}

	client := newTestAvahiClient()
	client.server = server
	client.object = func(string, dbus.ObjectPath) dbus.BusObject {
		t.Fatal("no object expected")
		return nil
	}

	b := &avahiBrowse{
		avahiClient: client,
		serviceType: mustServiceType(t, "http", "tcp"),
		browser:     browser,
		resolvers:   map[dbus.ObjectPath]*avahiResolver{},
		deliver: func(ev BrowserEvent, err error) {
			if err != nil {
				errs = append(errs, err)
			} else {
				events = append(events, ev)
			}
		},
	}

	require.NoError(t, b.dispatch(&dbus.Signal{
		Path: browser.path,
		Name: avahiServiceBrowserIface + ".ItemNew",
		Body: []interface{}{int32(2), int32(0), "foo", "_http._tcp", "local", uint32(0)},
	}))

	assert.Empty(t, events)
	assert.Empty(t, b.resolvers)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrResolutionFailed)
}
