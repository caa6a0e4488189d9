//go:build test_unit

package main

import (
	"testing"

	zeroconf "github.com/devgianlu/go-zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceDirectory(t *testing.T) {
	st, err := zeroconf.NewServiceType("http", "tcp")
	require.NoError(t, err)

	txt, err := zeroconf.NewTxtRecordFromMap(map[string]string{"path": "/"})
	require.NoError(t, err)

	dir := newServiceDirectory()
	dir.add(zeroconf.ServiceDiscovery{Name: "b", ServiceType: st, Domain: "local", HostName: "b.local", Port: 80, Interface: 2})
	dir.add(zeroconf.ServiceDiscovery{Name: "a", ServiceType: st, Domain: "local", HostName: "a.local", Port: 81, Txt: txt, Interface: 3})
	dir.add(zeroconf.ServiceDiscovery{Name: "a", ServiceType: st, Domain: "local", HostName: "a.local", Port: 81, Txt: txt, Interface: 2})

	snap := dir.snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "a", snap[0].Name)
	assert.Equal(t, int32(2), snap[0].Interface)
	assert.Equal(t, "_http._tcp", snap[0].Type)
	assert.Equal(t, map[string]string{"path": "/"}, snap[0].Txt)
	assert.Equal(t, "b", snap[2].Name)
	assert.Empty(t, snap[2].Txt)

	rem := dir.remove(zeroconf.ServiceRemoval{Name: "a", ServiceType: st, Domain: "local", Interface: 3})
	assert.Equal(t, "a", rem.Name)
	assert.Len(t, dir.snapshot(), 2)

	// removing twice is harmless
	dir.remove(zeroconf.ServiceRemoval{Name: "a", ServiceType: st, Domain: "local", Interface: 3})
	assert.Len(t, dir.snapshot(), 2)
}
