package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cenkalti/backoff/v4"
	zeroconf "github.com/devgianlu/go-zeroconf"
)

type ApiService struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Domain    string            `json:"domain"`
	HostName  string            `json:"host_name"`
	Address   string            `json:"address"`
	Port      uint16            `json:"port"`
	Txt       map[string]string `json:"txt"`
	Interface int32             `json:"interface"`
}

type ApiServiceRemoved struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Domain    string `json:"domain"`
	Interface int32  `json:"interface"`
}

func serviceKey(name string, st zeroconf.ServiceType, domain string, iface zeroconf.NetworkInterface) string {
	return fmt.Sprintf("%s.%s.%s@%d", name, st.Kind(), domain, iface)
}

// serviceDirectory keeps the services currently visible to a browser.
type serviceDirectory struct {
	services map[string]*ApiService
}

func newServiceDirectory() *serviceDirectory {
	return &serviceDirectory{services: map[string]*ApiService{}}
}

func (d *serviceDirectory) add(disc zeroconf.ServiceDiscovery) *ApiService {
	svc := &ApiService{
		Name:      disc.Name,
		Type:      disc.ServiceType.String(),
		Domain:    disc.Domain,
		HostName:  disc.HostName,
		Address:   disc.Address,
		Port:      disc.Port,
		Txt:       disc.Txt.ToMap(),
		Interface: int32(disc.Interface),
	}

	d.services[serviceKey(disc.Name, disc.ServiceType, disc.Domain, disc.Interface)] = svc
	return svc
}

func (d *serviceDirectory) remove(rem zeroconf.ServiceRemoval) *ApiServiceRemoved {
	delete(d.services, serviceKey(rem.Name, rem.ServiceType, rem.Domain, rem.Interface))
	return &ApiServiceRemoved{
		Name:      rem.Name,
		Type:      rem.ServiceType.String(),
		Domain:    rem.Domain,
		Interface: int32(rem.Interface),
	}
}

func (d *serviceDirectory) snapshot() []*ApiService {
	out := make([]*ApiService, 0, len(d.services))
	for _, svc := range d.services {
		out = append(out, svc)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Interface < out[j].Interface
	})
	return out
}

func (app *App) handleApiRequest(req ApiRequest, dir *serviceDirectory) (any, error) {
	switch req.Type {
	case ApiRequestTypeServices:
		return dir.snapshot(), nil
	default:
		return nil, fmt.Errorf("unknown request type: %s", req.Type)
	}
}

// Browse prints the services of the configured type until ctx is done,
// recreating the browser whenever the daemon connection is lost.
func (app *App) Browse(ctx context.Context) error {
	st, err := app.cfg.serviceType()
	if err != nil {
		return err
	}

	if len(app.cfg.ApiAddress) > 0 {
		app.server, err = NewApiServer(app.cfg.ApiAddress, app.cfg.ApiAllowOrigin)
		if err != nil {
			return err
		}
		defer app.server.Close()
	} else {
		app.server = NewStubApiServer()
	}

	return backoff.Retry(func() error {
		err := app.browse(ctx, st)
		if isRecoverable(err) || errors.Is(err, zeroconf.ErrBrowseFailed) {
			app.log.WithError(err).Warnf("browsing stopped, restarting")
			return err
		}

		return backoff.Permanent(err)
	}, backoff.WithContext(newBackOff(), ctx))
}

func (app *App) browse(ctx context.Context, st zeroconf.ServiceType) error {
	browser := zeroconf.NewMdnsBrowser(st)
	dir := newServiceDirectory()

	var failure error
	if err := errors.Join(
		browser.SetNetworkInterface(app.cfg.networkInterface()),
		browser.SetDomain(app.cfg.Domain),
		browser.SetLogger(app.log),
		browser.SetBackend(app.cfg.Backend),
		browser.SetServiceDiscoveredCallback(func(ev zeroconf.BrowserEvent, err error, _ *zeroconf.BoxedContext) {
			if errors.Is(err, zeroconf.ErrBrowseFailed) || errors.Is(err, zeroconf.ErrPoll) {
				failure = err
				_ = browser.Close()
				return
			} else if err != nil {
				app.log.WithError(err).Warnf("failed resolving service")
				return
			}

			switch ev := ev.(type) {
			case zeroconf.ServiceDiscovery:
				svc := dir.add(ev)
				fmt.Printf("+ %q %s %s:%d (%s) %s\n", svc.Name, svc.Type, svc.HostName, svc.Port, svc.Address, ev.Txt)
				app.server.Emit(&ApiEvent{Type: ApiEventTypeServiceFound, Data: svc})
			case zeroconf.ServiceRemoval:
				rem := dir.remove(ev)
				fmt.Printf("- %q %s\n", rem.Name, rem.Type)
				app.server.Emit(&ApiEvent{Type: ApiEventTypeServiceRemoved, Data: rem})
			}
		}),
	); err != nil {
		return err
	}

	loop, err := browser.BrowseServices()
	if err != nil {
		return err
	}
	defer func() { _ = browser.Close() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-app.server.Receive():
			req.Reply(app.handleApiRequest(req, dir))
		default:
		}

		if err := loop.Poll(pollTimeout); err != nil {
			if failure != nil {
				return failure
			}

			return err
		}
	}
}
