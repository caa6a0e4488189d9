package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"
	zeroconf "github.com/devgianlu/go-zeroconf"
)

var instanceSuffix = regexp.MustCompile(`^(.*) \((\d+)\)$`)

// nextInstanceName returns the name to try after a collision: "foo" becomes
// "foo (2)" and "foo (2)" becomes "foo (3)".
func nextInstanceName(name string) string {
	if m := instanceSuffix.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			return fmt.Sprintf("%s (%d)", m[1], n+1)
		}
	}

	return name + " (2)"
}

func defaultInstanceName() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "go-zeroconf"
	}

	hostname, _, _ = strings.Cut(hostname, ".")
	return hostname
}

// Register advertises the configured service until ctx is done. Collisions
// are solved by renaming the instance, a lost daemon connection by
// recreating the service.
func (app *App) Register(ctx context.Context) error {
	st, err := app.cfg.serviceType()
	if err != nil {
		return err
	} else if app.cfg.Port == 0 {
		return fmt.Errorf("missing --port")
	}

	txt, err := app.cfg.txtRecord()
	if err != nil {
		return err
	}

	name := app.cfg.Name
	if len(name) == 0 {
		name = defaultInstanceName()
	}

	return backoff.Retry(func() error {
		lock, err := acquireInstanceLock(app.cfg.LockDir, st.Kind(), name)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer lock.Release()

		err = app.advertise(ctx, st, name, txt)
		switch {
		case errors.Is(err, zeroconf.ErrNameCollision):
			next := nextInstanceName(name)
			app.log.Warnf("instance name %q is already taken, trying %q", name, next)
			name = next
			return err
		case isRecoverable(err):
			app.log.WithError(err).Warnf("lost connection to mdns daemon, re-registering")
			return err
		default:
			return backoff.Permanent(err)
		}
	}, backoff.WithContext(newBackOff(), ctx))
}

// advertise registers a single service and polls it until ctx is done or
// the registration fails.
func (app *App) advertise(ctx context.Context, st zeroconf.ServiceType, name string, txt *zeroconf.TxtRecord) error {
	service := zeroconf.NewMdnsService(st, app.cfg.Port)

	var failure error
	if err := errors.Join(
		service.SetName(name),
		service.SetNetworkInterface(app.cfg.networkInterface()),
		service.SetDomain(app.cfg.Domain),
		service.SetHost(app.cfg.Host),
		service.SetTxtRecord(txt),
		service.SetLogger(app.log),
		service.SetBackend(app.cfg.Backend),
		service.SetRegisteredCallback(func(reg zeroconf.ServiceRegistration, err error, _ *zeroconf.BoxedContext) {
			if err != nil {
				failure = err
				_ = service.Close()
				return
			}

			fmt.Printf("registered %q as %s in %s on port %d\n", reg.Name, reg.ServiceType, reg.Domain, reg.Port)
		}),
	); err != nil {
		return err
	}

	loop, err := service.Register()
	if err != nil {
		return err
	}
	defer func() { _ = service.Close() }()

	if err := loop.Run(ctx, pollTimeout); err != nil {
		return err
	}

	return failure
}
