package main

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	zeroconf "github.com/devgianlu/go-zeroconf"
)

const pollTimeout = 100 * time.Millisecond

type App struct {
	cfg *Config
	log zeroconf.Logger

	server *ApiServer
}

func NewApp(cfg *Config, log zeroconf.Logger) *App {
	return &App{cfg: cfg, log: log}
}

// newBackOff returns the retry policy used to recreate adapters. It never
// gives up on its own, the context does.
func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// isRecoverable reports whether recreating the adapter may fix err.
func isRecoverable(err error) bool {
	if errors.Is(err, zeroconf.ErrUnknownBackend) {
		return false
	}

	return errors.Is(err, zeroconf.ErrPoll) || errors.Is(err, zeroconf.ErrConnectionFailed)
}
