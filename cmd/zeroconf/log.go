package main

import (
	zeroconf "github.com/devgianlu/go-zeroconf"
	log "github.com/sirupsen/logrus"
)

// setupLogging configures the standard logrus logger and returns the
// library logger bound to it.
func setupLogging(level string) (zeroconf.Logger, error) {
	logLevel, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	log.SetLevel(logLevel)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	return zeroconf.NewLogrusLogger(log.WithField("module", "zeroconf")), nil
}
