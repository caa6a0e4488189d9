package zeroconf

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidServiceType    = errors.New("invalid service type")
	ErrInvalidTxtRecordEntry = errors.New("invalid txt record entry")
	ErrInvalidState          = errors.New("invalid state")
	ErrConnectionFailed      = errors.New("connection to mdns daemon failed")
	ErrPoll                  = errors.New("event loop poll failed")

	ErrRegistrationFailed = errors.New("service registration failed")
	ErrResolutionFailed   = errors.New("service resolution failed")
	ErrBrowseFailed       = errors.New("service browse failed")
)

var (
	// ErrNameCollision is reported when another host already advertises
	// the same instance name. It also matches ErrRegistrationFailed.
	ErrNameCollision = fmt.Errorf("%w: name collision", ErrRegistrationFailed)

	// ErrUnknownBackend also matches ErrConnectionFailed.
	ErrUnknownBackend = fmt.Errorf("%w: unknown backend", ErrConnectionFailed)
)
