package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/gofrs/flock"
)

var ErrAlreadyAdvertised = errors.New("instance already advertised by another process")

// UserStateDir returns the default root directory for user-specific state
// data: $XDG_STATE_HOME or $HOME/.local/state on Unix systems and
// os.UserConfigDir elsewhere.
func UserStateDir() (string, error) {
	switch runtime.GOOS {
	case "windows", "darwin", "ios", "plan9":
		return os.UserConfigDir()
	}

	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return dir, nil
	} else if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".local", "state"), nil
	}

	return "", errors.New("neither $XDG_STATE_HOME nor $HOME are defined")
}

var unsafeLockChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func lockFileName(kind, name string) string {
	return unsafeLockChars.ReplaceAllString(strings.ToLower(kind+"@"+name), "_") + ".lock"
}

// instanceLock guards an instance name so that two local processes never
// advertise the same service instance.
type instanceLock struct {
	lock *flock.Flock
}

func acquireInstanceLock(dir, kind, name string) (*instanceLock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed creating lock directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName(kind, name)))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed acquiring lock %s: %w", lock.Path(), err)
	} else if !locked {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAdvertised, name)
	}

	return &instanceLock{lock: lock}, nil
}

func (l *instanceLock) Release() {
	if l == nil {
		return
	}

	_ = l.lock.Unlock()
}
