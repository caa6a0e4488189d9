//go:build test_unit

package zeroconf

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLogrusLogger(t *testing.T) {
	var buf bytes.Buffer

	base := logrus.New()
	base.SetOutput(&buf)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	log := NewLogrusLogger(logrus.NewEntry(base)).WithField("service", "_http._tcp")
	log.Debugf("registering on port %d", 8080)
	log.Tracef("not shown")

	out := buf.String()
	assert.Contains(t, out, "registering on port 8080")
	assert.Contains(t, out, "service=_http._tcp")
	assert.NotContains(t, out, "not shown")
}

func TestLoggerOrNull(t *testing.T) {
	assert.IsType(t, &NullLogger{}, loggerOrNull(nil))

	log := NewLogrusLogger(nil)
	assert.Equal(t, log, loggerOrNull(log))
}

func TestVersionString(t *testing.T) {
	assert.True(t, strings.HasPrefix(VersionString(), "go-zeroconf "))
	assert.Contains(t, SystemInfoString(), DefaultBackend)
}
