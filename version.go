package zeroconf

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// version can be set at link time: -ldflags "-X github.com/devgianlu/go-zeroconf.version=v1.2.3"
var version string

func VersionNumberString() string {
	if len(version) > 0 {
		return version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 8 {
				return "dev-" + setting.Value[:8]
			}
		}
	}

	return "dev"
}

func VersionString() string {
	return fmt.Sprintf("go-zeroconf %s", VersionNumberString())
}

func SystemInfoString() string {
	return fmt.Sprintf("%s; Go %s; %s/%s; backend %s", VersionString(), runtime.Version(), runtime.GOOS, runtime.GOARCH, DefaultBackend)
}
