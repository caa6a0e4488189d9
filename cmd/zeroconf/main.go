package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	zeroconf "github.com/devgianlu/go-zeroconf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

type Config struct {
	ConfigPath string `koanf:"config_path"`
	LockDir    string `koanf:"lock_dir"`

	LogLevel string `koanf:"log_level"`
	Backend  string `koanf:"backend"`

	Interface int32  `koanf:"interface"`
	Domain    string `koanf:"domain"`
	Type      string `koanf:"type"`

	Name string   `koanf:"name"`
	Host string   `koanf:"host"`
	Port uint16   `koanf:"port"`
	Txt  []string `koanf:"txt"`

	ApiAddress     string `koanf:"api_address"`
	ApiAllowOrigin string `koanf:"api_allow_origin"`
}

func (c *Config) serviceType() (zeroconf.ServiceType, error) {
	if len(c.Type) == 0 {
		return zeroconf.ServiceType{}, fmt.Errorf("%w: missing --type", zeroconf.ErrInvalidServiceType)
	}

	return zeroconf.ParseServiceType(c.Type)
}

func (c *Config) txtRecord() (*zeroconf.TxtRecord, error) {
	txt := zeroconf.NewTxtRecord()
	for _, entry := range c.Txt {
		key, val, _ := strings.Cut(entry, "=")
		if err := txt.InsertString(key, val); err != nil {
			return nil, err
		}
	}

	return txt, nil
}

func (c *Config) networkInterface() zeroconf.NetworkInterface {
	if c.Interface < 0 {
		return zeroconf.InterfaceUnspec
	}

	return zeroconf.InterfaceAtIndex(uint32(c.Interface))
}

func loadConfig(args []string) (string, *Config, error) {
	f := pflag.NewFlagSet("zeroconf", pflag.ContinueOnError)
	f.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: zeroconf [register|browse] [flags]\n\n%s", f.FlagUsages())
	}

	f.String("config-path", "", "the configuration file path")
	f.String("lock-dir", "", "the directory containing the instance lock files")
	f.String("log-level", "", "the log level (trace, debug, info, warn, error)")
	f.String("backend", "", fmt.Sprintf("the mdns backend (%s)", strings.Join(zeroconf.Backends(), ", ")))
	f.Int32("interface", 0, "the network interface index, -1 for all")
	f.String("domain", "", "the domain to register or browse in")
	f.String("type", "", "the service type, e.g. http.tcp or _http._tcp,_printer")
	f.String("name", "", "the service instance name, defaults to the host name")
	f.String("host", "", "the host the service runs on, defaults to this machine")
	f.Uint16("port", 0, "the service port")
	f.StringArray("txt", nil, "a txt record entry as key=value, can be repeated")
	f.String("api-address", "", "serve discovered services over HTTP on this address")
	f.String("api-allow-origin", "", "the origin allowed to access the API")
	version := f.Bool("version", false, "print the version and exit")

	if err := f.Parse(args); err != nil {
		return "", nil, err
	}

	if *version {
		fmt.Println(zeroconf.SystemInfoString())
		os.Exit(0)
	}

	var cmd string
	if f.NArg() > 0 {
		cmd = f.Arg(0)
	}

	lockDir, err := UserStateDir()
	if err != nil {
		lockDir = os.TempDir()
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"lock_dir":  filepath.Join(lockDir, "go-zeroconf"),
		"log_level": "info",
		"backend":   zeroconf.DefaultBackend,
		"interface": -1,
	}, "."), nil); err != nil {
		return "", nil, fmt.Errorf("failed loading default configuration: %w", err)
	}

	flagProvider := posflag.ProviderWithFlag(f, ".", k, func(flag *pflag.Flag) (string, interface{}) {
		return strings.ReplaceAll(flag.Name, "-", "_"), posflag.FlagVal(f, flag)
	})

	// the config path itself can only come from the command line
	if path, _ := f.GetString("config-path"); len(path) > 0 {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return "", nil, fmt.Errorf("failed reading configuration file %s: %w", path, err)
		}
	}

	if err := k.Load(flagProvider, nil); err != nil {
		return "", nil, fmt.Errorf("failed loading command line configuration: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return "", nil, fmt.Errorf("failed unmarshalling configuration: %w", err)
	}

	return cmd, &cfg, nil
}

func main() {
	cmd, cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	} else if err != nil {
		log.WithError(err).Fatal("failed loading configuration")
	}

	logger, err := setupLogging(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Fatalf("invalid log level: %s", cfg.LogLevel)
	}

	log.Debugf("running %s", zeroconf.SystemInfoString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg, logger)

	switch cmd {
	case "register":
		err = app.Register(ctx)
	case "browse":
		err = app.Browse(ctx)
	default:
		log.Fatalf("unknown command: %q, expected register or browse", cmd)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatalf("failed running %s", cmd)
	}
}
