// Package vmconfig defines the boot configuration passed from host to guest VM.
//
// The host launcher places these variables on the kernel command line; the kernel
// hands every KEY=VALUE word it does not recognize to init as an environment
// variable. The guest init binary (lib/system/init) reads them once with Read and
// removes them with Scrub before handing off to the payload.
package vmconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Environment variable names of the recognized boot configuration keys.
const (
	EnvInitPath = "MV_INIT"
	EnvHostname = "MV_HOSTNAME"
	EnvDebug    = "MV_DEBUG"
	EnvTTY      = "MV_TTY"
)

// DefaultInitPath is the payload used when MV_INIT is absent or empty.
const DefaultInitPath = "/bin/sh"

// Keys is the fixed set of variables consumed by init. None of them may reach
// the payload.
var Keys = []string{EnvInitPath, EnvHostname, EnvDebug, EnvTTY}

// ConsoleMode selects how init binds its standard streams.
type ConsoleMode int

const (
	// ConsoleHostNegotiated keeps the terminal the host launcher attached on fd 0.
	ConsoleHostNegotiated ConsoleMode = iota
	// ConsoleDirect opens the paravirtual console device and claims it as
	// controlling terminal.
	ConsoleDirect
)

func (m ConsoleMode) String() string {
	switch m {
	case ConsoleDirect:
		return "direct"
	case ConsoleHostNegotiated:
		return "host-negotiated"
	default:
		return fmt.Sprintf("ConsoleMode(%d)", int(m))
	}
}

// Config is the boot configuration, assembled once at init start.
type Config struct {
	// Payload executable, as given by the host. Never empty after Parse.
	InitPath string

	// Kernel hostname to apply. Empty means leave the hostname alone.
	Hostname string

	// Enables init diagnostic logging.
	Debug bool

	ConsoleMode ConsoleMode
}

// Parse builds a Config from raw key values. Missing or empty values take their
// defaults; flags are only true for "1" since the host sends "0" to disable them.
func Parse(values map[string]string) Config {
	cfg := Config{
		InitPath: values[EnvInitPath],
		Hostname: values[EnvHostname],
		Debug:    values[EnvDebug] == "1",
	}
	if cfg.InitPath == "" {
		cfg.InitPath = DefaultInitPath
	}
	if values[EnvTTY] == "1" {
		cfg.ConsoleMode = ConsoleDirect
	}
	return cfg
}

// Read assembles the boot configuration from an environment snapshot and an
// optional dotenv file baked into the guest image. A non-empty environment value
// always wins over the file. The file is only consulted for recognized keys and
// is never loaded into the process environment.
//
// A missing file is not an error. Any other file error is returned together with
// a Config built from the environment alone, so callers can log it and carry on.
func Read(environ []string, envFile string) (Config, error) {
	values := lookup(environ)

	if envFile == "" {
		return Parse(values), nil
	}

	fileValues, err := godotenv.Read(envFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Parse(values), nil
		}
		return Parse(values), fmt.Errorf("read %s: %w", envFile, err)
	}

	for _, key := range Keys {
		if values[key] != "" {
			continue
		}
		if v, ok := fileValues[key]; ok {
			values[key] = v
		}
	}

	return Parse(values), nil
}

// lookup extracts the recognized keys from KEY=VALUE pairs. Like getenv, the
// first occurrence of a key wins.
func lookup(environ []string) map[string]string {
	known := lo.Filter(environ, func(kv string, _ int) bool {
		key, _, _ := strings.Cut(kv, "=")
		return lo.Contains(Keys, key)
	})

	values := make(map[string]string, len(Keys))
	for _, kv := range known {
		key, value, _ := strings.Cut(kv, "=")
		if _, seen := values[key]; !seen {
			values[key] = value
		}
	}
	return values
}

// Environ encodes the config as the KEY=VALUE words the host launcher appends to
// the kernel command line.
func (c Config) Environ() []string {
	return []string{
		EnvDebug + "=" + flag(c.Debug),
		EnvTTY + "=" + flag(c.ConsoleMode == ConsoleDirect),
		EnvHostname + "=" + c.Hostname,
		EnvInitPath + "=" + c.InitPath,
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Scrub removes every recognized key using unsetenv (os.Unsetenv in production).
// It must run after the config has been read and before the payload is executed.
func Scrub(unsetenv func(key string) error) error {
	for _, key := range Keys {
		if err := unsetenv(key); err != nil {
			return fmt.Errorf("unset %s: %w", key, err)
		}
	}
	return nil
}
