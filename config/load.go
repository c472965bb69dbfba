package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/xraph/taskq"
)

// Preset names.
const (
	PresetDefault    = "default"
	PresetStandalone = "standalone"
	PresetClient     = "client"
	PresetServer     = "server"
)

// EnvConfig names the environment variable the CLI reads its config
// sources from.
const EnvConfig = "TASKQ_CONFIG"

// presets overlay the defaults. Standalone is the defaults themselves.
var presets = map[string]func(*Config){
	PresetStandalone: func(*Config) {},
	PresetClient: func(c *Config) {
		c.Connection = "http://localhost:8080"
		c.Run.DBInit = false
		// The server sweeps.
		c.Run.FailPulseTimeout = false
	},
	PresetServer: func(c *Config) {
		c.Run.DBInit = true
		c.Server.Addr = ":8080"
	},
}

// Presets returns the preset names in sorted order.
func Presets() []string {
	names := make([]string, 0, len(presets)+1)
	for name := range presets {
		names = append(names, name)
	}
	names = append(names, PresetDefault)
	sort.Strings(names)
	return names
}

// Preset returns the defaults with the named preset applied.
func Preset(name string) (*Config, error) {
	c := Default()
	if err := c.apply(name); err != nil {
		return nil, err
	}
	return c, nil
}

// Load builds a Config from sources, each a preset name or a path to a
// .json or .toml file. Earlier sources take precedence over later ones,
// and all of them over the defaults. With environ set, environment
// variables override the result.
func Load(sources []string, environ bool) (*Config, error) {
	c := Default()
	for i := len(sources) - 1; i >= 0; i-- {
		if err := c.apply(sources[i]); err != nil {
			return nil, err
		}
	}
	if environ {
		if err := c.ApplyEnv(os.LookupEnv); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// SplitSources splits a comma separated list of sources.
func SplitSources(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) apply(source string) error {
	if source == PresetDefault {
		source = PresetStandalone
	}
	if overlay, ok := presets[source]; ok {
		overlay(c)
		return nil
	}
	switch ext := strings.ToLower(filepath.Ext(source)); ext {
	case ".json", ".toml":
		return c.decodeFile(source, ext)
	case "":
		return fmt.Errorf("%w: %q (presets: %s)", taskq.ErrUnknownPreset, source, strings.Join(Presets(), ", "))
	default:
		return fmt.Errorf("%w: unsupported config file %q, only .json and .toml are supported", taskq.ErrInvalidConfig, source)
	}
}

func (c *Config) decodeFile(path, ext string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", taskq.ErrInvalidConfig, path, err)
	}
	if ext == ".json" {
		err = json.Unmarshal(data, c)
	} else {
		_, err = toml.Decode(string(data), c)
	}
	if err != nil {
		return fmt.Errorf("%w: decode %s: %w", taskq.ErrInvalidConfig, path, err)
	}
	return nil
}

// setter parses a string into one config field.
type setter interface {
	Set(string) error
}

type stringValue struct{ p *string }

func (v stringValue) Set(s string) error { *v.p = s; return nil }

type boolValue struct{ p *bool }

func (v boolValue) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*v.p = b
	return nil
}

type intValue struct{ p *int }

func (v intValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*v.p = n
	return nil
}

// fields lists every overridable field by dotted path.
func (c *Config) fields() []struct {
	path  string
	value setter
} {
	return []struct {
		path  string
		value setter
	}{
		{"connection", stringValue{&c.Connection}},
		{"run.wait_timeout", &c.Run.WaitTimeout},
		{"run.pull_interval", &c.Run.PullInterval},
		{"run.db_init", boolValue{&c.Run.DBInit}},
		{"run.fail_pulse_timeout", boolValue{&c.Run.FailPulseTimeout}},
		{"run.run_forever", boolValue{&c.Run.RunForever}},
		{"run.raise_exception", boolValue{&c.Run.RaiseException}},
		{"run.task_timeout", &c.Run.TaskTimeout},
		{"run.concurrency", stringValue{&c.Run.Concurrency}},
		{"run.backoff", stringValue{&c.Run.Backoff}},
		{"run.backoff_max", &c.Run.BackoffMax},
		{"monitor.pulse_interval", &c.Monitor.PulseInterval},
		{"monitor.pulse_timeout", &c.Monitor.PulseTimeout},
		{"db.max_jobs", intValue{&c.DB.MaxJobs}},
		{"db.busy_timeout", &c.DB.BusyTimeout},
		{"db.max_conns", intValue{&c.DB.MaxConns}},
		{"api.limit", intValue{&c.API.Limit}},
		{"server.addr", stringValue{&c.Server.Addr}},
		{"server.sweep_interval", &c.Server.SweepInterval},
	}
}

// EnvNames returns the two environment names of a dotted field path.
func EnvNames(path string) (dotted, upper string) {
	dotted = "taskq." + path
	upper = strings.ToUpper(strings.ReplaceAll(dotted, ".", "_"))
	return dotted, upper
}

// ApplyEnv overrides fields from the environment. The dotted name wins
// over the upper-case name when both are set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, f := range c.fields() {
		dotted, upper := EnvNames(f.path)
		name, value, ok := dotted, "", false
		if value, ok = lookup(dotted); !ok {
			name = upper
			value, ok = lookup(upper)
		}
		if !ok {
			continue
		}
		if err := f.value.Set(value); err != nil {
			return fmt.Errorf("%w: failed parsing config env variable %q value %q: %w",
				taskq.ErrInvalidConfig, name, value, err)
		}
	}
	return nil
}

// LoadDotEnv loads variables from .env files into the process environment
// without overriding variables that are already set. Missing files are
// ignored. With no files it loads ".env".
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("%w: load %s: %w", taskq.ErrInvalidConfig, f, err)
		}
	}
	return nil
}
