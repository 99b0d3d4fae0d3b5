package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeycumines/go-channelgraph/internal/reopen"
	"github.com/joeycumines/go-channelgraph/processor"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML document a config-path argument points at:
// a processor name, a logger level, and the flat `objects.*` list
// processor.BuildGraph consumes, per spec.md §6's CLI section and §4.5's
// object-graph construction steps. Following scheme/yaml.go's own
// "describe the consumption surface, not a general grammar" idiom.
type fileConfig struct {
	Name   string `yaml:"name"`
	Logger struct {
		Level string `yaml:"level"`
	} `yaml:"logger"`
	Objects []objectConfig `yaml:"objects"`
}

type objectConfig struct {
	Name       string   `yaml:"name"`
	URL        string   `yaml:"url"`
	Worker     string   `yaml:"worker"`
	Depends    []string `yaml:"depends"`
	InitOnly   []string `yaml:"init-depends"`
	ShutdownOn string   `yaml:"shutdown-on"`
	Disabled   bool     `yaml:"disable"`
	Stage      string   `yaml:"stage"`
	Reopen     struct {
		TimeoutMin string `yaml:"timeout-min"`
		TimeoutMax string `yaml:"timeout-max"`
		TrembleMin string `yaml:"tremble-min"`
	} `yaml:"reopen"`
}

// loadConfig parses the YAML document at path then applies every -D
// override, matching main.cc's "load, then cfg->set(key,value) per -D"
// sequence. Overrides use a dotted path addressing one of this struct's
// own fields: `objects.<name>.url=...` is the only path main.cc's
// generic `cfg->set` equivalent needs in practice, since every other
// per-object knob lives inside the url string itself (spec.md §6's URL
// grammar).
func loadConfig(path string, defs []string) (*fileConfig, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("channelgraphd: parse config: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = "processor"
	}
	for _, d := range defs {
		if err := applyOverride(&cfg, d); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// applyOverride implements one `-D key=value` definition. Only
// `objects.<name>.url` is supported, per this binary's narrowed config
// surface (see loadConfig's doc comment) — anything else is a hard
// error rather than a silently ignored override.
func applyOverride(cfg *fileConfig, def string) error {
	eq := strings.IndexByte(def, '=')
	if eq < 0 {
		return fmt.Errorf("channelgraphd: invalid -D value %q: missing '='", def)
	}
	key, val := def[:eq], def[eq+1:]
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[0] != "objects" || parts[2] != "url" {
		return fmt.Errorf("channelgraphd: unsupported -D key %q (only objects.<name>.url is overridable)", key)
	}
	for i := range cfg.Objects {
		if cfg.Objects[i].Name == parts[1] {
			cfg.Objects[i].URL = val
			return nil
		}
	}
	return fmt.Errorf("channelgraphd: -D references unknown object %q", parts[1])
}

func parseShutdownPolicy(s string) (processor.ShutdownPolicy, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return processor.ShutdownNone, nil
	case "close":
		return processor.ShutdownClose, nil
	case "error":
		return processor.ShutdownError, nil
	default:
		return 0, fmt.Errorf("channelgraphd: unknown shutdown-on value %q", s)
	}
}

func parseReopenConfig(oc objectConfig) (reopen.Config, error) {
	def := reopen.DefaultConfig()
	parse := func(s string, fallback time.Duration) (time.Duration, error) {
		if s == "" {
			return fallback, nil
		}
		return time.ParseDuration(s)
	}
	timeoutMin, err := parse(oc.Reopen.TimeoutMin, def.TimeoutMin)
	if err != nil {
		return reopen.Config{}, fmt.Errorf("channelgraphd: object %s: reopen.timeout-min: %w", oc.Name, err)
	}
	timeoutMax, err := parse(oc.Reopen.TimeoutMax, def.TimeoutMax)
	if err != nil {
		return reopen.Config{}, fmt.Errorf("channelgraphd: object %s: reopen.timeout-max: %w", oc.Name, err)
	}
	trembleMin, err := parse(oc.Reopen.TrembleMin, def.TrembleMin)
	if err != nil {
		return reopen.Config{}, fmt.Errorf("channelgraphd: object %s: reopen.tremble-min: %w", oc.Name, err)
	}
	return reopen.Config{TimeoutMin: timeoutMin, TimeoutMax: timeoutMax, TrembleMin: trembleMin}, nil
}
