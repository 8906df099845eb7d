package vm

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rocky/x-python/version"
)

// Config selects the engine's cross-version behavior: which Python
// language version the loaded CodeObjects were compiled for, which
// version the host CPython/PyPy toolchain provides for cross-version
// exec/eval/compile fallback, and a handful of other interpreter-wide
// knobs.
type Config struct {
	TargetVersion version.Tag `yaml:"target_version"`
	HostVersion   version.Tag `yaml:"host_version"`
	IsPyPy        bool        `yaml:"is_pypy"`

	RecursionLimit int  `yaml:"recursion_limit"`
	TraceEvents    bool `yaml:"trace_events"`

	// BuiltinOverrides names builtins the host environment should
	// shadow with an engine-native shim rather than falling back to
	// the host toolchain.
	BuiltinOverrides []string `yaml:"builtin_overrides"`
}

// DefaultConfig targets the newest supported CPython version against
// itself, with CPython's own default recursion ceiling.
func DefaultConfig() *Config {
	return &Config{
		TargetVersion:  version.Tag{Major: 3, Minor: 12},
		HostVersion:    version.Tag{Major: 3, Minor: 12},
		RecursionLimit: 1000,
	}
}

// LoadConfig reads a YAML configuration file, delegating the actual
// decode to yaml.v3 rather than a hand-rolled line scanner, since the
// engine's config shape is flat enough that a real unmarshaler is the
// idiomatic choice.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError(err, "reading config %s", path)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, NewEngineError(err, "parsing config %s", path)
	}
	if !version.IsSupported(cfg.TargetVersion) {
		return nil, NewEngineError(ErrMalformedBytecode, "config targets unsupported version %s", cfg.TargetVersion)
	}
	if cfg.RecursionLimit <= 0 {
		cfg.RecursionLimit = 1000
	}
	return cfg, nil
}
