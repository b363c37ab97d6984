package model

import (
	"fmt"
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const DefaultTimeout = 15

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
}

// Config is the content of a wait-for-it.yaml file. Flags and environment
// variables override it.
type Config struct {
	Version  int      `json:"version" yaml:"version"` // fixed 0 for now
	Services []string `json:"services,omitempty" yaml:"services,omitempty"`
	Timeout  int      `json:"timeout" yaml:"timeout"` // seconds, 0 waits forever
	Parallel bool     `json:"parallel" yaml:"parallel"`
	Quiet    bool     `json:"quiet" yaml:"quiet"`
	Verbose  bool     `json:"verbose" yaml:"verbose"`
	Tags     bool     `json:"tags" yaml:"tags"` // prefix tags of reporter messages
}

func DefaultConfig() Config {
	return Config{
		Timeout: DefaultTimeout,
		Tags:    true,
	}
}

// Mode returns the waiting strategy selected by the configuration.
func (c Config) Mode() Mode {
	if c.Parallel {
		return ModeParallel
	}
	return ModeSerial
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("wait-for-it.yaml", r)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),
		cue.Concrete(true),
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	return out, nil
}
