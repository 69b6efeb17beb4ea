// Package config handles muddy.toml project configuration.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/muddy"
	"github.com/wippyai/muddy/classfile"
	"github.com/wippyai/muddy/errors"
	"github.com/wippyai/muddy/obfuscate"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "muddy.toml"

// Config represents a muddy.toml file.
type Config struct {
	Obfuscate Obfuscate `toml:"obfuscate"`
	Codec     Codec     `toml:"codec"`
	Decoder   Decoder   `toml:"decoder"`
	Pipeline  Pipeline  `toml:"pipeline"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// Obfuscate selects the classes to process.
type Obfuscate struct {
	Include         []string `toml:"include"`
	IncludePatterns []string `toml:"include_patterns"`
	Exclude         []string `toml:"exclude"`
	// KeepPlaintext leaves rewritten literals readable in the constant
	// pool.
	KeepPlaintext bool `toml:"keep_plaintext"`
}

// Codec configures literal encoding.
type Codec struct {
	// Seed keys the deterministic codec.
	Seed uint64 `toml:"seed"`
	// RandomKeys draws a fresh key per literal; output is not reproducible.
	RandomKeys bool `toml:"random_keys"`
	// Wasm is the path of a WebAssembly codec module, relative to Dir.
	Wasm string `toml:"wasm"`
	// MemoryLimitPages caps the WebAssembly codec's memory.
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`
}

// Decoder names the run-time decoder class.
type Decoder struct {
	Class      string `toml:"class"`
	CtorDesc   string `toml:"ctor_desc"`
	Method     string `toml:"method"`
	MethodDesc string `toml:"method_desc"`
}

// Pipeline configures batch processing.
type Pipeline struct {
	// Workers bounds concurrent class transforms (default: GOMAXPROCS).
	Workers int `toml:"workers"`
	// Report is the path of the CBOR report, empty for none.
	Report string `toml:"report"`
	// Verify decodes every rewritten literal after transformation.
	Verify bool `toml:"verify"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load parses a muddy.toml file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, "read "+path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, "resolve "+path, err)
	}
	return c, nil
}

// Parse decodes and validates configuration text.
func Parse(data []byte) (*Config, error) {
	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, "parse "+FileName, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(undecoded[0].String()).
			Detail("unknown key %q", undecoded[0].String()).
			Build()
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a muddy.toml file. It
// returns nil when there is none.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = runtime.GOMAXPROCS(0)
	}
	d := c.DecoderRef()
	c.Decoder = Decoder{Class: d.Class, CtorDesc: d.CtorDesc, Method: d.Method, MethodDesc: d.MethodDesc}
}

// Validate checks the configuration for values no run can use.
func (c *Config) Validate() error {
	if c.Codec.RandomKeys && c.Codec.Wasm != "" {
		return errors.InvalidInput(errors.PhaseConfig, "codec.random_keys and codec.wasm are exclusive")
	}
	if c.Codec.Seed != 0 && c.Codec.RandomKeys {
		return errors.InvalidInput(errors.PhaseConfig, "codec.seed has no effect with codec.random_keys")
	}
	for _, p := range c.Obfuscate.Include {
		if p == "" {
			return errors.InvalidInput(errors.PhaseConfig, "obfuscate.include contains an empty prefix")
		}
	}
	if _, err := obfuscate.NewPatternMatcher(c.Obfuscate.IncludePatterns); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, "obfuscate.include_patterns", err)
	}
	ctor, err := classfile.ParseMethodDescriptor(c.Decoder.CtorDesc)
	if err != nil || ctor.Return != "V" || len(ctor.Params) != 1 || ctor.Params[0] != "[J" {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(c.Decoder.CtorDesc).Cause(err).
			Detail("decoder.ctor_desc %q must take a long[] and return void", c.Decoder.CtorDesc).
			Build()
	}
	if c.Decoder.MethodDesc != "()Ljava/lang/String;" {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(c.Decoder.MethodDesc).
			Detail("decoder.method_desc must be ()Ljava/lang/String;, got %q", c.Decoder.MethodDesc).
			Build()
	}
	return nil
}

// DecoderRef returns the decoder section with defaults applied.
func (c *Config) DecoderRef() muddy.DecoderRef {
	return muddy.DecoderRef{
		Class:      c.Decoder.Class,
		CtorDesc:   c.Decoder.CtorDesc,
		Method:     c.Decoder.Method,
		MethodDesc: c.Decoder.MethodDesc,
	}.WithDefaults()
}

// WasmPath resolves the WebAssembly codec path against Dir.
func (c *Config) WasmPath() string {
	if c.Codec.Wasm == "" || filepath.IsAbs(c.Codec.Wasm) || c.Dir == "" {
		return c.Codec.Wasm
	}
	return filepath.Join(c.Dir, c.Codec.Wasm)
}

// ObfuscateConfig builds the transformation configuration around cdc.
func (c *Config) ObfuscateConfig(cdc muddy.Codec) obfuscate.Config {
	return obfuscate.Config{
		Codec:           cdc,
		Decoder:         c.DecoderRef(),
		Include:         c.Obfuscate.Include,
		IncludePatterns: c.Obfuscate.IncludePatterns,
		Exclude:         c.Obfuscate.Exclude,
		KeepPlaintext:   c.Obfuscate.KeepPlaintext,
	}
}
