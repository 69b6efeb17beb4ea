package obfuscate

import (
	"github.com/wippyai/muddy"
	"github.com/wippyai/muddy/classfile"
	"github.com/wippyai/muddy/codec"
	"github.com/wippyai/muddy/errors"
	"github.com/wippyai/muddy/obfuscate/internal/engine"
	"go.uber.org/zap"
)

// Stats counts what a transformation changed.
type Stats = engine.Stats

// Config configures the transformation.
type Config struct {
	// Codec encodes literals. Defaults to codec.New().
	Codec muddy.Codec
	// Matcher, when set, replaces Include, IncludePatterns and Exclude.
	Matcher ClassMatcher
	// Decoder names the run-time decoder class. Empty fields default to
	// muddy.DefaultDecoder.
	Decoder muddy.DecoderRef
	// Include lists dotted name prefixes of the classes to process.
	Include []string
	// IncludePatterns lists regular expressions over dotted names.
	IncludePatterns []string
	// Exclude lists dotted name prefixes removed from the included set.
	Exclude []string
	// KeepPlaintext leaves the plaintext of rewritten literals in the
	// constant pool instead of blanking it.
	KeepPlaintext bool
}

// Transformer applies one configuration to many classes. It is safe for
// concurrent use when its codec is.
type Transformer struct {
	matcher ClassMatcher
	engine  *engine.Engine
	decoder string
}

// New validates cfg and creates a Transformer. With no include prefix or
// pattern no class is eligible.
func New(cfg Config) (*Transformer, error) {
	m := cfg.Matcher
	if m == nil {
		var includes []ClassMatcher
		if len(cfg.Include) > 0 {
			includes = append(includes, NewPrefixMatcher(cfg.Include))
		}
		if len(cfg.IncludePatterns) > 0 {
			pm, err := NewPatternMatcher(cfg.IncludePatterns)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, "compile include pattern", err)
			}
			includes = append(includes, pm)
		}
		var exclude ClassMatcher
		if len(cfg.Exclude) > 0 {
			exclude = NewPrefixMatcher(cfg.Exclude)
		}
		m = NewExcludeMatcher(NewCompositeMatcher(includes...), exclude)
	}

	cdc := cfg.Codec
	if cdc == nil {
		cdc = codec.New()
	}
	decoder := cfg.Decoder.WithDefaults()
	return &Transformer{
		matcher: m,
		decoder: decoder.Class,
		engine: engine.New(engine.Config{
			Codec:         cdc,
			Decoder:       decoder,
			KeepPlaintext: cfg.KeepPlaintext,
		}),
	}, nil
}

// Eligible reports whether the class with the given internal or dotted
// name is processed. The decoder class never is.
func (t *Transformer) Eligible(name string) bool {
	dotted := DottedName(name)
	if dotted == DottedName(t.decoder) {
		return false
	}
	return t.matcher.MatchClass(dotted)
}

// TransformClass rewrites an eligible class in place. Ineligible classes
// are left alone and report zero Stats.
func (t *Transformer) TransformClass(c *classfile.Class) Stats {
	if !t.Eligible(c.Name()) {
		return Stats{}
	}
	return t.engine.TransformClass(c)
}

// Transform rewrites a class file. The returned bytes are always usable:
// on error, or when nothing changed, they are the input.
func (t *Transformer) Transform(data []byte) ([]byte, Stats, error) {
	c, err := classfile.ParseClass(data)
	if err != nil {
		return data, Stats{}, errors.ParseFailed("class", err)
	}
	st := t.TransformClass(c)
	if !st.Changed() {
		return data, st, nil
	}
	out, err := c.Encode()
	if err != nil {
		Logger().Warn("encode failed, keeping original", zap.String("class", c.Name()), zap.Error(err))
		return data, Stats{}, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Class(c.Name()).Cause(err).Detail("encode class").Build()
	}
	return out, st, nil
}

// TransformClass rewrites c in place with a one-off Transformer. An
// invalid configuration leaves c unchanged.
func TransformClass(c *classfile.Class, cfg Config) Stats {
	t, err := New(cfg)
	if err != nil {
		Logger().Warn("invalid configuration", zap.Error(err))
		return Stats{}
	}
	return t.TransformClass(c)
}

// Transform rewrites one class file with a one-off Transformer.
func Transform(data []byte, cfg Config) ([]byte, Stats, error) {
	t, err := New(cfg)
	if err != nil {
		return data, Stats{}, err
	}
	return t.Transform(data)
}
