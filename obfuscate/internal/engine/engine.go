package engine

import (
	"github.com/wippyai/muddy"
	"github.com/wippyai/muddy/classfile"
	"github.com/wippyai/muddy/obfuscate/internal/codegen"
	"go.uber.org/zap"
)

// Config configures the engine.
type Config struct {
	Codec   muddy.Codec
	Decoder muddy.DecoderRef
	// KeepPlaintext leaves the Utf8 entries of rewritten literals in the
	// constant pool. By default they are blanked when nothing else in the
	// class references them.
	KeepPlaintext bool
}

// Stats counts what a transformation changed.
type Stats struct {
	Methods  int // methods reassembled
	Literals int // ldc instructions rewritten
	Skipped  int // literals left as they were
	Fields   int // constants moved into <clinit>
	Restored int // methods kept unchanged after an assembly failure
	Scrubbed int // Utf8 entries blanked
	// ClinitCreated is set when a new static initializer was added.
	ClinitCreated bool
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Methods += o.Methods
	s.Literals += o.Literals
	s.Skipped += o.Skipped
	s.Fields += o.Fields
	s.Restored += o.Restored
	s.Scrubbed += o.Scrubbed
	s.ClinitCreated = s.ClinitCreated || o.ClinitCreated
}

// Changed reports whether the class was modified.
func (s Stats) Changed() bool {
	return s.Literals > 0 || s.Fields > 0 || s.Scrubbed > 0
}

// Engine transforms classes. It holds no per-class state, so one Engine
// may transform independent classes concurrently when its codec allows.
type Engine struct {
	codec   muddy.Codec
	decoder muddy.DecoderRef
	scrub   bool
}

// New creates an engine.
func New(cfg Config) *Engine {
	return &Engine{
		codec:   cfg.Codec,
		decoder: cfg.Decoder.WithDefaults(),
		scrub:   !cfg.KeepPlaintext,
	}
}

// TransformClass rewrites c in place and reports what changed.
func (e *Engine) TransformClass(c *classfile.Class) Stats {
	var st Stats
	rewritten := make(map[uint16]bool)
	for _, m := range c.Methods {
		e.rewriteMethod(c, m, rewritten, &st)
	}
	e.injectFields(c, rewritten, &st)
	if e.scrub && len(rewritten) > 0 {
		st.Scrubbed = scrub(c, rewritten)
	}
	Logger().Debug("class transformed",
		zap.String("class", c.Name()),
		zap.Int("literals", st.Literals),
		zap.Int("fields", st.Fields),
		zap.Int("skipped", st.Skipped))
	return st
}

// encode returns the tokens for s, or false when the literal must be
// left alone.
func (e *Engine) encode(s string) ([]int64, bool) {
	tokens, err := e.codec.Encode(s)
	if err != nil || !codegen.Valid(tokens) {
		return nil, false
	}
	return tokens, true
}

// fits reports whether the pool can take a block of n tokens plus extra
// slots.
func fits(pool *classfile.ConstantPool, n, extra int) bool {
	return pool.Free() >= codegen.PoolCost(n)+extra
}

// maxStack picks the max_stack of reassembled code: the computed depth
// when the analysis succeeds, bound otherwise. It never lowers old.
func maxStack(code *classfile.Code, pool *classfile.ConstantPool, old, bound int) uint16 {
	depth, err := classfile.ComputeMaxStack(code, pool)
	if err != nil {
		Logger().Debug("stack analysis failed, using bound", zap.Error(err), zap.Int("bound", bound))
		depth = bound
	}
	depth = max(depth, old)
	if depth > 0xFFFF {
		depth = 0xFFFF
	}
	return uint16(depth)
}
