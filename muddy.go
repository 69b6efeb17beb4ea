package muddy

// MaxTokens is the largest token count a literal may encode to and still
// be rewritten. Counts and indices are pushed with sipush at most.
const MaxTokens = 32767

// Codec turns a string literal into the tokens the run-time decoder
// reconstructs it from. Implementations must be safe for concurrent use
// and deterministic for a given configuration if reproducible output is
// wanted.
type Codec interface {
	Encode(s string) ([]int64, error)
}

// CodecFunc adapts a function to the Codec interface.
type CodecFunc func(s string) ([]int64, error)

// Encode calls f(s).
func (f CodecFunc) Encode(s string) ([]int64, error) {
	return f(s)
}

// DecoderRef names the run-time decoder class injected code calls: a
// constructor taking the token array and a no-argument method returning
// the decoded string.
type DecoderRef struct {
	Class      string // internal name, e.g. com/panda912/muddy/ObfuscatedString
	CtorDesc   string
	Method     string
	MethodDesc string
}

// DefaultDecoder is the decoder shipped with the muddy runtime library.
var DefaultDecoder = DecoderRef{
	Class:      "com/panda912/muddy/ObfuscatedString",
	CtorDesc:   "([J)V",
	Method:     "toString",
	MethodDesc: "()Ljava/lang/String;",
}

// WithDefaults fills empty fields from DefaultDecoder.
func (d DecoderRef) WithDefaults() DecoderRef {
	if d.Class == "" {
		d.Class = DefaultDecoder.Class
	}
	if d.CtorDesc == "" {
		d.CtorDesc = DefaultDecoder.CtorDesc
	}
	if d.Method == "" {
		d.Method = DefaultDecoder.Method
	}
	if d.MethodDesc == "" {
		d.MethodDesc = DefaultDecoder.MethodDesc
	}
	return d
}
