// Package codec implements the token encoding understood by the
// ObfuscatedString class of the muddy runtime library.
//
// A literal is encoded as UTF-8, split into 8-byte little-endian words, and
// each word is XORed with the next value of a java.util.Random seeded with
// the key. The key is stored as the first token.
package codec

import (
	"crypto/rand"
	"encoding/binary"
	"unicode/utf8"

	"github.com/zeebo/xxh3"

	"github.com/wippyai/muddy/errors"
)

// MaxBytes is the longest UTF-8 encoding the runtime decodes in one block.
// Longer strings would be corrupted by its multi-block path.
const MaxBytes = 8192

// Obfuscated encodes literals for the ObfuscatedString runtime class.
// It is safe for concurrent use.
type Obfuscated struct {
	seed   uint64
	random bool
}

// Option configures an Obfuscated codec.
type Option func(*Obfuscated)

// WithSeed sets the seed mixed into every derived key.
func WithSeed(seed uint64) Option {
	return func(o *Obfuscated) { o.seed = seed }
}

// WithRandomKeys draws every key from crypto/rand. Output is no longer
// reproducible between runs.
func WithRandomKeys() Option {
	return func(o *Obfuscated) { o.random = true }
}

// New returns a codec. Keys are derived from the literal and the seed
// unless WithRandomKeys is given.
func New(opts ...Option) *Obfuscated {
	o := &Obfuscated{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Encode returns the key followed by one token per 8 bytes of UTF-8. The
// empty string encodes to no tokens.
func (o *Obfuscated) Encode(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	if !utf8.ValidString(s) {
		return nil, errors.InvalidInput(errors.PhaseCodec, "literal is not valid UTF-8")
	}
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return nil, errors.InvalidInput(errors.PhaseCodec, "literal contains NUL")
		}
	}
	if len(s) > MaxBytes {
		return nil, errors.Limit(errors.PhaseCodec, "literal length", len(s), MaxBytes)
	}

	key, err := o.key(s)
	if err != nil {
		return nil, err
	}
	return EncodeWithKey(s, key), nil
}

func (o *Obfuscated) key(s string) (int64, error) {
	var k int64
	if o.random {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, errors.Wrap(errors.PhaseCodec, errors.KindInvalidData, "read random key", err)
		}
		k = int64(binary.BigEndian.Uint64(buf[:]))
	} else {
		k = int64(xxh3.HashStringSeed(s, o.seed))
	}
	if k == 0 {
		k = 1
	}
	return k, nil
}

// EncodeWithKey encodes s with a fixed key. It performs no validation.
func EncodeWithKey(s string, key int64) []int64 {
	tokens := make([]int64, 1+(len(s)+7)/8)
	tokens[0] = key
	prng := newJavaRandom(key)
	var word [8]byte
	for i, j := 0, 1; i < len(s); i, j = i+8, j+1 {
		word = [8]byte{}
		copy(word[:], s[i:])
		tokens[j] = int64(binary.LittleEndian.Uint64(word[:])) ^ prng.nextLong()
	}
	return tokens
}

// Decode reverses Encode the way the runtime class does: trailing zero
// bytes are dropped.
func Decode(tokens []int64) (string, error) {
	if len(tokens) == 0 {
		return "", errors.InvalidInput(errors.PhaseCodec, "no tokens")
	}
	if (len(tokens)-1)*8 > MaxBytes {
		return "", errors.Limit(errors.PhaseCodec, "encoded length", (len(tokens)-1)*8, MaxBytes)
	}
	prng := newJavaRandom(tokens[0])
	buf := make([]byte, 8*(len(tokens)-1))
	for i, t := range tokens[1:] {
		binary.LittleEndian.PutUint64(buf[8*i:], uint64(t^prng.nextLong()))
	}
	n := len(buf)
	for n > 0 && buf[n-1] == 0 {
		n--
	}
	return string(buf[:n]), nil
}
