// Package wasmcodec runs a literal encoder compiled to WebAssembly.
//
// The module must export its linear memory as "memory" and two functions:
//
//	alloc(size i32) -> ptr i32
//	encode(ptr i32, len i32) -> i64
//
// encode reads len bytes of UTF-8 at ptr and returns outPtr<<32 | count,
// where outPtr addresses count little-endian 64-bit tokens. A negative
// result rejects the literal.
//
// When the module also exports
//
//	free(ptr i32, len i32)
//
// it is called for the input buffer and the token buffer once each literal
// has been read back. Without it the guest must reclaim memory itself, for
// example by resetting a bump allocator on every alloc.
package wasmcodec

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/muddy/errors"
)

// Default export names.
const (
	ExportMemory = "memory"
	ExportAlloc  = "alloc"
	ExportEncode = "encode"
	ExportFree   = "free"
)

// Config holds optional settings for New.
type Config struct {
	// AllocFunc, EncodeFunc and FreeFunc override the default export
	// names. The free export is optional.
	AllocFunc  string
	EncodeFunc string
	FreeFunc   string
	// MemoryLimitPages caps guest memory in 64KiB pages; 0 keeps the
	// wazero default.
	MemoryLimitPages uint32
}

// Codec is a muddy.Codec backed by a WebAssembly module. Calls are
// serialized because the guest has a single linear memory.
type Codec struct {
	runtime wazero.Runtime
	mem     api.Memory
	alloc   api.Function
	encode  api.Function
	free    api.Function // nil when not exported
	mu      sync.Mutex
}

// New compiles and instantiates wasmBytes.
func New(ctx context.Context, wasmBytes []byte, cfg *Config) (*Codec, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.AllocFunc == "" {
		c.AllocFunc = ExportAlloc
	}
	if c.EncodeFunc == "" {
		c.EncodeFunc = ExportEncode
	}
	if c.FreeFunc == "" {
		c.FreeFunc = ExportFree
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseCodec, errors.KindInvalidData, "compile codec module", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseCodec, errors.KindInvalidData, "instantiate codec module", err)
	}

	codec := &Codec{
		runtime: rt,
		mem:     mod.ExportedMemory(ExportMemory),
		alloc:   mod.ExportedFunction(c.AllocFunc),
		encode:  mod.ExportedFunction(c.EncodeFunc),
		free:    mod.ExportedFunction(c.FreeFunc),
	}
	switch {
	case codec.mem == nil:
		err = errors.NotFound(errors.PhaseCodec, "export", ExportMemory)
	case codec.alloc == nil:
		err = errors.NotFound(errors.PhaseCodec, "export", c.AllocFunc)
	case codec.encode == nil:
		err = errors.NotFound(errors.PhaseCodec, "export", c.EncodeFunc)
	}
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return codec, nil
}

// Encode implements muddy.Codec.
func (c *Codec) Encode(s string) ([]int64, error) {
	return c.EncodeContext(context.Background(), s)
}

// EncodeContext encodes s, honoring ctx cancellation inside the guest.
func (c *Codec) EncodeContext(ctx context.Context, s string) (tokens []int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.alloc.Call(ctx, uint64(len(s)))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCodec, errors.KindInvalidData, "call alloc", err)
	}
	ptr := uint32(res[0])
	defer func() {
		if ferr := c.release(ctx, ptr, uint32(len(s))); ferr != nil && err == nil {
			tokens, err = nil, ferr
		}
	}()
	if !c.mem.Write(ptr, []byte(s)) {
		return nil, errors.OutOfBounds(errors.PhaseCodec, []string{"memory"}, int(ptr), int(c.mem.Size()))
	}

	res, err = c.encode.Call(ctx, uint64(ptr), uint64(len(s)))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCodec, errors.KindInvalidData, "call encode", err)
	}
	packed := int64(res[0])
	if packed < 0 {
		return nil, errors.InvalidInput(errors.PhaseCodec, fmt.Sprintf("codec module rejected literal (%d)", packed))
	}
	out := uint32(uint64(packed) >> 32)
	count := uint32(packed)
	if uint64(count)*8 > uint64(c.mem.Size()) {
		return nil, errors.Limit(errors.PhaseCodec, "token count", int(count), int(c.mem.Size()/8))
	}
	buf, ok := c.mem.Read(out, count*8)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseCodec, []string{"memory"}, int(out), int(c.mem.Size()))
	}
	tokens = make([]int64, count)
	for i := range tokens {
		tokens[i] = int64(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	if err := c.release(ctx, out, count*8); err != nil {
		return nil, err
	}
	return tokens, nil
}

// release hands a buffer back to the guest's free export, if any.
func (c *Codec) release(ctx context.Context, ptr, size uint32) error {
	if c.free == nil {
		return nil
	}
	if _, err := c.free.Call(ctx, uint64(ptr), uint64(size)); err != nil {
		return errors.Wrap(errors.PhaseCodec, errors.KindInvalidData, "call free", err)
	}
	return nil
}

// Close releases the guest module and its runtime.
func (c *Codec) Close(ctx context.Context) error {
	return c.runtime.Close(ctx)
}
