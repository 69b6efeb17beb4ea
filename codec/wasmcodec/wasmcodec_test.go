package wasmcodec

import (
	"context"
	"errors"
	"sync"
	"testing"

	muddyerrors "github.com/wippyai/muddy/errors"
)

func section(id byte, content ...byte) []byte {
	return append([]byte{id, byte(len(content))}, content...)
}

func body(code ...byte) []byte {
	return append([]byte{byte(len(code))}, code...)
}

func name(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// byteTokens builds a guest whose encode returns one token per input byte
// holding that byte, written at address 4096. alloc always returns 1024.
func byteTokens(allocName string) []byte {
	return guest(allocName, false)
}

// guest builds the byteTokens module. withFree adds a free export that
// counts its calls in the i32 at address 0.
func guest(allocName string, withFree bool) []byte {
	types := []byte{
		0x60, 0x01, 0x7f, 0x01, 0x7f,
		0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7e,
	}
	funcs := []byte{0x00, 0x01}
	exports := concat(
		name("memory"), []byte{0x02, 0x00},
		name(allocName), []byte{0x00, 0x00},
		name("encode"), []byte{0x00, 0x01},
	)
	alloc := body(0x00, 0x41, 0x80, 0x08, 0x0b)
	encode := body(
		0x01, 0x01, 0x7f, // one i32 local
		0x02, 0x40,
		0x03, 0x40,
		0x20, 0x02, 0x20, 0x01, 0x4f, 0x0d, 0x01, // i >= len: break
		0x20, 0x02, 0x41, 0x03, 0x74, 0x41, 0x80, 0x20, 0x6a, // 4096 + i*8
		0x20, 0x00, 0x20, 0x02, 0x6a, 0x31, 0x00, 0x00, // i64.load8_u ptr+i
		0x37, 0x03, 0x00,
		0x20, 0x02, 0x41, 0x01, 0x6a, 0x21, 0x02,
		0x0c, 0x00,
		0x0b,
		0x0b,
		0x42, 0x80, 0x20, 0x42, 0x20, 0x86, 0x20, 0x01, 0xad, 0x84, // 4096<<32 | len
		0x0b,
	)
	bodies := concat(alloc, encode)
	count := byte(2)
	if withFree {
		types = append(types, 0x60, 0x02, 0x7f, 0x7f, 0x00)
		funcs = append(funcs, 0x02)
		exports = concat(exports, name("free"), []byte{0x00, 0x02})
		bodies = concat(bodies, body(
			0x00,
			0x41, 0x00, // address 0
			0x41, 0x00, 0x28, 0x02, 0x00, // load counter
			0x41, 0x01, 0x6a, // +1
			0x36, 0x02, 0x00, // store
			0x0b,
		))
		count = 3
	}
	nexports := count + 1
	return concat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		section(1, concat([]byte{count}, types)...),
		section(3, concat([]byte{count}, funcs)...),
		section(5, 0x01, 0x00, 0x01),
		section(7, concat([]byte{nexports}, exports)...),
		section(10, concat([]byte{count}, bodies)...),
	)
}

func TestEncode(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, byteTokens(ExportAlloc), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(ctx)

	tests := []struct {
		in   string
		want []int64
	}{
		{"abc", []int64{'a', 'b', 'c'}},
		{"", []int64{}},
		{"é", []int64{0xc3, 0xa9}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := c.Encode(tt.in)
			if err != nil {
				t.Fatalf("Encode(%q): %v", tt.in, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Encode(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEncodeConcurrent(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, byteTokens(ExportAlloc), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(ctx)

	var wg sync.WaitGroup
	for _, s := range []string{"alpha", "beta", "gamma", "delta"} {
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				got, err := c.Encode(s)
				if err != nil || len(got) != len(s) || got[0] != int64(s[0]) {
					t.Errorf("Encode(%q) = %v, %v", s, got, err)
					return
				}
			}
		}(s)
	}
	wg.Wait()
}

func TestCustomExportNames(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, byteTokens("malloc"), &Config{AllocFunc: "malloc"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(ctx)
	if got, err := c.Encode("z"); err != nil || len(got) != 1 || got[0] != 'z' {
		t.Errorf("Encode = %v, %v", got, err)
	}
}

func TestNewErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing export", func(t *testing.T) {
		_, err := New(ctx, byteTokens("malloc"), nil)
		if !errors.Is(err, &muddyerrors.Error{Phase: muddyerrors.PhaseCodec, Kind: muddyerrors.KindNotFound}) {
			t.Errorf("error = %v, want codec not_found", err)
		}
	})

	t.Run("not wasm", func(t *testing.T) {
		_, err := New(ctx, []byte("definitely not wasm"), nil)
		if !errors.Is(err, &muddyerrors.Error{Phase: muddyerrors.PhaseCodec, Kind: muddyerrors.KindInvalidData}) {
			t.Errorf("error = %v, want codec invalid_data", err)
		}
	})
}

func TestFreeExport(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, guest(ExportAlloc, true), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(ctx)
	if c.free == nil {
		t.Fatal("free export not found")
	}

	for _, s := range []string{"abc", "de"} {
		if _, err := c.Encode(s); err != nil {
			t.Fatalf("Encode(%q): %v", s, err)
		}
	}
	// input and token buffer for each literal
	if n, ok := c.mem.ReadUint32Le(0); !ok || n != 4 {
		t.Errorf("free calls = %d, want 4", n)
	}
}

func TestWithoutFreeExport(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, byteTokens(ExportAlloc), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(ctx)
	if c.free != nil {
		t.Error("free bound on a module that does not export it")
	}
}
