package classfile

import (
	"bytes"
	"errors"
	"testing"
)

func buildSample(t *testing.T) *Class {
	t.Helper()
	c, err := NewClass(52, AccPublic|AccSuper, "com/app/Sample", "java/lang/Object")
	if err != nil {
		t.Fatal(err)
	}
	f, err := c.AddField(AccPublic|AccStatic|AccFinal, "KEY", "Ljava/lang/String;")
	if err != nil {
		t.Fatal(err)
	}
	s, _ := c.Pool.AddString("api-key")
	if err := f.SetConstantValue(c.Pool, s); err != nil {
		t.Fatal(err)
	}

	hello, _ := c.Pool.AddString("hello")
	code, err := NewCode(1, 0).Assemble(c.Pool, []Instruction{
		Synth(OpLdc, ConstImm{Index: hello}),
		Synth(OpAreturn, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddMethod(AccPublic|AccStatic, "greet", "()Ljava/lang/String;", code); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddMethod(AccPublic|AccAbstract, "run", "()V", nil); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestClassRoundTrip(t *testing.T) {
	c := buildSample(t)
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	data, err := c.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	parsed, err := ParseClassValidate(data)
	if err != nil {
		t.Fatalf("ParseClassValidate: %v", err)
	}
	if parsed.Name() != "com/app/Sample" || parsed.SuperName() != "java/lang/Object" {
		t.Errorf("names = %q extends %q", parsed.Name(), parsed.SuperName())
	}
	if parsed.Major != 52 || len(parsed.Fields) != 1 || len(parsed.Methods) != 2 {
		t.Fatalf("parsed shape: major=%d fields=%d methods=%d", parsed.Major, len(parsed.Fields), len(parsed.Methods))
	}
	idx, ok := parsed.Fields[0].ConstantValue(parsed.Pool)
	if !ok {
		t.Fatal("ConstantValue lost")
	}
	if v, _ := parsed.Pool.StringValue(idx); v != "api-key" {
		t.Errorf("ConstantValue = %q", v)
	}
	m := parsed.FindMethod("greet", "()Ljava/lang/String;")
	if m == nil || m.Code == nil {
		t.Fatal("greet lost its code")
	}
	if m.Code.Modified() {
		t.Error("freshly parsed code reports Modified")
	}
	if parsed.FindMethod("run", "()V").Code != nil {
		t.Error("abstract method gained code")
	}

	again, err := parsed.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(again, data) {
		t.Error("unmodified class did not re-encode byte-identically")
	}
}

func TestParseClassErrors(t *testing.T) {
	data, err := buildSample(t).Encode()
	if err != nil {
		t.Fatal(err)
	}

	t.Run("magic", func(t *testing.T) {
		bad := append([]byte{0xCA, 0xFE, 0xD0, 0x0D}, data[4:]...)
		if _, err := ParseClass(bad); !errors.Is(err, ErrInvalidMagic) {
			t.Errorf("error = %v, want ErrInvalidMagic", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		for _, n := range []int{3, 9, len(data) / 2, len(data) - 1} {
			if _, err := ParseClass(data[:n]); err == nil {
				t.Errorf("ParseClass of %d/%d bytes succeeded", n, len(data))
			}
		}
	})

	t.Run("trailing", func(t *testing.T) {
		if _, err := ParseClass(append(append([]byte(nil), data...), 0)); !errors.Is(err, ErrTrailingData) {
			t.Errorf("error = %v, want ErrTrailingData", err)
		}
	})
}

func TestValidateRejectsBadReferences(t *testing.T) {
	c := buildSample(t)
	c.This = c.Fields[0].Name
	if err := c.Validate(); !errors.Is(err, ErrBadIndex) {
		t.Errorf("Validate = %v, want ErrBadIndex", err)
	}
}

func TestClearConstantValue(t *testing.T) {
	c := buildSample(t)
	f := c.Fields[0]
	f.ClearConstantValue(c.Pool)
	if _, ok := f.ConstantValue(c.Pool); ok {
		t.Error("ConstantValue still present")
	}
}

func TestParseMethodDescriptor(t *testing.T) {
	tests := []struct {
		desc    string
		args    int
		ret     int
		wantErr bool
	}{
		{"()V", 0, 0, false},
		{"([J)V", 1, 0, false},
		{"(IJD[[Ljava/lang/String;)Ljava/lang/String;", 6, 1, false},
		{"(ZBCSF)J", 5, 2, false},
		{"(L;)V", 0, 0, true},
		{"(I", 0, 0, true},
		{"()", 0, 0, true},
		{"I", 0, 0, true},
		{"()VV", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			md, err := ParseMethodDescriptor(tt.desc)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseMethodDescriptor(%q) succeeded", tt.desc)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if md.ArgSlots() != tt.args || md.ReturnSlots() != tt.ret {
				t.Errorf("slots = %d/%d, want %d/%d", md.ArgSlots(), md.ReturnSlots(), tt.args, tt.ret)
			}
		})
	}
}
