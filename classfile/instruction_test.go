package classfile

import (
	"bytes"
	"errors"
	"testing"
)

// switchLoop is a small method body:
//
//	0: iload_0
//	1: tableswitch 0..1 -> 24, 26, default 28
//	24: iconst_1; ireturn
//	26: iconst_2; ireturn
//	28: wide iinc 0 1000
//	34: goto 24
var switchLoop = []byte{
	0x1a,
	0xaa, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x1b,
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x01,
	0x00, 0x00, 0x00, 0x17,
	0x00, 0x00, 0x00, 0x19,
	0x04, 0xac, 0x05, 0xac,
	0xc4, 0x84, 0x00, 0x00, 0x03, 0xe8,
	0xa7, 0xff, 0xf6,
}

func TestDecodeInstructions(t *testing.T) {
	insns, err := DecodeInstructions(switchLoop)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	wantOps := []byte{OpIload0, OpTableswitch, OpIconst1, OpIreturn, OpIconst2, OpIreturn, OpIinc, OpGoto}
	wantOffsets := []int{0, 1, 24, 25, 26, 27, 28, 34}
	if len(insns) != len(wantOps) {
		t.Fatalf("got %d instructions, want %d", len(insns), len(wantOps))
	}
	for i, in := range insns {
		if in.Opcode != wantOps[i] || in.Offset != wantOffsets[i] {
			t.Errorf("insn %d = %s@%d, want %s@%d", i, OpcodeName(in.Opcode), in.Offset,
				OpcodeName(wantOps[i]), wantOffsets[i])
		}
	}

	sw, ok := insns[1].Imm.(TableSwitchImm)
	if !ok {
		t.Fatalf("tableswitch imm = %T", insns[1].Imm)
	}
	if sw.Default != 28 || sw.Low != 0 || sw.High != 1 || len(sw.Targets) != 2 ||
		sw.Targets[0] != 24 || sw.Targets[1] != 26 {
		t.Errorf("tableswitch = %+v", sw)
	}
	if iinc := insns[6].Imm.(IincImm); iinc != (IincImm{Index: 0, Delta: 1000, Wide: true}) {
		t.Errorf("iinc = %+v", iinc)
	}
	if br := insns[7].Imm.(BranchImm); br.Target != 24 {
		t.Errorf("goto target = %d, want 24", br.Target)
	}
}

func TestDecodeInstructionsErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want error
	}{
		{"truncated sipush", []byte{OpSipush, 0x01}, ErrTruncatedCode},
		{"truncated goto_w", []byte{OpGotoW, 0, 0}, ErrTruncatedCode},
		{"undefined opcode", []byte{0xca}, ErrInvalidOpcode},
		{"wide of iadd", []byte{OpWide, OpIadd, 0, 0}, ErrInvalidOpcode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeInstructions(tt.code); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAssembleIdentity(t *testing.T) {
	code := &Code{Bytecode: switchLoop}
	insns, err := DecodeInstructions(switchLoop)
	if err != nil {
		t.Fatal(err)
	}
	out, err := code.Assemble(NewConstantPool(), insns)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !bytes.Equal(out.Bytecode, switchLoop) {
		t.Errorf("reassembled = % x\nwant          % x", out.Bytecode, switchLoop)
	}
}

func TestAssembleRemapsBranchesAndSwitchPadding(t *testing.T) {
	code := &Code{Bytecode: switchLoop}
	insns, _ := DecodeInstructions(switchLoop)

	shifted := make([]Instruction, 0, len(insns)+70)
	for i := 0; i < 70; i++ {
		shifted = append(shifted, Synth(OpNop, nil))
	}
	shifted = append(shifted, insns...)

	out, err := code.Assemble(NewConstantPool(), shifted)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	got, err := DecodeInstructions(out.Bytecode)
	if err != nil {
		t.Fatalf("decode assembled: %v", err)
	}
	got = got[70:]
	// tableswitch at 71 needs no padding
	wantOffsets := []int{70, 71, 92, 93, 94, 95, 96, 102}
	for i, in := range got {
		if in.Offset != wantOffsets[i] {
			t.Errorf("insn %d at %d, want %d", i, in.Offset, wantOffsets[i])
		}
	}
	sw := got[1].Imm.(TableSwitchImm)
	if sw.Default != 96 || sw.Targets[0] != 92 || sw.Targets[1] != 94 {
		t.Errorf("tableswitch = %+v", sw)
	}
	if br := got[7].Imm.(BranchImm); br.Target != 92 {
		t.Errorf("goto target = %d, want 92", br.Target)
	}
}

func TestAssembleLimits(t *testing.T) {
	// 0: goto 3; 3: return
	body := []byte{OpGoto, 0x00, 0x03, OpReturn}
	code := &Code{Bytecode: body}
	insns, err := DecodeInstructions(body)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("branch overflow", func(t *testing.T) {
		out := []Instruction{insns[0]}
		for i := 0; i < 40000; i++ {
			out = append(out, Synth(OpNop, nil))
		}
		out = append(out, insns[1])
		if _, err := code.Assemble(NewConstantPool(), out); !errors.Is(err, ErrBranchOverflow) {
			t.Errorf("error = %v, want ErrBranchOverflow", err)
		}
	})

	t.Run("code too large", func(t *testing.T) {
		out := []Instruction{insns[0]}
		for i := 0; i < MaxCodeLength; i++ {
			out = append(out, Synth(OpNop, nil))
		}
		out = append(out, insns[1])
		if _, err := code.Assemble(NewConstantPool(), out); !errors.Is(err, ErrCodeTooLarge) {
			t.Errorf("error = %v, want ErrCodeTooLarge", err)
		}
	})

	t.Run("unknown label", func(t *testing.T) {
		out := []Instruction{Synth(OpGoto, BranchImm{Target: 99}), insns[1]}
		if _, err := code.Assemble(NewConstantPool(), out); !errors.Is(err, ErrUnknownLabel) {
			t.Errorf("error = %v, want ErrUnknownLabel", err)
		}
	})
}

func TestAssembleWidensOperands(t *testing.T) {
	code := NewCode(1, 300)
	insns := []Instruction{
		Synth(OpLdc, ConstImm{Index: 300}),
		Synth(OpAstore, LocalImm{Index: 299}),
		Synth(OpIinc, IincImm{Index: 1, Delta: 200}),
		Synth(OpReturn, nil),
	}
	out, err := code.Assemble(NewConstantPool(), insns)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		OpLdcW, 0x01, 0x2c,
		OpWide, OpAstore, 0x01, 0x2b,
		OpWide, OpIinc, 0x00, 0x01, 0x00, 0xc8,
		OpReturn,
	}
	if !bytes.Equal(out.Bytecode, want) {
		t.Errorf("got  % x\nwant % x", out.Bytecode, want)
	}
}
