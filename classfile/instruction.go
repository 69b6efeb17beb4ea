package classfile

import (
	"errors"
	"fmt"

	"github.com/wippyai/muddy/classfile/internal/binary"
)

// ErrTruncatedCode is returned when bytecode ends inside an instruction.
var ErrTruncatedCode = errors.New("truncated bytecode")

// ErrInvalidOpcode is returned for an undefined or misplaced opcode.
var ErrInvalidOpcode = errors.New("invalid opcode")

// Instruction is one decoded JVM instruction.
//
// Offset is the byte offset of the instruction in the bytecode it was
// decoded from, or -1 for synthesized instructions. Branch targets and
// every other code position (exception ranges, line numbers, local
// variable ranges, stack map frames) are labels expressed as such
// offsets, which Assemble maps onto the new layout.
type Instruction struct {
	Imm    any
	Offset int
	Opcode byte
}

// PushImm holds the operand of bipush and sipush.
type PushImm struct {
	Value int16
}

// ConstImm holds the pool index of ldc, ldc_w and ldc2_w. Assemble picks
// ldc or ldc_w from the index width.
type ConstImm struct {
	Index uint16
}

// LocalImm holds the local variable index of loads, stores and ret.
type LocalImm struct {
	Index uint16
	Wide  bool
}

// IincImm holds the operands of iinc.
type IincImm struct {
	Index uint16
	Delta int16
	Wide  bool
}

// BranchImm holds the target label of a jump.
type BranchImm struct {
	Target int
}

// RefImm holds the pool index of field, method and class instructions.
type RefImm struct {
	Index uint16
}

// InterfaceImm holds the operands of invokeinterface.
type InterfaceImm struct {
	Index uint16
	Count uint8
}

// DynamicImm holds the pool index of invokedynamic.
type DynamicImm struct {
	Index uint16
}

// NewArrayImm holds the element type code of newarray.
type NewArrayImm struct {
	Type byte
}

// MultiArrayImm holds the operands of multianewarray.
type MultiArrayImm struct {
	Index uint16
	Dims  uint8
}

// TableSwitchImm holds the operands of tableswitch.
type TableSwitchImm struct {
	Targets []int
	Default int
	Low     int32
	High    int32
}

// LookupSwitchImm holds the operands of lookupswitch. Keys are sorted.
type LookupSwitchImm struct {
	Keys    []int32
	Targets []int
	Default int
}

// Synth returns a synthesized instruction.
func Synth(op byte, imm any) Instruction {
	return Instruction{Opcode: op, Imm: imm, Offset: -1}
}

// IsBranch reports whether op transfers control to a BranchImm target.
func IsBranch(op byte) bool {
	return (op >= OpIfeq && op <= OpJsr) || op == OpIfnull || op == OpIfnonnull ||
		op == OpGotoW || op == OpJsrW
}

// FallsThrough reports whether execution can continue with the next
// instruction after op.
func FallsThrough(op byte) bool {
	switch op {
	case OpGoto, OpGotoW, OpAthrow, OpRet, OpTableswitch, OpLookupswitch,
		OpIreturn, OpLreturn, OpFreturn, OpDreturn, OpAreturn, OpReturn:
		return false
	}
	return true
}

func isLocalOp(op byte) bool {
	return (op >= OpIload && op <= OpAload) || (op >= OpIstore && op <= OpAstore) || op == OpRet
}

func isRefOp(op byte) bool {
	switch op {
	case OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
		OpInvokevirtual, OpInvokespecial, OpInvokestatic,
		OpNew, OpAnewarray, OpCheckcast, OpInstanceof:
		return true
	}
	return false
}

func switchPad(offset int) int {
	return (4 - (offset+1)%4) % 4
}

// DecodeInstructions decodes JVM bytecode.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := binary.NewReader(code)
	instrs := make([]Instruction, 0, len(code)/2)

	for r.Remaining() > 0 {
		start := r.Position()
		op, _ := r.ReadU1()
		in := Instruction{Opcode: op, Offset: start}
		if err := decodeOperands(r, &in, start); err != nil {
			if errors.Is(err, binary.ErrShortRead) {
				err = ErrTruncatedCode
			}
			return nil, fmt.Errorf("%s at %d: %w", OpcodeName(op), start, err)
		}
		instrs = append(instrs, in)
	}
	return instrs, nil
}

func decodeOperands(r *binary.Reader, in *Instruction, start int) error {
	op := in.Opcode
	switch {
	case op == OpBipush:
		v, err := r.ReadU1()
		if err != nil {
			return err
		}
		in.Imm = PushImm{Value: int16(int8(v))}
	case op == OpSipush:
		v, err := r.ReadU2()
		if err != nil {
			return err
		}
		in.Imm = PushImm{Value: int16(v)}
	case op == OpLdc:
		v, err := r.ReadU1()
		if err != nil {
			return err
		}
		in.Imm = ConstImm{Index: uint16(v)}
	case op == OpLdcW || op == OpLdc2W:
		v, err := r.ReadU2()
		if err != nil {
			return err
		}
		in.Imm = ConstImm{Index: v}
	case isLocalOp(op):
		v, err := r.ReadU1()
		if err != nil {
			return err
		}
		in.Imm = LocalImm{Index: uint16(v)}
	case op == OpIinc:
		idx, err := r.ReadU1()
		if err != nil {
			return err
		}
		d, err := r.ReadU1()
		if err != nil {
			return err
		}
		in.Imm = IincImm{Index: uint16(idx), Delta: int16(int8(d))}
	case op == OpGotoW || op == OpJsrW:
		v, err := r.ReadU4()
		if err != nil {
			return err
		}
		in.Imm = BranchImm{Target: start + int(int32(v))}
	case IsBranch(op):
		v, err := r.ReadU2()
		if err != nil {
			return err
		}
		in.Imm = BranchImm{Target: start + int(int16(v))}
	case op == OpTableswitch:
		return decodeTableSwitch(r, in, start)
	case op == OpLookupswitch:
		return decodeLookupSwitch(r, in, start)
	case isRefOp(op):
		v, err := r.ReadU2()
		if err != nil {
			return err
		}
		in.Imm = RefImm{Index: v}
	case op == OpInvokeinterface:
		idx, err := r.ReadU2()
		if err != nil {
			return err
		}
		count, err := r.ReadU1()
		if err != nil {
			return err
		}
		if _, err := r.ReadU1(); err != nil {
			return err
		}
		in.Imm = InterfaceImm{Index: idx, Count: count}
	case op == OpInvokedynamic:
		idx, err := r.ReadU2()
		if err != nil {
			return err
		}
		if _, err := r.ReadU2(); err != nil {
			return err
		}
		in.Imm = DynamicImm{Index: idx}
	case op == OpNewarray:
		v, err := r.ReadU1()
		if err != nil {
			return err
		}
		in.Imm = NewArrayImm{Type: v}
	case op == OpMultianewarray:
		idx, err := r.ReadU2()
		if err != nil {
			return err
		}
		dims, err := r.ReadU1()
		if err != nil {
			return err
		}
		in.Imm = MultiArrayImm{Index: idx, Dims: dims}
	case op == OpWide:
		return decodeWide(r, in)
	case !IsValidOpcode(op):
		return ErrInvalidOpcode
	}
	return nil
}

func decodeWide(r *binary.Reader, in *Instruction) error {
	op, err := r.ReadU1()
	if err != nil {
		return err
	}
	idx, err := r.ReadU2()
	if err != nil {
		return err
	}
	switch {
	case op == OpIinc:
		d, err := r.ReadU2()
		if err != nil {
			return err
		}
		in.Imm = IincImm{Index: idx, Delta: int16(d), Wide: true}
	case isLocalOp(op):
		in.Imm = LocalImm{Index: idx, Wide: true}
	default:
		return ErrInvalidOpcode
	}
	in.Opcode = op
	return nil
}

func skipPad(r *binary.Reader, start int) error {
	for i := 0; i < switchPad(start); i++ {
		if _, err := r.ReadU1(); err != nil {
			return err
		}
	}
	return nil
}

func decodeTableSwitch(r *binary.Reader, in *Instruction, start int) error {
	if err := skipPad(r, start); err != nil {
		return err
	}
	var vals [3]int32
	for i := range vals {
		v, err := r.ReadU4()
		if err != nil {
			return err
		}
		vals[i] = int32(v)
	}
	imm := TableSwitchImm{Default: start + int(vals[0]), Low: vals[1], High: vals[2]}
	n := int64(imm.High) - int64(imm.Low) + 1
	if n < 0 || n*4 > int64(r.Remaining()) {
		return fmt.Errorf("tableswitch range %d..%d: %w", imm.Low, imm.High, ErrTruncatedCode)
	}
	imm.Targets = make([]int, n)
	for i := range imm.Targets {
		v, err := r.ReadU4()
		if err != nil {
			return err
		}
		imm.Targets[i] = start + int(int32(v))
	}
	in.Imm = imm
	return nil
}

func decodeLookupSwitch(r *binary.Reader, in *Instruction, start int) error {
	if err := skipPad(r, start); err != nil {
		return err
	}
	def, err := r.ReadU4()
	if err != nil {
		return err
	}
	n, err := r.ReadU4()
	if err != nil {
		return err
	}
	if int64(int32(n)) < 0 || int64(n)*8 > int64(r.Remaining()) {
		return fmt.Errorf("lookupswitch with %d pairs: %w", int32(n), ErrTruncatedCode)
	}
	imm := LookupSwitchImm{
		Default: start + int(int32(def)),
		Keys:    make([]int32, n),
		Targets: make([]int, n),
	}
	for i := range imm.Keys {
		k, err := r.ReadU4()
		if err != nil {
			return err
		}
		t, err := r.ReadU4()
		if err != nil {
			return err
		}
		imm.Keys[i] = int32(k)
		imm.Targets[i] = start + int(int32(t))
	}
	in.Imm = imm
	return nil
}

// Size returns the encoded length of the instruction when placed at offset.
func (in *Instruction) Size(offset int) int {
	op := in.Opcode
	switch imm := in.Imm.(type) {
	case nil:
		return 1
	case PushImm:
		if op == OpBipush {
			return 2
		}
		return 3
	case ConstImm:
		if op == OpLdc && imm.Index <= 0xFF {
			return 2
		}
		return 3
	case LocalImm:
		if imm.Wide || imm.Index > 0xFF {
			return 4
		}
		return 2
	case IincImm:
		if iincWide(imm) {
			return 6
		}
		return 3
	case BranchImm:
		if op == OpGotoW || op == OpJsrW {
			return 5
		}
		return 3
	case RefImm:
		return 3
	case InterfaceImm, DynamicImm:
		return 5
	case NewArrayImm:
		return 2
	case MultiArrayImm:
		return 4
	case TableSwitchImm:
		return 1 + switchPad(offset) + 12 + 4*len(imm.Targets)
	case LookupSwitchImm:
		return 1 + switchPad(offset) + 8 + 8*len(imm.Keys)
	}
	return 1
}

func iincWide(imm IincImm) bool {
	return imm.Wide || imm.Index > 0xFF || imm.Delta < -128 || imm.Delta > 127
}

func (in Instruction) String() string {
	name := OpcodeName(in.Opcode)
	switch imm := in.Imm.(type) {
	case nil:
		return name
	case PushImm:
		return fmt.Sprintf("%s %d", name, imm.Value)
	case ConstImm:
		return fmt.Sprintf("%s #%d", name, imm.Index)
	case LocalImm:
		return fmt.Sprintf("%s %d", name, imm.Index)
	case IincImm:
		return fmt.Sprintf("%s %d %d", name, imm.Index, imm.Delta)
	case BranchImm:
		return fmt.Sprintf("%s @%d", name, imm.Target)
	case RefImm:
		return fmt.Sprintf("%s #%d", name, imm.Index)
	case InterfaceImm:
		return fmt.Sprintf("%s #%d %d", name, imm.Index, imm.Count)
	case DynamicImm:
		return fmt.Sprintf("%s #%d", name, imm.Index)
	case NewArrayImm:
		return fmt.Sprintf("%s %d", name, imm.Type)
	case MultiArrayImm:
		return fmt.Sprintf("%s #%d %d", name, imm.Index, imm.Dims)
	}
	return name
}
