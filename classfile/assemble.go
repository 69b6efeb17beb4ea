package classfile

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/wippyai/muddy/classfile/internal/binary"
)

// Assembly errors.
var (
	ErrCodeTooLarge   = errors.New("code exceeds 65535 bytes")
	ErrBranchOverflow = errors.New("branch offset exceeds 16 bits")
	ErrUnknownLabel   = errors.New("label does not name an instruction")
)

// NewCode returns an empty code body to assemble a new method into.
func NewCode(maxStack, maxLocals uint16) *Code {
	return &Code{MaxStack: maxStack, MaxLocals: maxLocals}
}

// labelMap maps offsets in the original bytecode to offsets in the
// assembled bytecode.
type labelMap map[int]int

func (l labelMap) resolve(label int) (int, error) {
	if off, ok := l[label]; ok {
		return off, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownLabel, label)
}

// Assemble lays out insns and returns a new Code whose exception table,
// StackMapTable, LineNumberTable and local variable tables are remapped
// from the labels of c. Labels are offsets into c.Bytecode; the label
// len(c.Bytecode) denotes the end of the code unless an instruction
// claims it. Extra frames are merged into the StackMapTable. Code-level
// type annotations are dropped. MaxStack and MaxLocals are copied from c.
func (c *Code) Assemble(pool *ConstantPool, insns []Instruction, extra ...Frame) (*Code, error) {
	labels := make(labelMap, len(insns)+1)
	pos := 0
	for i := range insns {
		in := &insns[i]
		if in.Offset >= 0 {
			if _, dup := labels[in.Offset]; !dup {
				labels[in.Offset] = pos
			}
		}
		pos += in.Size(pos)
	}
	end := len(c.Bytecode)
	if _, ok := labels[end]; !ok {
		labels[end] = pos
	}
	if pos == 0 || pos > MaxCodeLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrCodeTooLarge, pos)
	}

	w := binary.NewWriter()
	for i := range insns {
		if err := encodeInstruction(w, &insns[i], labels); err != nil {
			return nil, fmt.Errorf("%s at %d: %w", OpcodeName(insns[i].Opcode), w.Len(), err)
		}
	}

	out := &Code{
		Bytecode:  w.Bytes(),
		MaxStack:  c.MaxStack,
		MaxLocals: c.MaxLocals,
	}

	for _, h := range c.Handlers {
		var nh Handler
		var err error
		if nh.StartPC, err = labels.resolve(h.StartPC); err != nil {
			return nil, fmt.Errorf("exception table: %w", err)
		}
		if nh.EndPC, err = labels.resolve(h.EndPC); err != nil {
			return nil, fmt.Errorf("exception table: %w", err)
		}
		if nh.HandlerPC, err = labels.resolve(h.HandlerPC); err != nil {
			return nil, fmt.Errorf("exception table: %w", err)
		}
		nh.CatchType = h.CatchType
		out.Handlers = append(out.Handlers, nh)
	}

	sawFrames := false
	for _, a := range c.Attributes {
		name, _ := pool.Utf8(a.Name)
		var data []byte
		var err error
		switch name {
		case AttrStackMapTable:
			sawFrames = true
			data, err = remapFrames(a.Data, labels, extra)
		case AttrLineNumberTable:
			data, err = remapLineNumbers(a.Data, labels)
		case AttrLocalVariableTable, AttrLocalVariableTypeTable:
			data, err = remapLocals(a.Data, labels)
		case AttrRuntimeVisibleTypeAnnotations, AttrRuntimeInvisibleTypeAnnotations:
			continue
		default:
			data = a.Data
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out.Attributes = append(out.Attributes, Attribute{Name: a.Name, Data: data})
	}
	if !sawFrames && len(extra) > 0 {
		data, err := remapFrames(nil, labels, extra)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", AttrStackMapTable, err)
		}
		name, err := pool.AddUtf8(AttrStackMapTable)
		if err != nil {
			return nil, err
		}
		out.Attributes = append(out.Attributes, Attribute{Name: name, Data: data})
	}
	return out, nil
}

func encodeInstruction(w *binary.Writer, in *Instruction, labels labelMap) error {
	pos := w.Len()
	op := in.Opcode
	switch imm := in.Imm.(type) {
	case nil:
		w.U1(op)
	case PushImm:
		w.U1(op)
		if op == OpBipush {
			if imm.Value < math.MinInt8 || imm.Value > math.MaxInt8 {
				return fmt.Errorf("bipush operand %d out of range", imm.Value)
			}
			w.U1(uint8(int8(imm.Value)))
		} else {
			w.U2(uint16(imm.Value))
		}
	case ConstImm:
		switch {
		case op == OpLdc2W:
			w.U1(op)
			w.U2(imm.Index)
		case op == OpLdc && imm.Index <= 0xFF:
			w.U1(op)
			w.U1(uint8(imm.Index))
		default:
			w.U1(OpLdcW)
			w.U2(imm.Index)
		}
	case LocalImm:
		if imm.Wide || imm.Index > 0xFF {
			w.U1(OpWide)
			w.U1(op)
			w.U2(imm.Index)
		} else {
			w.U1(op)
			w.U1(uint8(imm.Index))
		}
	case IincImm:
		if iincWide(imm) {
			w.U1(OpWide)
			w.U1(op)
			w.U2(imm.Index)
			w.U2(uint16(imm.Delta))
		} else {
			w.U1(op)
			w.U1(uint8(imm.Index))
			w.U1(uint8(int8(imm.Delta)))
		}
	case BranchImm:
		target, err := labels.resolve(imm.Target)
		if err != nil {
			return err
		}
		delta := target - pos
		w.U1(op)
		if op == OpGotoW || op == OpJsrW {
			w.U4(uint32(int32(delta)))
			break
		}
		if delta < math.MinInt16 || delta > math.MaxInt16 {
			return fmt.Errorf("%w: %d", ErrBranchOverflow, delta)
		}
		w.U2(uint16(int16(delta)))
	case RefImm:
		w.U1(op)
		w.U2(imm.Index)
	case InterfaceImm:
		w.U1(op)
		w.U2(imm.Index)
		w.U1(imm.Count)
		w.U1(0)
	case DynamicImm:
		w.U1(op)
		w.U2(imm.Index)
		w.U2(0)
	case NewArrayImm:
		w.U1(op)
		w.U1(imm.Type)
	case MultiArrayImm:
		w.U1(op)
		w.U2(imm.Index)
		w.U1(imm.Dims)
	case TableSwitchImm:
		w.U1(op)
		writePad(w, pos)
		if err := writeSwitchTarget(w, labels, imm.Default, pos); err != nil {
			return err
		}
		w.U4(uint32(imm.Low))
		w.U4(uint32(imm.High))
		for _, t := range imm.Targets {
			if err := writeSwitchTarget(w, labels, t, pos); err != nil {
				return err
			}
		}
	case LookupSwitchImm:
		w.U1(op)
		writePad(w, pos)
		if err := writeSwitchTarget(w, labels, imm.Default, pos); err != nil {
			return err
		}
		w.U4(uint32(len(imm.Keys)))
		for i, k := range imm.Keys {
			w.U4(uint32(k))
			if err := writeSwitchTarget(w, labels, imm.Targets[i], pos); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown immediate %T", in.Imm)
	}
	return nil
}

func writePad(w *binary.Writer, pos int) {
	for i := 0; i < switchPad(pos); i++ {
		w.U1(0)
	}
}

func writeSwitchTarget(w *binary.Writer, labels labelMap, label, pos int) error {
	target, err := labels.resolve(label)
	if err != nil {
		return err
	}
	w.U4(uint32(int32(target - pos)))
	return nil
}

func remapFrames(data []byte, labels labelMap, extra []Frame) ([]byte, error) {
	var frames []Frame
	if data != nil {
		var err error
		if frames, err = ParseStackMapTable(data); err != nil {
			return nil, err
		}
	}
	frames = append(frames, extra...)
	out := make([]Frame, len(frames))
	for i, f := range frames {
		off, err := labels.resolve(f.Offset)
		if err != nil {
			return nil, err
		}
		f.Offset = off
		if f.Locals, err = remapTypes(f.Locals, labels); err != nil {
			return nil, err
		}
		if f.Stack, err = remapTypes(f.Stack, labels); err != nil {
			return nil, err
		}
		out[i] = f
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return EncodeStackMapTable(out)
}

func remapTypes(types []VerificationType, labels labelMap) ([]VerificationType, error) {
	if len(types) == 0 {
		return types, nil
	}
	out := make([]VerificationType, len(types))
	for i, v := range types {
		if v.Tag == VTUninitialized {
			off, err := labels.resolve(v.Offset)
			if err != nil {
				return nil, err
			}
			v.Offset = off
		}
		out[i] = v
	}
	return out, nil
}

func remapLineNumbers(data []byte, labels labelMap) ([]byte, error) {
	r := binary.NewReader(data)
	n, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	w := binary.NewWriter()
	w.U2(n)
	for i := 0; i < int(n); i++ {
		pc, err := r.ReadU2()
		if err != nil {
			return nil, err
		}
		line, err := r.ReadU2()
		if err != nil {
			return nil, err
		}
		npc, err := labels.resolve(int(pc))
		if err != nil {
			return nil, err
		}
		w.U2(uint16(npc))
		w.U2(line)
	}
	return w.Bytes(), nil
}

func remapLocals(data []byte, labels labelMap) ([]byte, error) {
	r := binary.NewReader(data)
	n, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	w := binary.NewWriter()
	w.U2(n)
	for i := 0; i < int(n); i++ {
		var v [5]uint16
		for j := range v {
			if v[j], err = r.ReadU2(); err != nil {
				return nil, err
			}
		}
		start, err := labels.resolve(int(v[0]))
		if err != nil {
			return nil, err
		}
		end, err := labels.resolve(int(v[0]) + int(v[1]))
		if err != nil {
			return nil, err
		}
		w.U2(uint16(start))
		w.U2(uint16(end - start))
		w.U2(v[2])
		w.U2(v[3])
		w.U2(v[4])
	}
	return w.Bytes(), nil
}
