package classfile

import (
	"errors"
	"fmt"

	"github.com/wippyai/muddy/classfile/internal/binary"
)

// ErrBadFrame is returned for malformed StackMapTable entries.
var ErrBadFrame = errors.New("malformed stack map frame")

// Verification type tags.
const (
	VTTop               byte = 0
	VTInteger           byte = 1
	VTFloat             byte = 2
	VTDouble            byte = 3
	VTLong              byte = 4
	VTNull              byte = 5
	VTUninitializedThis byte = 6
	VTObject            byte = 7
	VTUninitialized     byte = 8
)

// VerificationType is a verification_type_info entry. Index is the class
// of an Object entry; Offset is the label of the new instruction of an
// Uninitialized entry.
type VerificationType struct {
	Offset int
	Index  uint16
	Tag    byte
}

// FrameKind is the shape of a stack map frame.
type FrameKind byte

const (
	FrameSame FrameKind = iota
	FrameSameLocals1
	FrameChop
	FrameAppend
	FrameFull
)

// Frame is a stack map frame at an absolute bytecode offset. Chop is the
// number of locals removed by a chop frame; Locals holds the appended
// locals of an append frame or all locals of a full frame.
type Frame struct {
	Locals []VerificationType
	Stack  []VerificationType
	Offset int
	Chop   int
	Kind   FrameKind
}

// ParseStackMapTable decodes a StackMapTable attribute payload.
func ParseStackMapTable(data []byte) ([]Frame, error) {
	r := binary.NewReader(data)
	n, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, 0, n)
	offset := -1
	for i := 0; i < int(n); i++ {
		f, delta, err := readFrame(r)
		if err != nil {
			return nil, r.WrapError(AttrStackMapTable, err)
		}
		offset += delta + 1
		f.Offset = offset
		frames = append(frames, f)
	}
	if r.Remaining() != 0 {
		return nil, r.WrapError(AttrStackMapTable, fmt.Errorf("%w: %d trailing bytes", ErrBadFrame, r.Remaining()))
	}
	return frames, nil
}

func readFrame(r *binary.Reader) (Frame, int, error) {
	var f Frame
	ft, err := r.ReadU1()
	if err != nil {
		return f, 0, err
	}
	switch {
	case ft <= 63:
		f.Kind = FrameSame
		return f, int(ft), nil
	case ft <= 127:
		f.Kind = FrameSameLocals1
		v, err := readVerificationType(r)
		if err != nil {
			return f, 0, err
		}
		f.Stack = []VerificationType{v}
		return f, int(ft) - 64, nil
	case ft < 247:
		return f, 0, fmt.Errorf("%w: reserved type %d", ErrBadFrame, ft)
	}

	delta, err := r.ReadU2()
	if err != nil {
		return f, 0, err
	}
	switch {
	case ft == 247:
		f.Kind = FrameSameLocals1
		v, err := readVerificationType(r)
		if err != nil {
			return f, 0, err
		}
		f.Stack = []VerificationType{v}
	case ft <= 250:
		f.Kind = FrameChop
		f.Chop = 251 - int(ft)
	case ft == 251:
		f.Kind = FrameSame
	case ft <= 254:
		f.Kind = FrameAppend
		if f.Locals, err = readVerificationTypes(r, int(ft)-251); err != nil {
			return f, 0, err
		}
	default:
		f.Kind = FrameFull
		nl, err := r.ReadU2()
		if err != nil {
			return f, 0, err
		}
		if f.Locals, err = readVerificationTypes(r, int(nl)); err != nil {
			return f, 0, err
		}
		ns, err := r.ReadU2()
		if err != nil {
			return f, 0, err
		}
		if f.Stack, err = readVerificationTypes(r, int(ns)); err != nil {
			return f, 0, err
		}
	}
	return f, int(delta), nil
}

func readVerificationTypes(r *binary.Reader, n int) ([]VerificationType, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([]VerificationType, n)
	for i := range out {
		v, err := readVerificationType(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func readVerificationType(r *binary.Reader) (VerificationType, error) {
	tag, err := r.ReadU1()
	if err != nil {
		return VerificationType{}, err
	}
	v := VerificationType{Tag: tag}
	switch tag {
	case VTObject:
		v.Index, err = r.ReadU2()
	case VTUninitialized:
		var off uint16
		off, err = r.ReadU2()
		v.Offset = int(off)
	default:
		if tag > VTUninitialized {
			err = fmt.Errorf("%w: verification tag %d", ErrBadFrame, tag)
		}
	}
	return v, err
}

// EncodeStackMapTable encodes frames sorted by offset. Frame types are
// chosen from Kind and the recomputed offset deltas.
func EncodeStackMapTable(frames []Frame) ([]byte, error) {
	w := binary.NewWriter()
	w.U2(uint16(len(frames)))
	prev := -1
	for i := range frames {
		f := &frames[i]
		delta := f.Offset - prev - 1
		if delta < 0 || delta > 0xFFFF {
			return nil, fmt.Errorf("%w: frame %d at %d follows %d", ErrBadFrame, i, f.Offset, prev)
		}
		prev = f.Offset
		if err := writeFrame(w, f, delta); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return w.Bytes(), nil
}

func writeFrame(w *binary.Writer, f *Frame, delta int) error {
	switch f.Kind {
	case FrameSame:
		if delta <= 63 {
			w.U1(uint8(delta))
			return nil
		}
		w.U1(251)
		w.U2(uint16(delta))
	case FrameSameLocals1:
		if len(f.Stack) != 1 {
			return fmt.Errorf("%w: same_locals_1 with %d stack items", ErrBadFrame, len(f.Stack))
		}
		if delta <= 63 {
			w.U1(uint8(64 + delta))
		} else {
			w.U1(247)
			w.U2(uint16(delta))
		}
		writeVerificationType(w, f.Stack[0])
	case FrameChop:
		if f.Chop < 1 || f.Chop > 3 {
			return fmt.Errorf("%w: chop %d", ErrBadFrame, f.Chop)
		}
		w.U1(uint8(251 - f.Chop))
		w.U2(uint16(delta))
	case FrameAppend:
		if len(f.Locals) < 1 || len(f.Locals) > 3 {
			return fmt.Errorf("%w: append of %d locals", ErrBadFrame, len(f.Locals))
		}
		w.U1(uint8(251 + len(f.Locals)))
		w.U2(uint16(delta))
		for _, v := range f.Locals {
			writeVerificationType(w, v)
		}
	case FrameFull:
		w.U1(255)
		w.U2(uint16(delta))
		w.U2(uint16(len(f.Locals)))
		for _, v := range f.Locals {
			writeVerificationType(w, v)
		}
		w.U2(uint16(len(f.Stack)))
		for _, v := range f.Stack {
			writeVerificationType(w, v)
		}
	default:
		return fmt.Errorf("%w: kind %d", ErrBadFrame, f.Kind)
	}
	return nil
}

func writeVerificationType(w *binary.Writer, v VerificationType) {
	w.U1(v.Tag)
	switch v.Tag {
	case VTObject:
		w.U2(v.Index)
	case VTUninitialized:
		w.U2(uint16(v.Offset))
	}
}
