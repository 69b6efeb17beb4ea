package codegen

import (
	stderrors "errors"
	"math"

	"github.com/wippyai/muddy"
	"github.com/wippyai/muddy/classfile"
	"github.com/wippyai/muddy/errors"
)

// Emitter builds a sequence of synthesized instructions.
type Emitter struct {
	pool  *classfile.ConstantPool
	err   error
	insns []classfile.Instruction
}

// NewEmitter creates an emitter that interns constants in pool.
func NewEmitter(pool *classfile.ConstantPool) *Emitter {
	return &Emitter{pool: pool}
}

// Instructions returns the emitted sequence.
func (e *Emitter) Instructions() []classfile.Instruction {
	return e.insns
}

// Len returns the number of emitted instructions.
func (e *Emitter) Len() int {
	return len(e.insns)
}

// Err returns the first error met while emitting. Constant pool failures
// carry the "constant_pool" path and wrap the pool's error.
func (e *Emitter) Err() error {
	return e.err
}

// Reset clears the emitted sequence and the error.
func (e *Emitter) Reset() {
	e.insns = e.insns[:0]
	e.err = nil
}

func (e *Emitter) emit(op byte, imm any) *Emitter {
	if e.err == nil {
		e.insns = append(e.insns, classfile.Synth(op, imm))
	}
	return e
}

func (e *Emitter) ref(op byte, idx uint16, err error) *Emitter {
	if e.err != nil {
		return e
	}
	if err != nil {
		return e.fail(err)
	}
	return e.emit(op, classfile.RefImm{Index: idx})
}

// fail records a constant pool error.
func (e *Emitter) fail(err error) *Emitter {
	kind := errors.KindInvalidData
	if stderrors.Is(err, classfile.ErrPoolOverflow) {
		kind = errors.KindOverflow
	}
	e.err = errors.New(errors.PhaseRewrite, kind).
		Path("constant_pool").
		Value(e.pool.Count()).
		Cause(err).
		Detail("intern constant").
		Build()
	return e
}

// Op emits an instruction without operands.
func (e *Emitter) Op(op byte) *Emitter {
	return e.emit(op, nil)
}

// Dup emits dup.
func (e *Emitter) Dup() *Emitter {
	return e.emit(classfile.OpDup, nil)
}

// Push emits the shortest instruction that pushes v.
func (e *Emitter) Push(v int16) *Emitter {
	if e.err != nil {
		return e
	}
	e.insns = append(e.insns, PushInt(v))
	return e
}

// New emits new for an internal class name.
func (e *Emitter) New(class string) *Emitter {
	if e.err != nil {
		return e
	}
	idx, err := e.pool.AddClass(class)
	return e.ref(classfile.OpNew, idx, err)
}

// NewArray emits newarray with a primitive element type code.
func (e *Emitter) NewArray(elem byte) *Emitter {
	return e.emit(classfile.OpNewarray, classfile.NewArrayImm{Type: elem})
}

// LdcLong emits ldc2_w of a CONSTANT_Long.
func (e *Emitter) LdcLong(v int64) *Emitter {
	if e.err != nil {
		return e
	}
	idx, err := e.pool.AddLong(v)
	if err != nil {
		return e.fail(err)
	}
	return e.emit(classfile.OpLdc2W, classfile.ConstImm{Index: idx})
}

// InvokeSpecial emits invokespecial of a class method.
func (e *Emitter) InvokeSpecial(class, name, desc string) *Emitter {
	if e.err != nil {
		return e
	}
	idx, err := e.pool.AddMethodref(class, name, desc)
	return e.ref(classfile.OpInvokespecial, idx, err)
}

// InvokeVirtual emits invokevirtual of a class method.
func (e *Emitter) InvokeVirtual(class, name, desc string) *Emitter {
	if e.err != nil {
		return e
	}
	idx, err := e.pool.AddMethodref(class, name, desc)
	return e.ref(classfile.OpInvokevirtual, idx, err)
}

// PutStatic emits putstatic of a field.
func (e *Emitter) PutStatic(class, name, desc string) *Emitter {
	if e.err != nil {
		return e
	}
	idx, err := e.pool.AddFieldref(class, name, desc)
	return e.ref(classfile.OpPutstatic, idx, err)
}

// Return emits a void return.
func (e *Emitter) Return() *Emitter {
	return e.emit(classfile.OpReturn, nil)
}

// DecodeString emits the sequence that leaves the decoded string on the
// stack:
//
//	new D; dup; push n; newarray long; dup
//	push i; ldc2_w t[i]; lastore; dup      (dup omitted after the last)
//	invokespecial D.<init>(ctor); invokevirtual D.method(desc)
//
// tokens must hold between 1 and muddy.MaxTokens values; other counts set
// an overflow error and emit nothing.
func (e *Emitter) DecodeString(d muddy.DecoderRef, tokens []int64) *Emitter {
	if e.err != nil {
		return e
	}
	n := len(tokens)
	if !Valid(tokens) {
		e.err = errors.Overflow(errors.PhaseRewrite, []string{"newarray"}, n, "long[] length 1..32767")
		return e
	}
	e.New(d.Class).Dup().Push(int16(n)).NewArray(classfile.TLong).Dup()
	for i, t := range tokens {
		e.Push(int16(i)).LdcLong(t).Op(classfile.OpLastore)
		if i < n-1 {
			e.Dup()
		}
	}
	return e.InvokeSpecial(d.Class, classfile.Init, d.CtorDesc).
		InvokeVirtual(d.Class, d.Method, d.MethodDesc)
}

// PushInt returns the shortest instruction that pushes v: iconst_m1 to
// iconst_5, then bipush, then sipush.
func PushInt(v int16) classfile.Instruction {
	switch {
	case v >= -1 && v <= 5:
		return classfile.Synth(classfile.OpIconstM1+byte(v+1), nil)
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return classfile.Synth(classfile.OpBipush, classfile.PushImm{Value: v})
	default:
		return classfile.Synth(classfile.OpSipush, classfile.PushImm{Value: v})
	}
}

// PoolCost bounds the number of pool slots one DecodeString block of n
// tokens can add: two per CONSTANT_Long plus the decoder class, its two
// method references and the entries they name.
func PoolCost(n int) int {
	return 2*n + 10
}

// MaxStack is the operand stack growth of a DecodeString block over the
// depth it starts at: two decoder references, two array references, an
// index and a long.
const MaxStack = 7

// Valid reports whether tokens can be emitted as a block.
func Valid(tokens []int64) bool {
	return len(tokens) >= 1 && len(tokens) <= muddy.MaxTokens
}
