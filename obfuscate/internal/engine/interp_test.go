package engine

import (
	"fmt"

	"github.com/wippyai/muddy"
	"github.com/wippyai/muddy/classfile"
)

// decoderObject is an instance of the run-time decoder class.
type decoderObject struct {
	tokens []int64
}

// vm runs the static methods of one class. It understands the opcodes
// the tests use and checks that the operand stack never exceeds
// max_stack.
type vm struct {
	class   *classfile.Class
	decoder muddy.DecoderRef
	decode  func([]int64) (string, error)
	statics map[string]any
	inited  bool
	steps   int
}

func newVM(c *classfile.Class, decode func([]int64) (string, error)) *vm {
	return &vm{
		class:   c,
		decoder: muddy.DefaultDecoder,
		decode:  decode,
		statics: make(map[string]any),
	}
}

// init sets static constants the way class preparation does and runs
// <clinit>.
func (v *vm) init() error {
	if v.inited {
		return nil
	}
	v.inited = true
	pool := v.class.Pool
	for _, f := range v.class.Fields {
		if !f.Access.IsStatic() {
			continue
		}
		if idx, ok := f.ConstantValue(pool); ok && pool.Tag(idx) == classfile.TagString {
			s, err := pool.StringValue(idx)
			if err != nil {
				return err
			}
			v.statics[f.NameString(pool)] = s
		}
	}
	if m := v.class.FindMethod(classfile.StaticInit, "()V"); m != nil {
		_, err := v.run(m)
		return err
	}
	return nil
}

// call runs a no-argument static method.
func (v *vm) call(name, desc string) (any, error) {
	if err := v.init(); err != nil {
		return nil, fmt.Errorf("<clinit>: %w", err)
	}
	m := v.class.FindMethod(name, desc)
	if m == nil {
		return nil, fmt.Errorf("no method %s%s", name, desc)
	}
	return v.run(m)
}

func slots(x any) int {
	if _, ok := x.(int64); ok {
		return 2
	}
	return 1
}

func (v *vm) run(m *classfile.Method) (any, error) {
	pool := v.class.Pool
	insns, err := classfile.DecodeInstructions(m.Code.Bytecode)
	if err != nil {
		return nil, err
	}
	at := make(map[int]int, len(insns))
	for i, in := range insns {
		at[in.Offset] = i
	}

	var stack []any
	depth := 0
	locals := make([]any, m.Code.MaxLocals)
	limit := int(m.Code.MaxStack)
	var fault error
	push := func(x any) {
		stack = append(stack, x)
		depth += slots(x)
		if depth > limit && fault == nil {
			fault = fmt.Errorf("stack depth %d exceeds max_stack %d", depth, limit)
		}
	}
	pop := func() any {
		if len(stack) == 0 {
			if fault == nil {
				fault = fmt.Errorf("stack underflow")
			}
			return nil
		}
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		depth -= slots(x)
		return x
	}
	popInt := func() int32 {
		n, _ := pop().(int32)
		return n
	}

	pc := 0
	for {
		if v.steps++; v.steps > 1_000_000 {
			return nil, fmt.Errorf("step limit")
		}
		if pc >= len(insns) {
			return nil, fmt.Errorf("fell off the end of %s", m.NameString(pool))
		}
		in := insns[pc]
		next := pc + 1
		jump := func(label int) {
			next = at[label]
		}

		switch op := in.Opcode; {
		case op == classfile.OpNop:
		case op == classfile.OpAconstNull:
			push(nil)
		case op >= classfile.OpIconstM1 && op <= classfile.OpIconst5:
			push(int32(op) - int32(classfile.OpIconst0))
		case op == classfile.OpBipush || op == classfile.OpSipush:
			push(int32(in.Imm.(classfile.PushImm).Value))
		case op == classfile.OpLdc || op == classfile.OpLdcW:
			idx := in.Imm.(classfile.ConstImm).Index
			s, err := pool.StringValue(idx)
			if err != nil {
				return nil, err
			}
			push(s)
		case op == classfile.OpLdc2W:
			n, err := pool.Long(in.Imm.(classfile.ConstImm).Index)
			if err != nil {
				return nil, err
			}
			push(n)
		case op == classfile.OpIload || op == classfile.OpAload:
			push(locals[in.Imm.(classfile.LocalImm).Index])
		case op >= classfile.OpAload0 && op <= classfile.OpAload3:
			push(locals[op-classfile.OpAload0])
		case op == classfile.OpIstore || op == classfile.OpAstore:
			locals[in.Imm.(classfile.LocalImm).Index] = pop()
		case op >= classfile.OpAstore0 && op <= classfile.OpAstore3:
			locals[op-classfile.OpAstore0] = pop()
		case op == classfile.OpIinc:
			imm := in.Imm.(classfile.IincImm)
			n, _ := locals[imm.Index].(int32)
			locals[imm.Index] = n + int32(imm.Delta)
		case op == classfile.OpIadd:
			b, a := popInt(), popInt()
			push(a + b)
		case op == classfile.OpDup:
			x := pop()
			push(x)
			push(x)
		case op == classfile.OpPop:
			pop()
		case op == classfile.OpNew:
			name, err := pool.ClassName(in.Imm.(classfile.RefImm).Index)
			if err != nil {
				return nil, err
			}
			if name != v.decoder.Class {
				return nil, fmt.Errorf("new %s", name)
			}
			push(&decoderObject{})
		case op == classfile.OpNewarray:
			if in.Imm.(classfile.NewArrayImm).Type != classfile.TLong {
				return nil, fmt.Errorf("newarray of %v", in.Imm)
			}
			push(make([]int64, popInt()))
		case op == classfile.OpLastore:
			val, _ := pop().(int64)
			i := popInt()
			arr, _ := pop().([]int64)
			if int(i) >= len(arr) {
				return nil, fmt.Errorf("lastore index %d of %d", i, len(arr))
			}
			arr[i] = val
		case op == classfile.OpInvokespecial:
			class, name, desc, err := pool.MemberRef(in.Imm.(classfile.RefImm).Index)
			if err != nil {
				return nil, err
			}
			if class != v.decoder.Class || name != classfile.Init || desc != v.decoder.CtorDesc {
				return nil, fmt.Errorf("invokespecial %s.%s%s", class, name, desc)
			}
			arr, _ := pop().([]int64)
			obj, _ := pop().(*decoderObject)
			if obj == nil {
				return nil, fmt.Errorf("constructor receiver is not a decoder")
			}
			obj.tokens = arr
		case op == classfile.OpInvokevirtual:
			class, name, desc, err := pool.MemberRef(in.Imm.(classfile.RefImm).Index)
			if err != nil {
				return nil, err
			}
			if class != v.decoder.Class || name != v.decoder.Method || desc != v.decoder.MethodDesc {
				return nil, fmt.Errorf("invokevirtual %s.%s%s", class, name, desc)
			}
			obj, _ := pop().(*decoderObject)
			if obj == nil {
				return nil, fmt.Errorf("receiver is not a decoder")
			}
			s, err := v.decode(obj.tokens)
			if err != nil {
				return nil, err
			}
			push(s)
		case op == classfile.OpInvokestatic:
			class, name, desc, err := pool.MemberRef(in.Imm.(classfile.RefImm).Index)
			if err != nil {
				return nil, err
			}
			if class != v.class.Name() {
				return nil, fmt.Errorf("invokestatic %s", class)
			}
			r, err := v.call(name, desc)
			if err != nil {
				return nil, err
			}
			if desc[len(desc)-1] != 'V' {
				push(r)
			}
		case op == classfile.OpGetstatic:
			_, name, _, err := pool.MemberRef(in.Imm.(classfile.RefImm).Index)
			if err != nil {
				return nil, err
			}
			push(v.statics[name])
		case op == classfile.OpPutstatic:
			_, name, _, err := pool.MemberRef(in.Imm.(classfile.RefImm).Index)
			if err != nil {
				return nil, err
			}
			v.statics[name] = pop()
		case op == classfile.OpGoto:
			jump(in.Imm.(classfile.BranchImm).Target)
		case op == classfile.OpIfeq:
			if popInt() == 0 {
				jump(in.Imm.(classfile.BranchImm).Target)
			}
		case op == classfile.OpIfne:
			if popInt() != 0 {
				jump(in.Imm.(classfile.BranchImm).Target)
			}
		case op == classfile.OpIfIcmpge:
			b, a := popInt(), popInt()
			if a >= b {
				jump(in.Imm.(classfile.BranchImm).Target)
			}
		case op == classfile.OpAreturn || op == classfile.OpIreturn:
			r := pop()
			return r, fault
		case op == classfile.OpReturn:
			return nil, fault
		case op == classfile.OpAthrow:
			return nil, fmt.Errorf("athrow at %d", in.Offset)
		default:
			return nil, fmt.Errorf("unsupported opcode %s", classfile.OpcodeName(op))
		}
		if fault != nil {
			return nil, fmt.Errorf("%s at %d: %w", classfile.OpcodeName(in.Opcode), in.Offset, fault)
		}
		pc = next
	}
}
