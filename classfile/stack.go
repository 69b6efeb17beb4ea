package classfile

import (
	"errors"
	"fmt"
)

// Analysis errors returned by ComputeMaxStack.
var (
	ErrStackUnderflow = errors.New("operand stack underflow")
	ErrStackMismatch  = errors.New("inconsistent stack depth at merge point")
	ErrSubroutine     = errors.New("jsr/ret subroutines are not supported")
	ErrFallsOffCode   = errors.New("execution falls off the end of the code")
)

// StackEffect is the number of operand stack slots an instruction pops
// and pushes. Long and double values take two slots.
type StackEffect struct {
	Pops   int
	Pushes int
}

// fixedEffects covers opcodes whose effect does not depend on operands.
// A negative Pops marks opcodes that need pool or operand lookups.
var fixedEffects [OpJsrW + 1]StackEffect

func init() {
	set := func(from, to byte, pops, pushes int) {
		for op := int(from); op <= int(to); op++ {
			fixedEffects[op] = StackEffect{Pops: pops, Pushes: pushes}
		}
	}
	set(OpNop, OpNop, 0, 0)
	set(OpAconstNull, OpIconst5, 0, 1)
	set(OpLconst0, OpLconst1, 0, 2)
	set(OpFconst0, OpFconst2, 0, 1)
	set(OpDconst0, OpDconst1, 0, 2)
	set(OpBipush, OpSipush, 0, 1)
	set(OpLdc, OpLdcW, 0, 1)
	set(OpLdc2W, OpLdc2W, 0, 2)
	set(OpIload, OpIload, 0, 1)
	set(OpLload, OpLload, 0, 2)
	set(OpFload, OpFload, 0, 1)
	set(OpDload, OpDload, 0, 2)
	set(OpAload, OpAload, 0, 1)
	set(OpIload0, OpIload0+3, 0, 1)
	set(OpLload0, OpLload0+3, 0, 2)
	set(OpFload0, OpFload0+3, 0, 1)
	set(OpDload0, OpDload0+3, 0, 2)
	set(OpAload0, OpAload3, 0, 1)
	set(OpIaload, OpIaload, 2, 1)
	set(OpLaload, OpLaload, 2, 2)
	set(OpFaload, OpFaload, 2, 1)
	set(OpDaload, OpDaload, 2, 2)
	set(OpAaload, OpSaload, 2, 1)
	set(OpIstore, OpIstore, 1, 0)
	set(OpLstore, OpLstore, 2, 0)
	set(OpFstore, OpFstore, 1, 0)
	set(OpDstore, OpDstore, 2, 0)
	set(OpAstore, OpAstore, 1, 0)
	set(OpIstore0, OpIstore0+3, 1, 0)
	set(OpLstore0, OpLstore0+3, 2, 0)
	set(OpFstore0, OpFstore0+3, 1, 0)
	set(OpDstore0, OpDstore0+3, 2, 0)
	set(OpAstore0, OpAstore3, 1, 0)
	set(OpIastore, OpIastore, 3, 0)
	set(OpLastore, OpLastore, 4, 0)
	set(OpFastore, OpFastore, 3, 0)
	set(OpDastore, OpDastore, 4, 0)
	set(OpAastore, OpSastore, 3, 0)
	set(OpPop, OpPop, 1, 0)
	set(OpPop2, OpPop2, 2, 0)
	set(OpDup, OpDup, 1, 2)
	set(OpDupX1, OpDupX1, 2, 3)
	set(OpDupX2, OpDupX2, 3, 4)
	set(OpDup2, OpDup2, 2, 4)
	set(OpDup2X1, OpDup2X1, 3, 5)
	set(OpDup2X2, OpDup2X2, 4, 6)
	set(OpSwap, OpSwap, 2, 2)
	for op := int(OpIadd); op <= int(OpDrem); op++ {
		if (op-int(OpIadd))%2 == 0 {
			fixedEffects[op] = StackEffect{Pops: 2, Pushes: 1}
		} else {
			fixedEffects[op] = StackEffect{Pops: 4, Pushes: 2}
		}
	}
	set(OpIneg, OpIneg, 1, 1)
	set(OpLneg, OpLneg, 2, 2)
	set(OpFneg, OpFneg, 1, 1)
	set(OpDneg, OpDneg, 2, 2)
	for _, op := range []byte{OpIshl, OpIshr, OpIushr} {
		fixedEffects[op] = StackEffect{Pops: 2, Pushes: 1}
	}
	for _, op := range []byte{OpLshl, OpLshr, OpLushr} {
		fixedEffects[op] = StackEffect{Pops: 3, Pushes: 2}
	}
	for _, op := range []byte{OpIand, OpIor, OpIxor} {
		fixedEffects[op] = StackEffect{Pops: 2, Pushes: 1}
	}
	for _, op := range []byte{OpLand, OpLor, OpLxor} {
		fixedEffects[op] = StackEffect{Pops: 4, Pushes: 2}
	}
	set(OpIinc, OpIinc, 0, 0)
	set(OpI2l, OpI2l, 1, 2)
	set(OpI2f, OpI2f, 1, 1)
	set(OpI2d, OpI2d, 1, 2)
	set(OpL2i, OpL2f, 2, 1)
	set(OpL2d, OpL2d, 2, 2)
	set(OpF2i, OpF2i, 1, 1)
	set(OpF2l, OpF2d, 1, 2)
	set(OpD2i, OpD2i, 2, 1)
	set(OpD2l, OpD2l, 2, 2)
	set(OpD2f, OpD2f, 2, 1)
	set(OpI2b, OpI2s, 1, 1)
	set(OpLcmp, OpLcmp, 4, 1)
	set(OpFcmpl, OpFcmpg, 2, 1)
	set(OpDcmpl, OpDcmpg, 4, 1)
	set(OpIfeq, OpIfle, 1, 0)
	set(OpIfIcmpeq, OpIfAcmpne, 2, 0)
	set(OpGoto, OpGoto, 0, 0)
	set(OpJsr, OpJsr, 0, 1)
	set(OpRet, OpRet, 0, 0)
	set(OpTableswitch, OpLookupswitch, 1, 0)
	set(OpIreturn, OpIreturn, 1, 0)
	set(OpLreturn, OpLreturn, 2, 0)
	set(OpFreturn, OpFreturn, 1, 0)
	set(OpDreturn, OpDreturn, 2, 0)
	set(OpAreturn, OpAreturn, 1, 0)
	set(OpReturn, OpReturn, 0, 0)
	set(OpGetstatic, OpInvokedynamic, -1, 0)
	set(OpNew, OpNew, 0, 1)
	set(OpNewarray, OpAnewarray, 1, 1)
	set(OpArraylength, OpArraylength, 1, 1)
	set(OpAthrow, OpAthrow, 1, 0)
	set(OpCheckcast, OpInstanceof, 1, 1)
	set(OpMonitorenter, OpMonitorexit, 1, 0)
	set(OpWide, OpWide, -1, 0)
	set(OpMultianewarray, OpMultianewarray, -1, 0)
	set(OpIfnull, OpIfnonnull, 1, 0)
	set(OpGotoW, OpGotoW, 0, 0)
	set(OpJsrW, OpJsrW, 0, 1)
}

// StackEffectOf returns the stack effect of in. Field and invoke
// instructions resolve their descriptors through pool.
func StackEffectOf(in *Instruction, pool *ConstantPool) (StackEffect, error) {
	if !IsValidOpcode(in.Opcode) {
		return StackEffect{}, fmt.Errorf("%w 0x%02x", ErrInvalidOpcode, in.Opcode)
	}
	eff := fixedEffects[in.Opcode]
	if eff.Pops >= 0 {
		return eff, nil
	}

	switch in.Opcode {
	case OpMultianewarray:
		imm, ok := in.Imm.(MultiArrayImm)
		if !ok {
			return eff, fmt.Errorf("multianewarray without dimensions")
		}
		return StackEffect{Pops: int(imm.Dims), Pushes: 1}, nil
	case OpGetstatic, OpPutstatic, OpGetfield, OpPutfield:
		_, _, desc, err := pool.MemberRef(refIndex(in))
		if err != nil {
			return eff, err
		}
		size := SlotSize(desc)
		switch in.Opcode {
		case OpGetstatic:
			return StackEffect{Pops: 0, Pushes: size}, nil
		case OpPutstatic:
			return StackEffect{Pops: size, Pushes: 0}, nil
		case OpGetfield:
			return StackEffect{Pops: 1, Pushes: size}, nil
		default:
			return StackEffect{Pops: 1 + size, Pushes: 0}, nil
		}
	case OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface:
		_, _, desc, err := pool.MemberRef(refIndex(in))
		if err != nil {
			return eff, err
		}
		md, err := ParseMethodDescriptor(desc)
		if err != nil {
			return eff, err
		}
		pops := md.ArgSlots()
		if in.Opcode != OpInvokestatic {
			pops++
		}
		return StackEffect{Pops: pops, Pushes: md.ReturnSlots()}, nil
	case OpInvokedynamic:
		_, desc, err := pool.DynamicNameAndType(refIndex(in))
		if err != nil {
			return eff, err
		}
		md, err := ParseMethodDescriptor(desc)
		if err != nil {
			return eff, err
		}
		return StackEffect{Pops: md.ArgSlots(), Pushes: md.ReturnSlots()}, nil
	}
	return eff, fmt.Errorf("%w 0x%02x", ErrInvalidOpcode, in.Opcode)
}

func refIndex(in *Instruction) uint16 {
	switch imm := in.Imm.(type) {
	case RefImm:
		return imm.Index
	case InterfaceImm:
		return imm.Index
	case DynamicImm:
		return imm.Index
	case ConstImm:
		return imm.Index
	}
	return 0
}

// ComputeMaxStack returns the maximum operand stack depth of the code by
// following every control path, including exception handlers, which start
// with the thrown exception as the only stack entry.
func ComputeMaxStack(code *Code, pool *ConstantPool) (int, error) {
	insns, err := DecodeInstructions(code.Bytecode)
	if err != nil {
		return 0, err
	}
	index := make(map[int]int, len(insns))
	for i, in := range insns {
		index[in.Offset] = i
	}
	at := func(label int) (int, error) {
		if i, ok := index[label]; ok {
			return i, nil
		}
		return 0, fmt.Errorf("%w: %d", ErrUnknownLabel, label)
	}

	depth := make([]int, len(insns))
	for i := range depth {
		depth[i] = -1
	}
	var work []int
	enter := func(i, d int) error {
		switch depth[i] {
		case -1:
			depth[i] = d
			work = append(work, i)
		case d:
		default:
			return fmt.Errorf("%w: offset %d has %d and %d", ErrStackMismatch, insns[i].Offset, depth[i], d)
		}
		return nil
	}

	if len(insns) == 0 {
		return 0, nil
	}
	if err := enter(0, 0); err != nil {
		return 0, err
	}
	for _, h := range code.Handlers {
		i, err := at(h.HandlerPC)
		if err != nil {
			return 0, err
		}
		if err := enter(i, 1); err != nil {
			return 0, err
		}
	}

	maxDepth := 1
	if len(code.Handlers) == 0 {
		maxDepth = 0
	}
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		in := &insns[i]

		switch in.Opcode {
		case OpJsr, OpJsrW, OpRet:
			return 0, ErrSubroutine
		}
		eff, err := StackEffectOf(in, pool)
		if err != nil {
			return 0, fmt.Errorf("%s at %d: %w", OpcodeName(in.Opcode), in.Offset, err)
		}
		d := depth[i]
		if d < eff.Pops {
			return 0, fmt.Errorf("%w: %s at %d", ErrStackUnderflow, OpcodeName(in.Opcode), in.Offset)
		}
		// dup-family peaks equal their result depth
		next := d - eff.Pops + eff.Pushes
		if next > maxDepth {
			maxDepth = next
		}

		var targets []int
		switch imm := in.Imm.(type) {
		case BranchImm:
			targets = append(targets, imm.Target)
		case TableSwitchImm:
			targets = append(append(targets, imm.Default), imm.Targets...)
		case LookupSwitchImm:
			targets = append(append(targets, imm.Default), imm.Targets...)
		}
		for _, t := range targets {
			j, err := at(t)
			if err != nil {
				return 0, err
			}
			if err := enter(j, next); err != nil {
				return 0, err
			}
		}
		if FallsThrough(in.Opcode) {
			if i+1 >= len(insns) {
				return 0, ErrFallsOffCode
			}
			if err := enter(i+1, next); err != nil {
				return 0, err
			}
		}
	}
	return maxDepth, nil
}
