package engine

import (
	"github.com/wippyai/muddy/classfile"
	"github.com/wippyai/muddy/obfuscate/internal/codegen"
	"go.uber.org/zap"
)

// rewriteMethod replaces every string ldc in m with a decode block.
// Rewritten String indices are recorded in rewritten.
func (e *Engine) rewriteMethod(c *classfile.Class, m *classfile.Method, rewritten map[uint16]bool, st *Stats) {
	if m.Code == nil {
		return
	}
	pool := c.Pool
	insns, err := classfile.DecodeInstructions(m.Code.Bytecode)
	if err != nil {
		Logger().Warn("skip undecodable method",
			zap.String("class", c.Name()),
			zap.String("method", m.NameString(pool)),
			zap.Error(err))
		return
	}

	out := make([]classfile.Instruction, 0, len(insns))
	var hits []uint16
	em := codegen.NewEmitter(pool)
	for _, in := range insns {
		idx, ok := stringLdc(pool, in)
		if !ok {
			out = append(out, in)
			continue
		}
		s, _ := pool.StringValue(idx)
		tokens, ok := e.encode(s)
		if !ok || !fits(pool, len(tokens), 0) {
			st.Skipped++
			out = append(out, in)
			continue
		}
		em.Reset()
		if em.DecodeString(e.decoder, tokens).Err() != nil {
			st.Skipped++
			out = append(out, in)
			continue
		}
		block := em.Instructions()
		start := len(out)
		out = append(out, block...)
		out[start].Offset = in.Offset
		hits = append(hits, idx)
	}
	if len(hits) == 0 {
		return
	}

	code, err := m.Code.Assemble(pool, out)
	if err != nil {
		st.Restored++
		st.Skipped += len(hits)
		Logger().Warn("method kept unchanged",
			zap.String("class", c.Name()),
			zap.String("method", m.NameString(pool)),
			zap.Error(err))
		return
	}
	old := int(m.Code.MaxStack)
	code.MaxStack = maxStack(code, pool, old, old+codegen.MaxStack-1)
	m.Code = code

	st.Methods++
	st.Literals += len(hits)
	for _, idx := range hits {
		rewritten[idx] = true
	}
}

// stringLdc returns the String index loaded by an ldc or ldc_w.
func stringLdc(pool *classfile.ConstantPool, in classfile.Instruction) (uint16, bool) {
	if in.Opcode != classfile.OpLdc && in.Opcode != classfile.OpLdcW {
		return 0, false
	}
	imm, ok := in.Imm.(classfile.ConstImm)
	if !ok || pool.Tag(imm.Index) != classfile.TagString {
		return 0, false
	}
	return imm.Index, true
}
