package engine

import (
	"github.com/wippyai/muddy/classfile"
	"github.com/wippyai/muddy/errors"
	"github.com/wippyai/muddy/obfuscate/internal/codegen"
	"go.uber.org/zap"
)

const stringDesc = "Ljava/lang/String;"

// clinitPoolCost covers the names a new <clinit> may need: its name and
// descriptor and the Code and StackMapTable attribute names.
const clinitPoolCost = 4

// Qualifies reports whether a field with the given access flags and
// descriptor may have its constant moved into the static initializer.
// Only the plain static final combinations with or without one visibility
// modifier qualify.
func Qualifies(access classfile.AccessFlags, desc string) bool {
	if desc != stringDesc {
		return false
	}
	const sf = classfile.AccStatic | classfile.AccFinal
	switch access {
	case sf, sf | classfile.AccPublic, sf | classfile.AccPrivate, sf | classfile.AccProtected:
		return true
	}
	return false
}

type pendingField struct {
	field *classfile.Field
	attrs []classfile.Attribute
	index uint16
}

// injectFields moves qualifying String constants into <clinit>, in
// declaration order, ahead of the existing initializer code.
func (e *Engine) injectFields(c *classfile.Class, rewritten map[uint16]bool, st *Stats) {
	pool := c.Pool
	owner := c.Name()
	var blocks []classfile.Instruction
	var pending []pendingField

	for _, f := range c.Fields {
		if !Qualifies(f.Access, f.DescriptorString(pool)) {
			continue
		}
		idx, ok := f.ConstantValue(pool)
		if !ok || pool.Tag(idx) != classfile.TagString {
			continue
		}
		s, err := pool.StringValue(idx)
		if err != nil || s == "" {
			continue
		}
		tokens, ok := e.encode(s)
		// putstatic adds a Fieldref and its NameAndType
		if !ok || !fits(pool, len(tokens), 2+clinitPoolCost) {
			st.Skipped++
			continue
		}
		em := codegen.NewEmitter(pool)
		if em.DecodeString(e.decoder, tokens).PutStatic(owner, f.NameString(pool), stringDesc).Err() != nil {
			st.Skipped++
			continue
		}
		blocks = append(blocks, em.Instructions()...)
		pending = append(pending, pendingField{field: f, attrs: f.Attributes, index: idx})
		f.ClearConstantValue(pool)
	}
	if len(pending) == 0 {
		return
	}

	restore := func(err error) {
		for _, p := range pending {
			p.field.Attributes = p.attrs
		}
		st.Restored++
		st.Skipped += len(pending)
		Logger().Warn("static initializer kept unchanged",
			zap.String("class", owner), zap.Error(err))
	}

	created, err := e.prependClinit(c, blocks)
	if err != nil {
		restore(err)
		return
	}

	st.Fields += len(pending)
	st.ClinitCreated = created
	for _, p := range pending {
		rewritten[p.index] = true
	}
}

// prependClinit places blocks at the start of <clinit>, creating the
// method when the class has none.
func (e *Engine) prependClinit(c *classfile.Class, blocks []classfile.Instruction) (bool, error) {
	pool := c.Pool
	m := c.FindMethod(classfile.StaticInit, "()V")
	if m != nil && m.Code == nil {
		return false, errors.Unsupported(errors.PhaseRewrite, "static initializer without code")
	}
	if m == nil {
		code, err := classfile.NewCode(0, 0).Assemble(pool, append(blocks, classfile.Synth(classfile.OpReturn, nil)))
		if err != nil {
			return false, err
		}
		code.MaxStack = maxStack(code, pool, 0, codegen.MaxStack)
		_, err = c.AddMethod(classfile.AccStatic, classfile.StaticInit, "()V", code)
		return err == nil, err
	}

	existing, err := classfile.DecodeInstructions(m.Code.Bytecode)
	if err != nil {
		return false, err
	}
	insns := make([]classfile.Instruction, 0, len(blocks)+len(existing)+1)
	insns = append(insns, blocks...)
	insns = append(insns, existing...)

	var frames []classfile.Frame
	last := existing[len(existing)-1]
	if last.Opcode != classfile.OpReturn {
		end := len(m.Code.Bytecode)
		ret := classfile.Synth(classfile.OpReturn, nil)
		ret.Offset = end
		insns = append(insns, ret)
		if !classfile.FallsThrough(last.Opcode) && c.Major >= classfile.MajorJava6 {
			frames = append(frames, classfile.Frame{Offset: end, Kind: classfile.FrameFull})
		}
	}

	code, err := m.Code.Assemble(pool, insns, frames...)
	if err != nil {
		return false, err
	}
	code.MaxStack = maxStack(code, pool, int(m.Code.MaxStack), max(int(m.Code.MaxStack), codegen.MaxStack))
	m.Code = code
	return false, nil
}
