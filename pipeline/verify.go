package pipeline

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/wippyai/muddy"
	"github.com/wippyai/muddy/classfile"
	"github.com/wippyai/muddy/codec"
	"github.com/wippyai/muddy/errors"
)

// Verifier checks that every rewritten literal of a transformed class
// decodes back to the literal it replaced.
type Verifier struct {
	decode  func([]int64) (string, error)
	decoder muddy.DecoderRef
}

// NewVerifier creates a verifier for classes rewritten with the given
// decoder and the default codec. A nil decode uses codec.Decode.
func NewVerifier(decoder muddy.DecoderRef, decode func([]int64) (string, error)) *Verifier {
	if decode == nil {
		decode = codec.Decode
	}
	return &Verifier{decode: decode, decoder: decoder.WithDefaults()}
}

// site is a string produced by a method: a kept ldc or a decode block,
// optionally stored into a field.
type site struct {
	value string
	field string
	block bool
}

// VerifyClass compares a class before and after transformation. All
// mismatches are reported together.
func (v *Verifier) VerifyClass(original, transformed []byte) error {
	orig, err := classfile.ParseClass(original)
	if err != nil {
		return errors.ParseFailed("original class", err)
	}
	out, err := classfile.ParseClass(transformed)
	if err != nil {
		return errors.ParseFailed("transformed class", err)
	}
	name := out.Name()

	var errs error
	assigned := make(map[string]bool)
	for _, m := range out.Methods {
		if m.Code == nil {
			continue
		}
		member := m.NameString(out.Pool)
		sites, err := v.sites(orig, out, m)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrap(errors.PhaseVerify, errors.KindInvalidData, name+"."+member, err))
			continue
		}

		var want []string
		if om := orig.FindMethod(member, m.DescriptorString(out.Pool)); om != nil && om.Code != nil {
			if want, err = stringLiterals(orig, om); err != nil {
				errs = multierr.Append(errs, errors.Wrap(errors.PhaseVerify, errors.KindInvalidData, name+"."+member, err))
				continue
			}
		}

		var got []string
		for _, s := range sites {
			if s.field == "" {
				got = append(got, s.value)
				continue
			}
			assigned[s.field] = true
			if cv, ok := constantValue(orig, s.field); !ok || cv != s.value {
				errs = multierr.Append(errs, errors.Mismatch(name, s.field, cv, s.value))
			}
		}
		if len(got) != len(want) {
			errs = multierr.Append(errs, errors.New(errors.PhaseVerify, errors.KindMismatch).
				Class(name).Member(member).
				Detail("%d string loads, want %d", len(got), len(want)).
				Build())
			continue
		}
		for i := range got {
			if got[i] != want[i] {
				errs = multierr.Append(errs, errors.Mismatch(name, member, want[i], got[i]))
			}
		}
	}

	for _, f := range out.Fields {
		fname := f.NameString(out.Pool)
		if _, ok := f.ConstantValue(out.Pool); ok || assigned[fname] {
			continue
		}
		if cv, ok := constantValue(orig, fname); ok {
			errs = multierr.Append(errs, errors.Mismatch(name, fname, cv, ""))
		}
	}
	return errs
}

// sites lists the strings m produces, in code order.
func (v *Verifier) sites(orig, c *classfile.Class, m *classfile.Method) ([]site, error) {
	pool := c.Pool
	insns, err := classfile.DecodeInstructions(m.Code.Bytecode)
	if err != nil {
		return nil, err
	}
	var out []site
	var tokens []int64
	inBlock := false
	for i, in := range insns {
		switch in.Opcode {
		case classfile.OpLdc, classfile.OpLdcW:
			imm := in.Imm.(classfile.ConstImm)
			if pool.Tag(imm.Index) == classfile.TagString {
				s, err := pool.StringValue(imm.Index)
				if err != nil {
					return nil, err
				}
				out = append(out, site{value: s})
			}
		case classfile.OpNew:
			if cls, _ := pool.ClassName(in.Imm.(classfile.RefImm).Index); cls == v.decoder.Class {
				inBlock = true
				tokens = tokens[:0]
			}
		case classfile.OpLdc2W:
			if inBlock {
				n, err := pool.Long(in.Imm.(classfile.ConstImm).Index)
				if err != nil {
					return nil, err
				}
				tokens = append(tokens, n)
			}
		case classfile.OpInvokevirtual:
			if !inBlock {
				continue
			}
			cls, mname, _, err := pool.MemberRef(in.Imm.(classfile.RefImm).Index)
			if err != nil || cls != v.decoder.Class || mname != v.decoder.Method {
				continue
			}
			inBlock = false
			s, err := v.decode(tokens)
			if err != nil {
				return nil, fmt.Errorf("decode block at %d: %w", in.Offset, err)
			}
			st := site{value: s, block: true}
			if i+1 < len(insns) && insns[i+1].Opcode == classfile.OpPutstatic {
				owner, fname, _, err := pool.MemberRef(insns[i+1].Imm.(classfile.RefImm).Index)
				if err == nil && owner == c.Name() {
					st.field = fname
				}
			}
			// stores the original code made are plain literals
			if st.field != "" && !injected(orig, c, st.field) {
				st.field = ""
			}
			out = append(out, st)
		}
	}
	return out, nil
}

// injected reports whether field name held a string constant in orig and
// lost it in out, which marks it as assigned by an injected block.
func injected(orig, out *classfile.Class, name string) bool {
	if _, ok := constantValue(orig, name); !ok {
		return false
	}
	for _, f := range out.Fields {
		if f.NameString(out.Pool) == name {
			_, ok := f.ConstantValue(out.Pool)
			return !ok
		}
	}
	return false
}

func stringLiterals(c *classfile.Class, m *classfile.Method) ([]string, error) {
	insns, err := classfile.DecodeInstructions(m.Code.Bytecode)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, in := range insns {
		if in.Opcode != classfile.OpLdc && in.Opcode != classfile.OpLdcW {
			continue
		}
		idx := in.Imm.(classfile.ConstImm).Index
		if c.Pool.Tag(idx) != classfile.TagString {
			continue
		}
		s, err := c.Pool.StringValue(idx)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func constantValue(c *classfile.Class, field string) (string, bool) {
	for _, f := range c.Fields {
		if f.NameString(c.Pool) != field {
			continue
		}
		idx, ok := f.ConstantValue(c.Pool)
		if !ok || c.Pool.Tag(idx) != classfile.TagString {
			return "", false
		}
		s, err := c.Pool.StringValue(idx)
		return s, err == nil
	}
	return "", false
}
