package engine

import (
	"bytes"

	"github.com/wippyai/muddy/classfile"
	"go.uber.org/zap"
)

// refs records which constant pool entries a class still uses.
type refs struct {
	strings map[uint16]bool
	utf8    map[uint16]bool
	// opaque holds attribute payloads whose layout is not parsed; any
	// occurrence of an index as a big-endian u2 counts as a use.
	opaque [][]byte
}

func (r *refs) addOpaque(data []byte) {
	if len(data) >= 2 {
		r.opaque = append(r.opaque, data)
	}
}

func (r *refs) inOpaque(idx uint16) bool {
	pat := []byte{byte(idx >> 8), byte(idx)}
	for _, data := range r.opaque {
		if bytes.Contains(data, pat) {
			return true
		}
	}
	return false
}

// scrub blanks the Utf8 entries behind rewritten String constants that
// the class no longer references, and returns how many were blanked.
func scrub(c *classfile.Class, rewritten map[uint16]bool) int {
	pool := c.Pool
	r, ok := collectRefs(c)
	if !ok {
		return 0
	}

	dead := make(map[uint16]bool)
	for idx := range rewritten {
		if !r.strings[idx] && !r.inOpaque(idx) {
			dead[idx] = true
		}
	}
	if len(dead) == 0 {
		return 0
	}

	for i := 1; i < pool.Count(); i++ {
		k, err := pool.Get(uint16(i))
		if err != nil {
			continue
		}
		switch k.Tag {
		case classfile.TagString:
			if !dead[uint16(i)] {
				r.utf8[k.Ref1] = true
			}
		case classfile.TagClass, classfile.TagMethodType, classfile.TagModule, classfile.TagPackage:
			r.utf8[k.Ref1] = true
		case classfile.TagNameAndType:
			r.utf8[k.Ref1] = true
			r.utf8[k.Ref2] = true
		}
	}

	n := 0
	for idx := range dead {
		k, err := pool.Get(idx)
		if err != nil {
			continue
		}
		u := k.Ref1
		if r.utf8[u] || r.inOpaque(u) {
			continue
		}
		if err := pool.Blank(u); err != nil {
			Logger().Debug("blank failed", zap.Uint16("index", u), zap.Error(err))
			continue
		}
		r.utf8[u] = true
		n++
	}
	return n
}

// collectRefs walks every structure of c that can name a pool entry. It
// returns false when a method body cannot be decoded, in which case
// nothing can be proven unused.
func collectRefs(c *classfile.Class) (*refs, bool) {
	pool := c.Pool
	r := &refs{strings: make(map[uint16]bool), utf8: make(map[uint16]bool)}

	attrs := func(list []classfile.Attribute, skip ...string) {
		for _, a := range list {
			r.utf8[a.Name] = true
			name, _ := pool.Utf8(a.Name)
			parsed := false
			for _, s := range skip {
				if name == s {
					parsed = true
				}
			}
			if !parsed {
				r.addOpaque(a.Data)
			}
		}
	}

	attrs(c.Attributes, classfile.AttrBootstrapMethods)
	if i := classfile.FindAttribute(pool, c.Attributes, classfile.AttrBootstrapMethods); i >= 0 {
		if !bootstrapArgs(c.Attributes[i].Data, r.strings) {
			r.addOpaque(c.Attributes[i].Data)
		}
	}

	for _, f := range c.Fields {
		r.utf8[f.Name] = true
		r.utf8[f.Descriptor] = true
		attrs(f.Attributes, classfile.AttrConstantValue)
		if idx, ok := f.ConstantValue(pool); ok {
			r.strings[idx] = true
		}
	}

	for _, m := range c.Methods {
		r.utf8[m.Name] = true
		r.utf8[m.Descriptor] = true
		if m.Code == nil {
			attrs(m.Attributes)
			continue
		}
		attrs(m.Attributes, classfile.AttrCode)
		attrs(m.Code.Attributes)
		insns, err := classfile.DecodeInstructions(m.Code.Bytecode)
		if err != nil {
			return nil, false
		}
		for _, in := range insns {
			if idx, ok := stringLdc(pool, in); ok {
				r.strings[idx] = true
			}
		}
	}
	return r, true
}

// bootstrapArgs marks the static arguments of a BootstrapMethods payload.
func bootstrapArgs(data []byte, out map[uint16]bool) bool {
	u2 := func(i int) (uint16, bool) {
		if i+2 > len(data) {
			return 0, false
		}
		return uint16(data[i])<<8 | uint16(data[i+1]), true
	}
	n, ok := u2(0)
	if !ok {
		return false
	}
	pos := 2
	for range n {
		argc, ok := u2(pos + 2)
		if !ok {
			return false
		}
		pos += 4
		for range argc {
			arg, ok := u2(pos)
			if !ok {
				return false
			}
			out[arg] = true
			pos += 2
		}
	}
	return true
}
