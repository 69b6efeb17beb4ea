package classfile

import (
	"errors"
	"fmt"
	"math"
)

// ErrPoolOverflow is returned when an entry would push the constant pool
// past 65535 slots.
var ErrPoolOverflow = errors.New("constant pool overflow")

// ErrBadIndex is returned for a pool index that is out of range or has the
// wrong tag.
var ErrBadIndex = errors.New("bad constant pool index")

// Constant is one constant pool entry. Which fields are meaningful depends
// on Tag:
//
//	Utf8                  Raw
//	Integer, Float        Bits (low 32 bits)
//	Long, Double          Bits
//	Class, String,
//	MethodType, Module,
//	Package               Ref1
//	Fieldref, Methodref,
//	InterfaceMethodref    Ref1 = class, Ref2 = name and type
//	NameAndType           Ref1 = name, Ref2 = descriptor
//	MethodHandle          Kind, Ref1 = reference
//	Dynamic,
//	InvokeDynamic         Ref1 = bootstrap method, Ref2 = name and type
//
// The slot following a Long or Double has Tag 0.
type Constant struct {
	Raw  []byte
	Bits uint64
	Ref1 uint16
	Ref2 uint16
	Tag  byte
	Kind byte
}

type poolKey struct {
	raw  string
	bits uint64
	ref1 uint16
	ref2 uint16
	tag  byte
	kind byte
}

// ConstantPool is an append-only constant pool. Existing indices never
// move; adders reuse an equal entry when one exists.
type ConstantPool struct {
	entries []Constant
	lookup  map[poolKey]uint16
}

// NewConstantPool returns an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{entries: make([]Constant, 1)}
}

// Count returns constant_pool_count, one more than the highest index.
func (p *ConstantPool) Count() int {
	return len(p.entries)
}

// Free returns the number of slots that can still be added.
func (p *ConstantPool) Free() int {
	return MaxPoolSize - len(p.entries)
}

// Get returns the entry at index i.
func (p *ConstantPool) Get(i uint16) (*Constant, error) {
	if i == 0 || int(i) >= len(p.entries) || p.entries[i].Tag == 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadIndex, i)
	}
	return &p.entries[i], nil
}

// Tag returns the tag at index i, or 0 when i is not a valid entry.
func (p *ConstantPool) Tag(i uint16) byte {
	if i == 0 || int(i) >= len(p.entries) {
		return 0
	}
	return p.entries[i].Tag
}

func (p *ConstantPool) typed(i uint16, tag byte) (*Constant, error) {
	c, err := p.Get(i)
	if err != nil {
		return nil, err
	}
	if c.Tag != tag {
		return nil, fmt.Errorf("%w: %d has tag %d, want %d", ErrBadIndex, i, c.Tag, tag)
	}
	return c, nil
}

// Utf8 returns the decoded CONSTANT_Utf8 at index i.
func (p *ConstantPool) Utf8(i uint16) (string, error) {
	c, err := p.typed(i, TagUtf8)
	if err != nil {
		return "", err
	}
	return DecodeMUTF8(c.Raw)
}

// ClassName returns the internal name of the CONSTANT_Class at index i.
func (p *ConstantPool) ClassName(i uint16) (string, error) {
	c, err := p.typed(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.Ref1)
}

// StringValue returns the literal of the CONSTANT_String at index i.
func (p *ConstantPool) StringValue(i uint16) (string, error) {
	c, err := p.typed(i, TagString)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.Ref1)
}

// NameAndType returns the name and descriptor of the entry at index i.
func (p *ConstantPool) NameAndType(i uint16) (name, desc string, err error) {
	c, err := p.typed(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.Utf8(c.Ref1); err != nil {
		return "", "", err
	}
	desc, err = p.Utf8(c.Ref2)
	return name, desc, err
}

// MemberRef resolves a Fieldref, Methodref or InterfaceMethodref.
func (p *ConstantPool) MemberRef(i uint16) (class, name, desc string, err error) {
	c, err := p.Get(i)
	if err != nil {
		return "", "", "", err
	}
	switch c.Tag {
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
	default:
		return "", "", "", fmt.Errorf("%w: %d is not a member reference", ErrBadIndex, i)
	}
	if class, err = p.ClassName(c.Ref1); err != nil {
		return "", "", "", err
	}
	name, desc, err = p.NameAndType(c.Ref2)
	return class, name, desc, err
}

// DynamicNameAndType resolves the name and type of an InvokeDynamic or
// Dynamic entry.
func (p *ConstantPool) DynamicNameAndType(i uint16) (name, desc string, err error) {
	c, err := p.Get(i)
	if err != nil {
		return "", "", err
	}
	if c.Tag != TagInvokeDynamic && c.Tag != TagDynamic {
		return "", "", fmt.Errorf("%w: %d is not dynamic", ErrBadIndex, i)
	}
	return p.NameAndType(c.Ref2)
}

// Long returns the value of the CONSTANT_Long at index i.
func (p *ConstantPool) Long(i uint16) (int64, error) {
	c, err := p.typed(i, TagLong)
	if err != nil {
		return 0, err
	}
	return int64(c.Bits), nil
}

// Blank replaces the contents of the CONSTANT_Utf8 at index i with the
// empty string. Indices do not change.
func (p *ConstantPool) Blank(i uint16) error {
	c, err := p.typed(i, TagUtf8)
	if err != nil {
		return err
	}
	if p.lookup != nil {
		delete(p.lookup, keyOf(c))
	}
	c.Raw = []byte{}
	return nil
}

// append adds c without de-duplication and returns its index.
func (p *ConstantPool) append(c Constant) (uint16, error) {
	width := 1
	if c.Tag == TagLong || c.Tag == TagDouble {
		width = 2
	}
	if len(p.entries)+width > MaxPoolSize {
		return 0, ErrPoolOverflow
	}
	idx := uint16(len(p.entries))
	p.entries = append(p.entries, c)
	if width == 2 {
		p.entries = append(p.entries, Constant{})
	}
	return idx, nil
}

func keyOf(c *Constant) poolKey {
	return poolKey{tag: c.Tag, raw: string(c.Raw), bits: c.Bits, ref1: c.Ref1, ref2: c.Ref2, kind: c.Kind}
}

func (p *ConstantPool) intern(c Constant) (uint16, error) {
	if p.lookup == nil {
		p.lookup = make(map[poolKey]uint16, len(p.entries))
		for i := 1; i < len(p.entries); i++ {
			e := &p.entries[i]
			if e.Tag == 0 {
				continue
			}
			k := keyOf(e)
			if _, ok := p.lookup[k]; !ok {
				p.lookup[k] = uint16(i)
			}
		}
	}
	k := keyOf(&c)
	if idx, ok := p.lookup[k]; ok {
		return idx, nil
	}
	idx, err := p.append(c)
	if err != nil {
		return 0, err
	}
	p.lookup[k] = idx
	return idx, nil
}

// AddUtf8 returns the index of a CONSTANT_Utf8 holding s.
func (p *ConstantPool) AddUtf8(s string) (uint16, error) {
	raw := EncodeMUTF8(s)
	if len(raw) > math.MaxUint16 {
		return 0, fmt.Errorf("utf8 constant of %d bytes exceeds 65535", len(raw))
	}
	return p.intern(Constant{Tag: TagUtf8, Raw: raw})
}

// AddClass returns the index of a CONSTANT_Class for an internal name.
func (p *ConstantPool) AddClass(name string) (uint16, error) {
	n, err := p.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	return p.intern(Constant{Tag: TagClass, Ref1: n})
}

// AddString returns the index of a CONSTANT_String for s.
func (p *ConstantPool) AddString(s string) (uint16, error) {
	n, err := p.AddUtf8(s)
	if err != nil {
		return 0, err
	}
	return p.intern(Constant{Tag: TagString, Ref1: n})
}

// AddLong returns the index of a CONSTANT_Long for v.
func (p *ConstantPool) AddLong(v int64) (uint16, error) {
	return p.intern(Constant{Tag: TagLong, Bits: uint64(v)})
}

// AddNameAndType returns the index of a CONSTANT_NameAndType.
func (p *ConstantPool) AddNameAndType(name, desc string) (uint16, error) {
	n, err := p.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	d, err := p.AddUtf8(desc)
	if err != nil {
		return 0, err
	}
	return p.intern(Constant{Tag: TagNameAndType, Ref1: n, Ref2: d})
}

func (p *ConstantPool) addMember(tag byte, class, name, desc string) (uint16, error) {
	c, err := p.AddClass(class)
	if err != nil {
		return 0, err
	}
	nt, err := p.AddNameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	return p.intern(Constant{Tag: tag, Ref1: c, Ref2: nt})
}

// AddFieldref returns the index of a CONSTANT_Fieldref.
func (p *ConstantPool) AddFieldref(class, name, desc string) (uint16, error) {
	return p.addMember(TagFieldref, class, name, desc)
}

// AddMethodref returns the index of a CONSTANT_Methodref.
func (p *ConstantPool) AddMethodref(class, name, desc string) (uint16, error) {
	return p.addMember(TagMethodref, class, name, desc)
}

// Clone returns a deep copy of the pool.
func (p *ConstantPool) Clone() *ConstantPool {
	out := &ConstantPool{entries: make([]Constant, len(p.entries))}
	copy(out.entries, p.entries)
	for i := range out.entries {
		if raw := out.entries[i].Raw; raw != nil {
			out.entries[i].Raw = append([]byte(nil), raw...)
		}
	}
	return out
}
