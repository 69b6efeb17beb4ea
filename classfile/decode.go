package classfile

import (
	"errors"
	"fmt"

	"github.com/wippyai/muddy/classfile/internal/binary"
)

// Parsing errors returned by ParseClass.
var (
	ErrInvalidMagic    = errors.New("invalid class file magic number")
	ErrTrailingData    = errors.New("trailing data after class file")
	ErrInvalidConstant = errors.New("invalid constant pool tag")
)

// ParseClass parses a class file.
func ParseClass(data []byte) (*Class, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU4()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}

	c := &Class{}
	if c.Minor, err = r.ReadU2(); err != nil {
		return nil, r.WrapError("header", err)
	}
	if c.Major, err = r.ReadU2(); err != nil {
		return nil, r.WrapError("header", err)
	}

	if c.Pool, err = parseConstantPool(r); err != nil {
		return nil, r.WrapError("constant_pool", err)
	}

	access, err := r.ReadU2()
	if err != nil {
		return nil, r.WrapError("access_flags", err)
	}
	c.Access = AccessFlags(access)
	if c.This, err = r.ReadU2(); err != nil {
		return nil, r.WrapError("this_class", err)
	}
	if c.Super, err = r.ReadU2(); err != nil {
		return nil, r.WrapError("super_class", err)
	}

	n, err := r.ReadU2()
	if err != nil {
		return nil, r.WrapError("interfaces", err)
	}
	c.Interfaces = make([]uint16, n)
	for i := range c.Interfaces {
		if c.Interfaces[i], err = r.ReadU2(); err != nil {
			return nil, r.WrapError("interfaces", err)
		}
	}

	if n, err = r.ReadU2(); err != nil {
		return nil, r.WrapError("fields", err)
	}
	c.Fields = make([]*Field, n)
	for i := range c.Fields {
		f := &Field{}
		if f.Access, f.Name, f.Descriptor, f.Attributes, err = parseMember(r); err != nil {
			return nil, r.WrapError("fields", err)
		}
		c.Fields[i] = f
	}

	if n, err = r.ReadU2(); err != nil {
		return nil, r.WrapError("methods", err)
	}
	c.Methods = make([]*Method, n)
	for i := range c.Methods {
		m := &Method{}
		if m.Access, m.Name, m.Descriptor, m.Attributes, err = parseMember(r); err != nil {
			return nil, r.WrapError("methods", err)
		}
		if idx := FindAttribute(c.Pool, m.Attributes, AttrCode); idx >= 0 {
			if m.Code, err = ParseCode(m.Attributes[idx].Data); err != nil {
				return nil, fmt.Errorf("method %s: %w", m.NameString(c.Pool), err)
			}
		}
		c.Methods[i] = m
	}

	if c.Attributes, err = parseAttributes(r); err != nil {
		return nil, r.WrapError("attributes", err)
	}
	if r.Remaining() != 0 {
		return nil, r.WrapError("attributes", ErrTrailingData)
	}
	return c, nil
}

func parseConstantPool(r *binary.Reader) (*ConstantPool, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: constant_pool_count is 0", ErrBadIndex)
	}
	p := &ConstantPool{entries: make([]Constant, 1, count)}
	for len(p.entries) < int(count) {
		tag, err := r.ReadU1()
		if err != nil {
			return nil, err
		}
		c := Constant{Tag: tag}
		switch tag {
		case TagUtf8:
			n, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			if c.Raw, err = r.ReadBytes(int(n)); err != nil {
				return nil, err
			}
		case TagInteger, TagFloat:
			v, err := r.ReadU4()
			if err != nil {
				return nil, err
			}
			c.Bits = uint64(v)
		case TagLong, TagDouble:
			if c.Bits, err = r.ReadU8(); err != nil {
				return nil, err
			}
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			if c.Ref1, err = r.ReadU2(); err != nil {
				return nil, err
			}
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType,
			TagDynamic, TagInvokeDynamic:
			if c.Ref1, err = r.ReadU2(); err != nil {
				return nil, err
			}
			if c.Ref2, err = r.ReadU2(); err != nil {
				return nil, err
			}
		case TagMethodHandle:
			if c.Kind, err = r.ReadU1(); err != nil {
				return nil, err
			}
			if c.Ref1, err = r.ReadU2(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w %d at index %d", ErrInvalidConstant, tag, len(p.entries))
		}
		p.entries = append(p.entries, c)
		if tag == TagLong || tag == TagDouble {
			if len(p.entries) >= int(count) {
				return nil, fmt.Errorf("%w: wide constant in last slot", ErrBadIndex)
			}
			p.entries = append(p.entries, Constant{})
		}
	}
	return p, nil
}

func parseMember(r *binary.Reader) (AccessFlags, uint16, uint16, []Attribute, error) {
	access, err := r.ReadU2()
	if err != nil {
		return 0, 0, 0, nil, err
	}
	name, err := r.ReadU2()
	if err != nil {
		return 0, 0, 0, nil, err
	}
	desc, err := r.ReadU2()
	if err != nil {
		return 0, 0, 0, nil, err
	}
	attrs, err := parseAttributes(r)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	return AccessFlags(access), name, desc, attrs, nil
}

func parseAttributes(r *binary.Reader) ([]Attribute, error) {
	n, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	attrs := make([]Attribute, n)
	for i := range attrs {
		if attrs[i].Name, err = r.ReadU2(); err != nil {
			return nil, err
		}
		size, err := r.ReadU4()
		if err != nil {
			return nil, err
		}
		if int64(size) > int64(r.Remaining()) {
			return nil, binary.ErrShortRead
		}
		if attrs[i].Data, err = r.ReadBytes(int(size)); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

// ParseCode parses the payload of a Code attribute.
func ParseCode(data []byte) (*Code, error) {
	r := binary.NewReader(data)
	c := &Code{raw: data}
	var err error
	if c.MaxStack, err = r.ReadU2(); err != nil {
		return nil, r.WrapError(AttrCode, err)
	}
	if c.MaxLocals, err = r.ReadU2(); err != nil {
		return nil, r.WrapError(AttrCode, err)
	}
	n, err := r.ReadU4()
	if err != nil {
		return nil, r.WrapError(AttrCode, err)
	}
	if n == 0 || n > MaxCodeLength {
		return nil, r.WrapError(AttrCode, fmt.Errorf("%w: code length %d", ErrCodeTooLarge, n))
	}
	if c.Bytecode, err = r.ReadBytes(int(n)); err != nil {
		return nil, r.WrapError(AttrCode, err)
	}
	hn, err := r.ReadU2()
	if err != nil {
		return nil, r.WrapError("exception_table", err)
	}
	c.Handlers = make([]Handler, hn)
	for i := range c.Handlers {
		var v [4]uint16
		for j := range v {
			if v[j], err = r.ReadU2(); err != nil {
				return nil, r.WrapError("exception_table", err)
			}
		}
		c.Handlers[i] = Handler{StartPC: int(v[0]), EndPC: int(v[1]), HandlerPC: int(v[2]), CatchType: v[3]}
	}
	if c.Attributes, err = parseAttributes(r); err != nil {
		return nil, r.WrapError("code attributes", err)
	}
	if r.Remaining() != 0 {
		return nil, r.WrapError(AttrCode, ErrTrailingData)
	}
	return c, nil
}
