package classfile

import (
	"fmt"

	"github.com/wippyai/muddy/classfile/internal/binary"
)

// Encode serializes the class. Methods whose code was not reassembled
// are written from their original bytes.
func (c *Class) Encode() ([]byte, error) {
	if c.Pool.Count() > MaxPoolSize {
		return nil, ErrPoolOverflow
	}
	w := binary.NewWriter()
	w.U4(Magic)
	w.U2(c.Minor)
	w.U2(c.Major)

	encodeConstantPool(w, c.Pool)

	w.U2(uint16(c.Access))
	w.U2(c.This)
	w.U2(c.Super)
	w.U2(uint16(len(c.Interfaces)))
	for _, i := range c.Interfaces {
		w.U2(i)
	}

	w.U2(uint16(len(c.Fields)))
	for _, f := range c.Fields {
		w.U2(uint16(f.Access))
		w.U2(f.Name)
		w.U2(f.Descriptor)
		if err := encodeAttributes(w, f.Attributes); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.NameString(c.Pool), err)
		}
	}

	w.U2(uint16(len(c.Methods)))
	for _, m := range c.Methods {
		w.U2(uint16(m.Access))
		w.U2(m.Name)
		w.U2(m.Descriptor)
		attrs, err := m.attributesForEncode(c.Pool)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", m.NameString(c.Pool), err)
		}
		if err := encodeAttributes(w, attrs); err != nil {
			return nil, fmt.Errorf("method %s: %w", m.NameString(c.Pool), err)
		}
	}

	if err := encodeAttributes(w, c.Attributes); err != nil {
		return nil, fmt.Errorf("class attributes: %w", err)
	}
	return w.Bytes(), nil
}

func (m *Method) attributesForEncode(pool *ConstantPool) ([]Attribute, error) {
	if m.Code == nil {
		return m.Attributes, nil
	}
	data, err := m.Code.Bytes()
	if err != nil {
		return nil, err
	}
	attrs := make([]Attribute, len(m.Attributes))
	copy(attrs, m.Attributes)
	if i := FindAttribute(pool, attrs, AttrCode); i >= 0 {
		attrs[i].Data = data
		return attrs, nil
	}
	name, err := pool.AddUtf8(AttrCode)
	if err != nil {
		return nil, err
	}
	return append(attrs, Attribute{Name: name, Data: data}), nil
}

func encodeConstantPool(w *binary.Writer, p *ConstantPool) {
	w.U2(uint16(p.Count()))
	for i := 1; i < len(p.entries); i++ {
		c := &p.entries[i]
		if c.Tag == 0 {
			continue
		}
		w.U1(c.Tag)
		switch c.Tag {
		case TagUtf8:
			w.U2(uint16(len(c.Raw)))
			w.WriteBytes(c.Raw)
		case TagInteger, TagFloat:
			w.U4(uint32(c.Bits))
		case TagLong, TagDouble:
			w.U8(c.Bits)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.U2(c.Ref1)
		case TagMethodHandle:
			w.U1(c.Kind)
			w.U2(c.Ref1)
		default:
			w.U2(c.Ref1)
			w.U2(c.Ref2)
		}
	}
}

func encodeAttributes(w *binary.Writer, attrs []Attribute) error {
	w.U2(uint16(len(attrs)))
	for _, a := range attrs {
		if int64(len(a.Data)) > int64(^uint32(0)) {
			return fmt.Errorf("attribute of %d bytes", len(a.Data))
		}
		w.U2(a.Name)
		w.U4(uint32(len(a.Data)))
		w.WriteBytes(a.Data)
	}
	return nil
}

// Bytes returns the Code attribute payload.
func (c *Code) Bytes() ([]byte, error) {
	if c.raw != nil {
		return c.raw, nil
	}
	if len(c.Bytecode) == 0 || len(c.Bytecode) > MaxCodeLength {
		return nil, fmt.Errorf("%w: code length %d", ErrCodeTooLarge, len(c.Bytecode))
	}
	w := binary.NewWriter()
	w.U2(c.MaxStack)
	w.U2(c.MaxLocals)
	w.U4(uint32(len(c.Bytecode)))
	w.WriteBytes(c.Bytecode)
	w.U2(uint16(len(c.Handlers)))
	for _, h := range c.Handlers {
		w.U2(uint16(h.StartPC))
		w.U2(uint16(h.EndPC))
		w.U2(uint16(h.HandlerPC))
		w.U2(h.CatchType)
	}
	if err := encodeAttributes(w, c.Attributes); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
