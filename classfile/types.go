package classfile

// Class is a parsed class file.
type Class struct {
	Pool       *ConstantPool
	Interfaces []uint16
	Fields     []*Field
	Methods    []*Method
	Attributes []Attribute
	Minor      uint16
	Major      uint16
	Access     AccessFlags
	This       uint16
	Super      uint16
}

// Attribute is an attribute kept as its raw payload.
type Attribute struct {
	Data []byte
	Name uint16
}

// Field is a field_info structure.
type Field struct {
	Attributes []Attribute
	Access     AccessFlags
	Name       uint16
	Descriptor uint16
}

// Method is a method_info structure. The Code attribute, when present, is
// parsed into Code and its slot in Attributes is kept so the attribute
// order survives a round trip.
type Method struct {
	Code       *Code
	Attributes []Attribute
	Access     AccessFlags
	Name       uint16
	Descriptor uint16
}

// Handler is one exception table entry. StartPC, EndPC and HandlerPC are
// byte offsets into the bytecode of the Code that owns the handler.
type Handler struct {
	StartPC   int
	EndPC     int
	HandlerPC int
	CatchType uint16
}

// Code is a parsed Code attribute.
type Code struct {
	Bytecode   []byte
	Handlers   []Handler
	Attributes []Attribute
	MaxStack   uint16
	MaxLocals  uint16

	// raw holds the original attribute payload until the code is
	// reassembled.
	raw []byte
}

// Modified reports whether the code no longer matches the attribute bytes
// it was parsed from.
func (c *Code) Modified() bool {
	return c.raw == nil
}

// Name returns the internal name of the class.
func (c *Class) Name() string {
	name, _ := c.Pool.ClassName(c.This)
	return name
}

// SuperName returns the internal name of the superclass, or "" for
// java/lang/Object.
func (c *Class) SuperName() string {
	if c.Super == 0 {
		return ""
	}
	name, _ := c.Pool.ClassName(c.Super)
	return name
}

// FindMethod returns the method with the given name and descriptor.
func (c *Class) FindMethod(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.NameString(c.Pool) == name && m.DescriptorString(c.Pool) == desc {
			return m
		}
	}
	return nil
}

// FindAttribute returns the index of the first attribute named name in
// attrs, or -1.
func FindAttribute(pool *ConstantPool, attrs []Attribute, name string) int {
	for i, a := range attrs {
		if n, err := pool.Utf8(a.Name); err == nil && n == name {
			return i
		}
	}
	return -1
}

// NameString returns the field name.
func (f *Field) NameString(pool *ConstantPool) string {
	s, _ := pool.Utf8(f.Name)
	return s
}

// DescriptorString returns the field descriptor.
func (f *Field) DescriptorString(pool *ConstantPool) string {
	s, _ := pool.Utf8(f.Descriptor)
	return s
}

// ConstantValue returns the pool index held by the field's ConstantValue
// attribute.
func (f *Field) ConstantValue(pool *ConstantPool) (uint16, bool) {
	i := FindAttribute(pool, f.Attributes, AttrConstantValue)
	if i < 0 || len(f.Attributes[i].Data) != 2 {
		return 0, false
	}
	d := f.Attributes[i].Data
	return uint16(d[0])<<8 | uint16(d[1]), true
}

// ClearConstantValue removes every ConstantValue attribute from the field.
func (f *Field) ClearConstantValue(pool *ConstantPool) {
	out := f.Attributes[:0:0]
	for _, a := range f.Attributes {
		if n, _ := pool.Utf8(a.Name); n == AttrConstantValue {
			continue
		}
		out = append(out, a)
	}
	f.Attributes = out
}

// NameString returns the method name.
func (m *Method) NameString(pool *ConstantPool) string {
	s, _ := pool.Utf8(m.Name)
	return s
}

// DescriptorString returns the method descriptor.
func (m *Method) DescriptorString(pool *ConstantPool) string {
	s, _ := pool.Utf8(m.Descriptor)
	return s
}
