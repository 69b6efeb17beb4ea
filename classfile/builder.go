package classfile

// NewClass returns an empty class with the given name and superclass.
func NewClass(major uint16, access AccessFlags, name, super string) (*Class, error) {
	c := &Class{Pool: NewConstantPool(), Major: major, Access: access}
	var err error
	if c.This, err = c.Pool.AddClass(name); err != nil {
		return nil, err
	}
	if super != "" {
		if c.Super, err = c.Pool.AddClass(super); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddField appends a field declaration.
func (c *Class) AddField(access AccessFlags, name, desc string) (*Field, error) {
	f := &Field{Access: access}
	var err error
	if f.Name, err = c.Pool.AddUtf8(name); err != nil {
		return nil, err
	}
	if f.Descriptor, err = c.Pool.AddUtf8(desc); err != nil {
		return nil, err
	}
	c.Fields = append(c.Fields, f)
	return f, nil
}

// SetConstantValue replaces the field's ConstantValue attribute with one
// pointing at pool index idx.
func (f *Field) SetConstantValue(pool *ConstantPool, idx uint16) error {
	f.ClearConstantValue(pool)
	name, err := pool.AddUtf8(AttrConstantValue)
	if err != nil {
		return err
	}
	f.Attributes = append(f.Attributes, Attribute{Name: name, Data: []byte{byte(idx >> 8), byte(idx)}})
	return nil
}

// AddMethod appends a method. code may be nil for abstract and native
// methods.
func (c *Class) AddMethod(access AccessFlags, name, desc string, code *Code) (*Method, error) {
	m := &Method{Access: access, Code: code}
	var err error
	if m.Name, err = c.Pool.AddUtf8(name); err != nil {
		return nil, err
	}
	if m.Descriptor, err = c.Pool.AddUtf8(desc); err != nil {
		return nil, err
	}
	if code != nil {
		attr, err := c.Pool.AddUtf8(AttrCode)
		if err != nil {
			return nil, err
		}
		m.Attributes = append(m.Attributes, Attribute{Name: attr})
	}
	c.Methods = append(c.Methods, m)
	return m, nil
}
