package classfile

import "fmt"

// Validate checks that every constant pool reference in the class is in
// range and points at an entry of the expected kind.
func (c *Class) Validate() error {
	if err := c.validatePool(); err != nil {
		return err
	}
	if err := c.validateHeader(); err != nil {
		return err
	}
	if err := c.validateMembers(); err != nil {
		return err
	}
	return c.validateAttributes(c.Attributes, "class")
}

// ParseClassValidate parses a class file and validates it.
func ParseClassValidate(data []byte) (*Class, error) {
	c, err := ParseClass(data)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Class) expect(i uint16, tags ...byte) error {
	got := c.Pool.Tag(i)
	for _, t := range tags {
		if got == t {
			return nil
		}
	}
	return fmt.Errorf("%w: #%d has tag %d, want one of %v", ErrBadIndex, i, got, tags)
}

func (c *Class) validatePool() error {
	p := c.Pool
	for i := 1; i < p.Count(); i++ {
		e := &p.entries[i]
		var err error
		switch e.Tag {
		case 0, TagUtf8, TagInteger, TagFloat, TagLong, TagDouble:
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			err = c.expect(e.Ref1, TagUtf8)
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			if err = c.expect(e.Ref1, TagClass); err == nil {
				err = c.expect(e.Ref2, TagNameAndType)
			}
		case TagNameAndType:
			if err = c.expect(e.Ref1, TagUtf8); err == nil {
				err = c.expect(e.Ref2, TagUtf8)
			}
		case TagMethodHandle:
			if e.Kind < 1 || e.Kind > 9 {
				err = fmt.Errorf("method handle kind %d", e.Kind)
			} else {
				err = c.expect(e.Ref1, TagFieldref, TagMethodref, TagInterfaceMethodref)
			}
		case TagDynamic, TagInvokeDynamic:
			err = c.expect(e.Ref2, TagNameAndType)
		default:
			err = fmt.Errorf("%w %d", ErrInvalidConstant, e.Tag)
		}
		if err != nil {
			return fmt.Errorf("constant pool entry %d: %w", i, err)
		}
	}
	return nil
}

func (c *Class) validateHeader() error {
	if err := c.expect(c.This, TagClass); err != nil {
		return fmt.Errorf("this_class: %w", err)
	}
	if c.Super != 0 {
		if err := c.expect(c.Super, TagClass); err != nil {
			return fmt.Errorf("super_class: %w", err)
		}
	}
	for i, idx := range c.Interfaces {
		if err := c.expect(idx, TagClass); err != nil {
			return fmt.Errorf("interface %d: %w", i, err)
		}
	}
	return nil
}

func (c *Class) validateMembers() error {
	for i, f := range c.Fields {
		if err := c.expect(f.Name, TagUtf8); err != nil {
			return fmt.Errorf("field %d name: %w", i, err)
		}
		if err := c.expect(f.Descriptor, TagUtf8); err != nil {
			return fmt.Errorf("field %d descriptor: %w", i, err)
		}
		if !ValidFieldDescriptor(f.DescriptorString(c.Pool)) {
			return fmt.Errorf("field %d: %w %q", i, ErrBadDescriptor, f.DescriptorString(c.Pool))
		}
		if idx, ok := f.ConstantValue(c.Pool); ok {
			if err := c.expect(idx, TagInteger, TagFloat, TagLong, TagDouble, TagString); err != nil {
				return fmt.Errorf("field %s ConstantValue: %w", f.NameString(c.Pool), err)
			}
		}
		if err := c.validateAttributes(f.Attributes, "field "+f.NameString(c.Pool)); err != nil {
			return err
		}
	}
	for i, m := range c.Methods {
		if err := c.expect(m.Name, TagUtf8); err != nil {
			return fmt.Errorf("method %d name: %w", i, err)
		}
		if err := c.expect(m.Descriptor, TagUtf8); err != nil {
			return fmt.Errorf("method %d descriptor: %w", i, err)
		}
		if _, err := ParseMethodDescriptor(m.DescriptorString(c.Pool)); err != nil {
			return fmt.Errorf("method %s: %w", m.NameString(c.Pool), err)
		}
		where := "method " + m.NameString(c.Pool)
		if err := c.validateAttributes(m.Attributes, where); err != nil {
			return err
		}
		if m.Code != nil {
			if err := c.validateAttributes(m.Code.Attributes, where+" code"); err != nil {
				return err
			}
			for _, h := range m.Code.Handlers {
				if h.CatchType != 0 {
					if err := c.expect(h.CatchType, TagClass); err != nil {
						return fmt.Errorf("%s catch type: %w", where, err)
					}
				}
			}
		}
	}
	return nil
}

func (c *Class) validateAttributes(attrs []Attribute, where string) error {
	for i, a := range attrs {
		if err := c.expect(a.Name, TagUtf8); err != nil {
			return fmt.Errorf("%s attribute %d: %w", where, i, err)
		}
	}
	return nil
}
