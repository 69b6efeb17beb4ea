package classfile

import (
	"errors"
	"testing"
)

func TestConstantPoolDeduplicates(t *testing.T) {
	p := NewConstantPool()

	a, err := p.AddUtf8("hello")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := p.AddUtf8("hello")
	if a != b {
		t.Errorf("AddUtf8 twice: %d != %d", a, b)
	}

	m1, err := p.AddMethodref("com/app/D", "<init>", "([J)V")
	if err != nil {
		t.Fatal(err)
	}
	m2, _ := p.AddMethodref("com/app/D", "<init>", "([J)V")
	if m1 != m2 {
		t.Errorf("AddMethodref twice: %d != %d", m1, m2)
	}
	class, name, desc, err := p.MemberRef(m1)
	if err != nil {
		t.Fatal(err)
	}
	if class != "com/app/D" || name != "<init>" || desc != "([J)V" {
		t.Errorf("MemberRef = %s.%s%s", class, name, desc)
	}

	f, _ := p.AddFieldref("com/app/D", "<init>", "([J)V")
	if f == m1 || p.Tag(f) != TagFieldref {
		t.Errorf("Fieldref must not reuse Methodref entry")
	}

	s, _ := p.AddString("hello")
	if v, err := p.StringValue(s); err != nil || v != "hello" {
		t.Errorf("StringValue = %q, %v", v, err)
	}
	if c, _ := p.Get(s); c.Ref1 != a {
		t.Errorf("String should reuse Utf8 #%d, got #%d", a, c.Ref1)
	}
}

func TestConstantPoolWideEntries(t *testing.T) {
	p := NewConstantPool()
	l, err := p.AddLong(-42)
	if err != nil {
		t.Fatal(err)
	}
	next, _ := p.AddUtf8("after")
	if next != l+2 {
		t.Errorf("entry after long at %d, want %d", next, l+2)
	}
	if v, err := p.Long(l); err != nil || v != -42 {
		t.Errorf("Long = %d, %v", v, err)
	}
	if _, err := p.Get(l + 1); !errors.Is(err, ErrBadIndex) {
		t.Errorf("Get of long upper slot: %v, want ErrBadIndex", err)
	}
}

func TestConstantPoolOverflow(t *testing.T) {
	p := NewConstantPool()
	added := 0
	var err error
	for i := int64(0); ; i++ {
		if _, err = p.AddLong(i); err != nil {
			break
		}
		added++
	}
	if !errors.Is(err, ErrPoolOverflow) {
		t.Fatalf("error = %v, want ErrPoolOverflow", err)
	}
	if added != 32767 {
		t.Errorf("added %d longs, want 32767", added)
	}
	if p.Count() != MaxPoolSize || p.Free() != 0 {
		t.Errorf("Count = %d Free = %d", p.Count(), p.Free())
	}
	if _, err := p.AddUtf8("x"); !errors.Is(err, ErrPoolOverflow) {
		t.Errorf("AddUtf8 on full pool: %v", err)
	}
	if _, err := p.AddLong(5); err != nil {
		t.Errorf("existing entry should still resolve: %v", err)
	}
}

func TestConstantPoolBlank(t *testing.T) {
	p := NewConstantPool()
	s, _ := p.AddString("secret")
	c, _ := p.Get(s)
	if err := p.Blank(c.Ref1); err != nil {
		t.Fatal(err)
	}
	if v, _ := p.StringValue(s); v != "" {
		t.Errorf("blanked string = %q", v)
	}
	again, _ := p.AddUtf8("secret")
	if again == c.Ref1 {
		t.Error("AddUtf8 must not return a blanked entry")
	}
	if err := p.Blank(s); !errors.Is(err, ErrBadIndex) {
		t.Errorf("Blank of non-Utf8: %v", err)
	}
}
