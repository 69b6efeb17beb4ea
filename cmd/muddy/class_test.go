package main

import (
	"testing"

	"github.com/wippyai/muddy/classfile"
)

// secretClass builds com/app/Secret with a string constant and a method
// returning a literal.
func secretClass(t *testing.T) []byte {
	t.Helper()
	c, err := classfile.NewClass(classfile.MajorJava7, classfile.AccPublic|classfile.AccSuper, "com/app/Secret", "java/lang/Object")
	if err != nil {
		t.Fatal(err)
	}
	f, err := c.AddField(classfile.AccPublic|classfile.AccStatic|classfile.AccFinal, "TOKEN", "Ljava/lang/String;")
	if err != nil {
		t.Fatal(err)
	}
	idx, err := c.Pool.AddString("s3cr3t")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetConstantValue(c.Pool, idx); err != nil {
		t.Fatal(err)
	}
	lit, err := c.Pool.AddString("hello")
	if err != nil {
		t.Fatal(err)
	}
	code, err := classfile.NewCode(1, 0).Assemble(c.Pool, []classfile.Instruction{
		classfile.Synth(classfile.OpLdc, classfile.ConstImm{Index: lit}),
		classfile.Synth(classfile.OpAreturn, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddMethod(classfile.AccPublic|classfile.AccStatic, "greet", "()Ljava/lang/String;", code); err != nil {
		t.Fatal(err)
	}
	data, err := c.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return data
}
