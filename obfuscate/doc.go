// Package obfuscate hides the string literals of JVM classes.
//
// Every ldc of a string constant in an eligible class is replaced by code
// that rebuilds the string at run time from an array of 64-bit tokens:
//
//	new ObfuscatedString
//	dup
//	<push n>; newarray long
//	dup; <push i>; ldc2_w token[i]; lastore   (for each token)
//	invokespecial ObfuscatedString.<init>([J)V
//	invokevirtual ObfuscatedString.toString()Ljava/lang/String;
//
// static final String fields holding a constant are assigned the same way
// at the start of the static initializer, and lose their ConstantValue.
//
// # Eligibility
//
// Classes are selected by dotted name. With no include configured nothing
// is processed:
//
//	t, err := obfuscate.New(obfuscate.Config{
//	    Include:         []string{"com.app."},
//	    IncludePatterns: []string{`\.internal\.`},
//	    Exclude:         []string{"com.app.generated."},
//	})
//
// # Transformation
//
//	out, stats, err := t.Transform(classBytes)
//
// Transform never loses the input: on failure it returns the original
// bytes together with the error. Methods that would exceed the class file
// limits once rewritten keep their original body.
package obfuscate
