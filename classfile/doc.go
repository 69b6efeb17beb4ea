// Package classfile provides JVM class file parsing, editing and encoding.
//
// The package models exactly what a bytecode rewriter needs: the constant
// pool, fields, methods, and method bodies as instruction sequences. Other
// attributes are carried as raw bytes and written back unchanged.
//
// # Parsing
//
// Parse a class file from binary:
//
//	data, _ := os.ReadFile("Secret.class")
//	class, err := classfile.ParseClass(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Parse with validation enabled:
//
//	class, err := classfile.ParseClassValidate(data)
//
// # Encoding
//
// Encode a class back to binary:
//
//	encoded, err := class.Encode()
//
// Methods whose code was never reassembled keep their original Code
// attribute bytes, so parsing and encoding an unmodified class yields the
// input bytes.
//
// # Constant Pool
//
// The pool is append-only. Adders return the index of an equal existing
// entry when there is one:
//
//	idx, err := class.Pool.AddMethodref("com/app/Decoder", "<init>", "([J)V")
//
// ErrPoolOverflow is returned when an entry does not fit in 65535 slots.
//
// # Instructions
//
// Decode a method body, edit it, and assemble it:
//
//	insns, err := classfile.DecodeInstructions(m.Code.Bytecode)
//	// build a new slice from insns
//	code, err := m.Code.Assemble(class.Pool, out)
//	m.Code = code
//
// Every decoded instruction carries its original byte offset, and branch
// targets are expressed as original offsets. Assemble lays out the new
// sequence once, maps every original offset to its new position, and
// rewrites branch operands, the exception table, StackMapTable,
// LineNumberTable, LocalVariableTable and LocalVariableTypeTable through
// that map. Synthesized instructions use Offset -1 and are never branch
// targets.
//
// # Stack Analysis
//
// ComputeMaxStack walks every control path of a code body and returns its
// maximum operand stack depth:
//
//	depth, err := classfile.ComputeMaxStack(code, class.Pool)
//
// # Validation
//
// Validate checks constant pool references:
//   - every index is in range
//   - every reference points at an entry of the expected kind
//   - field and method descriptors are well-formed
package classfile
