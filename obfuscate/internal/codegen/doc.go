// Package codegen emits the JVM instruction sequences injected by the
// obfuscator.
//
// The Emitter appends synthesized instructions (Offset -1) and interns the
// constants they reference in the class's constant pool. The first pool
// failure is kept and every later call becomes a no-op, so a block is
// built with a chain of calls and checked once:
//
//	em := codegen.NewEmitter(pool)
//	em.DecodeString(decoder, tokens).PutStatic(owner, name, desc)
//	if err := em.Err(); err != nil {
//	    // leave the literal alone
//	}
//
// This package is internal to the obfuscator.
package codegen
