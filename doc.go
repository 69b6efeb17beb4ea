// Package muddy rewrites compiled JVM classes so that string literals are no
// longer stored verbatim in the class file.
//
// Every ldc of a string constant in an eligible class is replaced by code
// that builds the literal at run time from an array of opaque 64-bit
// tokens, and qualifying static final String constants are moved into the
// static initializer the same way.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	muddy/               Root package with the Codec interface and decoder reference
//	├── classfile/       Class file parsing, instruction assembly, stack analysis
//	├── codec/           Token encoder matching the ObfuscatedString runtime class
//	│   └── wasmcodec/   Codec backed by a user-supplied WebAssembly module
//	├── obfuscate/       Class eligibility and the rewriting engine
//	├── pipeline/        Class, directory and archive processing with reports
//	├── config/          muddy.toml loading
//	├── errors/          Structured error types
//	└── cmd/muddy/       Command-line tool
//
// # Quick Start
//
// Rewrite one class:
//
//	cfg := obfuscate.Config{
//	    Include: []string{"com.app."},
//	    Codec:   codec.New(codec.WithSeed(7)),
//	}
//	out, stats, err := obfuscate.Transform(classBytes, cfg)
//
// Transform never returns a class it could not encode. When anything goes
// wrong the input bytes come back unchanged together with the error.
//
// # Run-time Decoder
//
// Rewritten classes call a decoder class that must be on the class path of
// the target program. DefaultDecoder names the class shipped with the muddy
// runtime library; a different one can be configured as long as it has a
// constructor taking long[] and a no-argument method returning String.
package muddy
