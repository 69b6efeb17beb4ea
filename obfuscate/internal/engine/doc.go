// Package engine rewrites the string literals of one class.
//
// Transformation of an eligible class:
//  1. Rewrite every ldc of a CONSTANT_String in every method body
//  2. Move qualifying static final String constants into <clinit>
//  3. Optionally blank the plaintext no longer referenced by the class
//
// Each method is reassembled independently; a method that cannot be
// reassembled keeps its original body.
package engine
