// Package assembler lays the auxiliary resources of the resource manifest
// out next to the built bundle, producing the exact tree users unpack.
//
// Directories are merged recursively over existing content, files are copied
// by path, symlinks are kept as links and modification times are preserved,
// so assembling the same inputs always yields byte-identical trees.
package assembler
