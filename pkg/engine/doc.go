// Package engine applies pure block kernels across chunked arrays.
//
// # Overview
//
// The engine is generic infrastructure: it knows nothing about
// randomization, codecs or filters. A [Kernel] describes one per-block
// computation and its [Descriptor] declares the result type and geometry;
// [Map] and [MapOverlap] lift the kernel over whole arrays, producing new
// lazy arrays whose blocks compute by invoking the kernel.
//
// # Contract
//
// A kernel must return a block of exactly the declared output rank; a
// mismatch is a contract violation, which is fatal and never retried.
// Kernel results are cast to the declared element type after computation.
// Kernels must be pure: schedulers may recompute any block at any time.
//
// # Layout harmonization
//
// When multiple input arrays have incompatible chunk layouts, [Map]
// transparently rechunks them to a common layout before mapping.
// [MapStrict] raises a configuration error instead, before any block
// executes.
//
// # Overlap
//
// [MapOverlap] hands each kernel invocation a halo of neighboring
// elements per axis, filling out-of-bounds positions with a boundary
// constant or the element type's no-data sentinel, and trims the halo
// off the result unless the caller declares the kernel trims itself.
package engine
