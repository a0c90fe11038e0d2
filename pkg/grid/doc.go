// Package grid provides lazy chunked multi-dimensional arrays.
//
// # Overview
//
// A [grid.Array] is a logical multi-dimensional array partitioned into
// independently computable blocks. Arrays are lazy: construction and
// derivation only append nodes to a shared [task.Graph], and nothing is
// computed until a scheduler materializes blocks. Input arrays are never
// mutated; every operation derives a new array.
//
// # Data model
//
// Block payloads are dense row-major float64 buffers. The array's [DType]
// declares the logical element type: it governs how computed values are
// cast (numpy-style saturating truncation for integer types) and which
// sentinel stands in for missing data where IEEE NaN is unavailable.
// Working in float64 keeps kernels simple and keeps NaN propagation
// semantics exact; the declared type is applied at block boundaries.
//
// # Chunk layout
//
// Chunking is regular: every axis has a fixed chunk length and the final
// chunk may be short, exactly like Zarr chunk grids. [Array.Rechunk]
// derives an array with a different layout by reassembling overlapping
// source blocks.
//
// # Materialization
//
// [Array.Compute] appends an assemble node that concatenates all blocks
// and asks a [Scheduler] to materialize it. The scheduler is an external
// collaborator: this package only describes computations.
package grid
