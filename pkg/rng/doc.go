// Package rng provides the counter-based random number generator used for
// all stochastic sampling.
//
// The generator is Philox4x64-10, a counter-based design: output depends
// only on a key and a counter, never on mutable hidden state shared
// between consumers. Seeding the same words always yields the same
// stream, which makes per-block streams reproducible regardless of how
// many workers execute the graph or in what order.
package rng
