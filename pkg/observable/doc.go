// Package observable reduces one simulation run to summary observables.
//
// Two reductions are provided:
// - Divergence: KL divergence of the empirical belief histogram against a
//   Gaussian whose scale comes from a SpreadModel, never from the sample.
// - Connectivity: component sizes, assortativity and transitivity of the
//   interaction network after confidence-threshold pruning.
//
// Invariants:
// - Relative frequencies sum to 1 for any bin count >= 1.
// - A zero reference density under a non-empty bin is an error, not +Inf.
// - Every edge kept by Prune satisfies |mu[u]-mu[v]| < beta*sqrt(var[u]).
// - SCC and WCC sizes each partition the node set.
//
// Usage:
//
//	r := observable.Reducer{Spread: spread, NBins: 100}
//	result, err := r.Reduce(trajectory, beta, dist, iterations)
package observable
