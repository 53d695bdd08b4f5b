// Package problems holds ready-made solutions for the annealing engine: the
// cubic Formula and bounded continuous Vector problems.
package problems
