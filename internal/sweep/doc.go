// Package sweep runs a grid of simulations on a worker pool and aggregates
// them into a Table.
//
// A [Grid] expands into units, one per (cell, repetition). Each unit gets its
// own seed from [DeriveSeed] and runs on whichever worker claims it next from a
// shared cursor. Workers never share queue state; outcomes are folded into the
// table in unit order once every worker is done, so a table is identical for
// any worker count.
//
// A unit that returns an error or panics becomes a [Failure] and its siblings
// keep running, unless Options.FailFast is set.
package sweep
