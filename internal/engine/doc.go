// Package engine runs a single relaxed-queue simulation.
//
// A run is fully described by a [Spec]. The [Engine] moves through three
// states:
//
//   - [StatePrefilling]: Spec.Prefill enqueues, no rank errors recorded
//   - [StateMeasuring]: Spec.Ops operations ordered by the op mix, one rank
//     error recorded per dequeue
//   - [StateDone]: the [Result] is summarised and returned
//
// # Op Mixes
//
//   - [MixAlternating]: enqueue, dequeue, enqueue, ... so Ops/2 dequeues are measured
//   - [MixRandom]: Bernoulli draws with Spec.EnqueueProbability, used as given
//     (0 means dequeue whenever possible); a dequeue drawn against an empty
//     queue is turned into an enqueue and counted
//   - Spec.Script: an explicit list; a dequeue against an empty queue fails the
//     run with queue.ErrEmptyQueue
//
// # Determinism
//
// Lane sampling and the op mix draw from two PCG streams seeded by Spec.Seed,
// so equal specs produce identical results on any machine.
//
//	res, err := engine.Run(engine.Spec{
//		Subqueues: 16,
//		Heuristic: queue.KindLength,
//		Prefill:   1000,
//		Ops:       1_000_000,
//		Seed:      42,
//	}, engine.Options{})
package engine
