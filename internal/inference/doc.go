// Package inference turns a stream of externally-produced image
// classification results into a stable, debounced recommendation of the
// user's current operating context.
//
// The engine runs a two-phase lifecycle: an initial burst of frames
// closes the first analysis window and produces an initial hypothesis,
// then periodic monitoring windows keep the hypothesis fresh. Each
// closed window aggregates evidence across two label taxonomies
// (discrete object matches and confidence-weighted scene matches),
// scores a per-mode vote tally, and feeds the result through a
// hysteresis arbiter so a candidate mode must repeat consecutively
// before a switch is confirmed.
//
// The classifier, frame source, transport and persistence are external
// collaborators; the engine owns only the scheduling, aggregation,
// hypothesis construction and arbitration between them.
package inference
