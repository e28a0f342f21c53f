// Package hype assembles the parallel scene encoding stage: a segmenter
// feeding a round-robin dispatcher, one worker branch per bound encoder slot,
// and a collector restoring scene order in front of a capsfilter.
//
// The stage is itself a media.Sink. Upstream pushes frames into it; the
// reordered, encoded scenes leave through the sink given to Link.
//
// Lifecycle:
//   - Null: slots may be bound with SetWorker
//   - Ready: branches are wired in slot order and worker caps intersected
//   - Playing: one goroutine per branch moves data
//
// Going back to Null stops every branch and discards the wiring.
package hype
