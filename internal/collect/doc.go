// Package collect reassembles worker outputs into the original scene order.
//
// A Collector has one input Pad per worker and a single downstream Sink.
// Every input announces the scene it is producing with a boundary event; the
// frames that follow are appended to that scene's record. A record is
// complete once every input that opened it has moved on to another scene or
// reached end of stream. Completed records leave the collector strictly in
// ascending index order, each as one buffer list, starting from the
// next-to-send counter and never skipping a missing index.
//
// When every input has reached end of stream the remaining records are
// drained. Indices that never arrived are reported as skipped, and a single
// EOS event is pushed downstream.
//
// Locking: mu guards the input cursors, the scene table and the counters as
// one unit. emitMu serializes downstream pushes and is always taken while mu
// is still held, so emission order equals table order.
package collect
