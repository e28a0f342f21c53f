// Package dispatch routes scenes to parallel workers.
//
// The Dispatcher sits behind the segmenter on the single upstream channel and
// owns one bounded output per worker. Every scene boundary selects the output
// at position index mod N, where N is the number of outputs registered at that
// moment; all data up to the next boundary goes to that output.
//
// Key behaviour:
//   - Round-robin selection is a pure function of the scene index
//   - The previously active output receives a force-key-unit event at every
//     switch, queued behind that output's remaining frames
//   - Each output queue holds at most Capacity buffers; Chain blocks while the
//     active queue is full, which is the only backpressure point of the stage
//   - EOS and other serialized events are copied to every output
//
// Outputs are located through Handles kept in the dispatcher's registry.
// Consumers read an Output with Pop and never refer back to the Dispatcher.
package dispatch
