// Package stream moves a worker's output into its log sinks and onto the event
// bus.
//
// A [SinkSet] owns up to three append-only sinks (out, err and an optional
// combined sink), each bound to a file path. Every sink is in exactly one of
// two states, Open(handle) or Closed(path); a closed sink is never written
// again until the set is explicitly reopened with [SinkSet.Rotate].
//
// A [Pipeline] handles one chunk at a time: it optionally prefixes the chunk
// with a timestamp, writes it to the stream's own sink and to the combined
// sink, then publishes exactly one log event carrying the unprefixed chunk.
//
// [Watcher] reopens sinks whose files were renamed or removed by an external
// log rotation tool.
package stream
