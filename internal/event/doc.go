// Package event provides the broadcast bus corefork publishes worker activity on.
//
// The launcher, the stream pipeline, the message relay and the lifecycle guard
// only ever publish; everything else (the CLI, an umbrella process manager)
// subscribes. Publishing is fire-and-forget: there is no acknowledgment and a
// slow or panicking subscriber cannot block other subscribers.
//
// # Main Types
//
//   - [Event]: Interface that all events implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher, safe for concurrent use
//   - [Publisher]: The write side of the bus, accepted by every producer
//   - [Recorder]: A Publisher that keeps what it receives
//
// # Event Categories
//
// Worker output:
//   - [LogEvent]: one per stdout/stderr chunk (log.out, log.err)
//   - [LogsRotatedEvent]: a worker's sinks were reopened (log.rotated)
//
// Worker messages:
//   - [MessageEvent]: structured message, published under the worker's type tag
//   - [RawMessageEvent]: anything else, published under process.msg
//
// Lifecycle:
//   - [ProcessOnlineEvent], [ProcessExitEvent], [ProcessErrorEvent]
//   - [AffinityFailedEvent]: the worker runs unpinned
//   - [TopologyResolvedEvent]: emitted before the first launch
//
// Every worker event carries a [ProcessRecord] identifying its worker.
//
// # Basic Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypeLogOut, func(e event.Event) {
//	    out := e.(event.LogEvent)
//	    fmt.Printf("[%s:%d] %s", out.Process.Name, out.Process.Core, out.Payload)
//	})
//	bus.Subscribe("ready", func(e event.Event) {
//	    msg := e.(event.MessageEvent)
//	    log.Printf("worker on core %d ready: %v", msg.Process.Core, msg.Data)
//	})
package event
