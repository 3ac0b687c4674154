// Package report delivers metrics snapshots to a remote collector.
//
// A [Scheduler] runs a fixed-interval loop. On every cycle it asks its
// [SnapshotSource] for a fresh snapshot, converts it into the wire [Payload]
// and hands it to a [Sink]. The scheduler is a two-state machine:
//
//   - Idle: cycles still fire and report status "stopped" with the rate and
//     connection gauges zeroed, so the collector knows the source is alive.
//   - Active: cycles report status "running" with gauges read from
//     Options.Gauges.
//
// [Scheduler.Start] moves Idle to Active and assigns a new run ID.
// [Scheduler.Stop] moves Active to Idle and makes the loop deliver one
// "stopped" payload right away instead of waiting for the next cycle.
//
// # Delivery
//
// Each cycle makes at most one delivery attempt bounded by Options.Timeout.
// Failures are logged and counted in [DeliveryStats]; they are never retried
// and never reach the snapshot source. The next cycle is scheduled one
// interval after the previous attempt completes.
//
// # Sinks
//
// [HTTPSink] POSTs JSON and treats only 200 as accepted. [WebSocketSink]
// writes each payload as one text frame over a lazily dialed connection.
// [NewSink] chooses between them from the collector URL scheme.
package report
