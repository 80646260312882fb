// Package lanes distributes records from a partitioned stream across a fixed
// pool of ordered work lanes.
//
// Records are routed to lanes by a stable hash of an application-derived
// group key, so all records sharing a group key are processed by the same
// single worker in submission order. Completions are reported to an offset
// tracker, and a background checkpoint driver periodically commits, per
// partition, the highest offset whose entire preceding range has finished
// processing. A commit therefore never skips over an offset that is still in
// flight, even though lanes complete work out of order.
//
// Processing is fail-open: a record whose decoding or processing fails is
// logged and still counted as complete, so a persistently failing record is
// checkpointed past rather than retried. Retries, if wanted, belong inside
// the processing callback. Operators should be aware that a poison record
// will not block checkpoint progress and will not be redelivered.
package lanes
