// Package attribution issues tracking bundles to creator collaborations and
// attributes inbound events to them.
//
// A collaboration moves through: no bundle, bundle created, events
// accumulate, result recalculated. Bundle generation is idempotent and codes
// are never regenerated. Purchases carrying an order id are attributed at
// most once; a repeat is reported as a duplicate, not an error, so webhook
// retries are harmless.
//
// Side effects of a purchase (integration forwarding and lift-test
// recording) are enqueued as tasks after the event commits.
package attribution
