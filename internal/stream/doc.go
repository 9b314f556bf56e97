// Package stream owns the live server-push connection for each open
// conversation. One SSE subscription per conversation id, never more: frames
// are decoded into push envelopes and handed to the registered handler, and a
// dropped connection is re-entered transparently with exponential backoff;
// the store is never cleared on reconnect, so only new, non-duplicate
// messages appear.
//
// Lifecycle per conversation: Closed -> Connecting -> Open and back through
// Reconnecting until Close cancels the subscription. Closing is the only way
// to permanently stop retrying.
package stream
