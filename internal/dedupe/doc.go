// Package dedupe provides a TTL-and-size-bounded cache of recently seen
// message ids. The stream consumer marks every id it forwards, so frames the
// server re-delivers within the window are dropped before they reach the
// store. The store's own id set stays authoritative; this cache only spares
// redundant transitions.
package dedupe
