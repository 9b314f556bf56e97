// Package store owns per-conversation state: the ordered, deduplicated
// message log, the history-load flags, and the set of currently-typing
// participants.
//
// The store performs no I/O. All mutation happens through named transitions
// that are total functions over the state map: they never panic and a
// transition on an unknown conversation id implicitly creates the entry.
// Different conversation ids never contend on anything but the map lock;
// within one id the facade is the only writer, and the store's own mutex
// makes any residual interleaving safe.
package store
