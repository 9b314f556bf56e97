// Package conversation is the public entry point of the engine. A caller
// mounts one conversation at a time through the Service: opening wires up the
// live stream, the initial history load, and the typing-expiry timers for
// that conversation id; closing tears them down without discarding state.
//
// Each conversation is an independent unit of concurrency. The Service is the
// only writer into the store, so the single-writer-per-key discipline falls
// out of its structure: stream callbacks and history applications for one id
// funnel through this layer, and in-flight work checks the session's context
// before touching state so a slow fetch can never resurrect a closed
// conversation.
package conversation
