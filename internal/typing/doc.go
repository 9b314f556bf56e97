// Package typing owns the per-(conversation, participant) quiet-window timers
// that clear a typing flag after no pulse has renewed it. It holds no message
// data; it is pure scheduling.
package typing
