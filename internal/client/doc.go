// Package client implements the REST operations the engine performs against
// the chat server: fetching paginated history, posting outgoing messages, and
// firing typing pulses. One operation per file, all going through the
// authenticated auth.Client.
//
// History responses are shape-normalized by the chat package before anything
// reaches the store; this package only decides pagination semantics such as
// inferring "more pages exist" when the server omits an explicit flag.
package client
