// Package chat defines the normalized message record shared by every engine
// component, plus the decoding of the heterogeneous wire shapes the server
// produces.
//
// The server is inconsistent about payload shapes: history pages arrive either
// as a bare JSON array of raw records or as an envelope object carrying the
// list under one of several field names, raw records spell the author and body
// fields in more than one way, and push envelopes sometimes omit the message
// id entirely. All of that variance is absorbed here, behind a single
// normalization chain, so that the store only ever sees one Message shape.
package chat
