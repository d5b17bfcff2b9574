// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dsconn implements the per-endpoint multiplexing connection of a
// client driver for a distributed wide-column datastore.
//
// A Connection owns exactly one TCP socket and multiplexes up to 128
// concurrently outstanding requests over it, each tagged with a one-byte
// stream id. Callers submit a request by supplying a writer capability (how
// to serialize the request body), a reader capability (how to decode the
// response body into a lazy sequence of items), and a Sink that receives the
// decoded items. The connection owns two long-running goroutines, a write
// pump and a read pump, that drain an admission queue and the socket
// respectively; everything else — which endpoint to connect to, how to pick
// one after a failure, how to turn decoded items into application types — is
// the caller's responsibility.
//
// This package does not parse a query language, type result sets, cache
// prepared statements, balance load across endpoints, or retry failed
// requests. Any I/O fault observed by either pump is treated as fatal to the
// whole connection: every outstanding request is failed with ErrCancelled,
// no further requests are admitted, and OnFailure is notified exactly once.
package dsconn
