// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport connects Concord clients to a Concord server.
//
// Every connection carries a stream of frames in both directions. A
// frame is a 1-byte flags field, a 4-byte big-endian length, and a
// payload. Payloads above a threshold are LZ4 block compressed and
// carry their uncompressed size. Each payload is one CBOR [Envelope]:
// the message kind, the session it belongs to (nil for admin
// messages), the sender's endpoint identifier, and for requests a
// request identifier that the response echoes. One ordered stream per
// connection is what gives every endpoint of a session the same view
// of the server's append order.
//
// The first exchange on a connection is a hello request and response.
// The client picks its own endpoint identifier and the server refuses
// duplicates and protocol mismatches.
//
// # Goroutines
//
// Each connection has a reader and a writer goroutine. Readers never
// call handlers: they post the decoded envelope to an [Inbox], and the
// owner of the inbox runs [Inbox.Pump] from its tick goroutine. Every
// handler, response callback, membership change, and [Future]
// resolution therefore runs on that one goroutine, and the session
// state behind the handlers needs no locking. Sending never blocks:
// frames are queued for the writer.
//
// # Routing
//
// A [Router] maps message kinds to handlers. [OnEvent] and [OnRequest]
// register typed handlers that decode the payload. A request for an
// unknown kind is answered with UnknownRequest and a payload that does
// not decode with InvalidRequest; neither affects the connection.
//
// [Server] accepts connections, owns the admin router, and hosts
// [ServerSession]s with their membership. [Client] dials, offers admin
// requests through [Call], and joins sessions as [ClientSession]s.
// [MemoryNetwork] provides an in-process network for tests.
package transport
