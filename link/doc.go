// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package link is the remote side of the proxy: the message set carried
// over an already-authenticated byte stream and the transports that
// produce such streams.
//
// A link message is one [framing] frame whose type byte is a [Kind] and
// whose payload is the CBOR body for that kind. [Message] is a closed
// tagged union: Kind selects exactly one populated body field. The kinds
// are fixed by the protocol, so adding one means changing this package,
// [Encode] and [Decode] together.
//
// Two ways to drive a link are supported:
//
//   - [Stream] wraps a blocking io.Reader/io.Writer pair (one socket or
//     two pipes) with Receive and Send. The server-role pump uses it.
//   - The client-role pump drives a non-blocking [framing.Conn] itself
//     and uses [Encode] and [Decode] on the frames it moves.
//
// Transports ([Dial], [Listen]) cover TCP, unix sockets and QUIC
// streams. Handshake and encryption belong to the caller; for QUIC the
// caller supplies the TLS configuration.
package link
