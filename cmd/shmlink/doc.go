// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Shmlink forwards display sessions between a local connection point
// and a remote link.
//
// Subcommands:
//
//	shmlink serve   [flags]   accept local sessions and dial a link for each
//	shmlink attach  [flags]   accept links and connect each to a local display
//	shmlink version           print version information
//
// serve runs a server-role pump per local session: applications connect
// to the connection point as if it were a display, and their frames go
// out over the link. attach is the far end: it listens on the network
// and maps every accepted link onto a new client session at the local
// display's connection point, driving all of them from one poll loop.
//
// Configuration comes from --config, then SHMLINK_CONFIG, then built-in
// defaults. Flags override individual fields.
package main
