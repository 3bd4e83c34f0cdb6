// Package mcp discovers callable tools from remote Model Context Protocol
// servers and exposes them through the tool.Tool interface.
//
// A Manager holds named server configurations (HTTP or stdio transport)
// and performs discovery lazily: the first turn referencing a server
// connects, runs the protocol handshake and lists the server's tools.
// Discovery is memoized per server name for the process lifetime and
// concurrent first-uses are deduplicated, so each server sees exactly one
// handshake. Discovered tools stay callable over the shared connection
// until the Manager is closed.
package mcp
