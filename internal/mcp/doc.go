// Package mcp exposes detectd over the Model Context Protocol.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls internal/detect directly. Tools:
//
//   - circuit_validate: shape of a circuit, or why it cannot be fragmented
//   - circuit_fragments: the fragment and loop tree
//   - circuit_annotate: detectors and the annotated circuit
//   - cover_find: exact or commuting Pauli string cover
//
// Invalid input is reported as a tool error carrying the DETxxx code, not as
// a protocol error.
package mcp
