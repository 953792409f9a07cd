// Package assets embeds the files written by "deepresearch init": a default
// research.yml and the .mcp.json server entry.
package assets

import _ "embed"

// DefaultConfig is the commented research.yml installed by init.
//
//go:embed research.yml
var DefaultConfig []byte

// MCPEntry is the mcpServers entry that launches the stdio server.
//
//go:embed mcp.json
var MCPEntry []byte
