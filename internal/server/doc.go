// Package server implements the MCP (Model Context Protocol) server that
// exposes the terminal image store and its cells.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Images:
//   - image_ingest: Decode and store images from files or base64 data
//   - image_info: Hash, kind, size and footprint of a stored image
//   - image_release: Drop an unreferenced image
//   - image_store_stats: Store usage against its budget
//
// Placements:
//   - image_place: Slice an image into cells and place them
//   - image_cells: List placed cells, in render order
//   - image_delete_placement: Remove one or all placements of an image id
//
// Cell Rendering:
//   - image_cell_preview: Render one cell as PNG
//   - image_cell_color: Average and dominant colours of a cell
//   - image_frame_diff: Cells that change between two animation frames
//
// Snapshots:
//   - image_snapshot_save, image_snapshot_load, image_snapshot_list
//
// Placements are keyed by the protocol image id and optional placement id.
// Each placement holds one reference on its store image, so the store never
// evicts an image that is on screen.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	srv := server.New(cfg, logger)
//	defer srv.Close()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
