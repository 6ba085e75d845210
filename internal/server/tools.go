package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// placementProperties are the arguments that select a placement.
func placementProperties() map[string]interface{} {
	return map[string]interface{}{
		"image_id": map[string]interface{}{
			"type":        "integer",
			"description": "Protocol image id the placement was made with",
		},
		"placement_id": map[string]interface{}{
			"type":        []string{"integer", "null"},
			"description": "Protocol placement id; omit or null for a placement without one",
		},
	}
}

// cellProperties are the arguments that select one cell of a placement.
func cellProperties() map[string]interface{} {
	props := placementProperties()
	props["index"] = map[string]interface{}{
		"type":        "integer",
		"description": "Cell index within the placement, row-major from the top-left (default 0)",
	}
	props["frame"] = map[string]interface{}{
		"type":        "integer",
		"description": "Animation frame to sample; ignored for still images (default 0)",
	}
	return props
}

func withProperties(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Images
		{
			Name:        "image_ingest",
			Description: "Store an image from a file or base64 data. The image is decoded to RGBA frames when the format is recognised and deduplicated by content. Returns the store id, content hash, kind (encoded_file, still or animated), size and frame count of each image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Several image files, decoded concurrently",
					},
					"data_base64": map[string]interface{}{
						"type":        "string",
						"description": "Encoded image bytes in base64",
					},
				},
			},
		},
		{
			Name:        "image_info",
			Description: "Describe a stored image: hash, kind, dimensions, frame count, animation length and memory footprint.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "integer",
						"description": "Store id returned by image_ingest",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "image_release",
			Description: "Remove an image from the store. Fails while a placement still shows it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "integer",
						"description": "Store id of the image",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "image_store_stats",
			Description: "Report store usage: image count, bytes used against the budget, cache hits and evictions.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},

		// Placements
		{
			Name:        "image_place",
			Description: "Place a stored image on the terminal grid. The image is sliced into cells, either a fixed cols x rows grid or by the configured cell pixel size. Placing again with the same image_id and placement_id replaces the old placement.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(placementProperties(), map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "integer",
						"description": "Store id of the image to show",
					},
					"cols": map[string]interface{}{
						"type":        "integer",
						"description": "Grid columns; with rows, slices the image evenly",
					},
					"rows": map[string]interface{}{
						"type":        "integer",
						"description": "Grid rows",
					},
					"z_index": map[string]interface{}{
						"type":        "integer",
						"description": "Render order. Negative draws below text; below -1073741824 also below cell backgrounds (default 0)",
					},
					"offset_x": map[string]interface{}{
						"type":        "integer",
						"description": "Pixel offset of the image within its first cell",
					},
					"offset_y": map[string]interface{}{
						"type":        "integer",
						"description": "Pixel offset of the image within its first cell",
					},
				}),
				"required": []string{"id", "image_id"},
			},
		},
		{
			Name:        "image_cells",
			Description: "List placed cells with their texture coordinates, z-index and layer. Without image_id, lists every cell in render order.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": placementProperties(),
			},
		},
		{
			Name:        "image_delete_placement",
			Description: "Delete a placement. With all=true, deletes every placement of the image_id.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(placementProperties(), map[string]interface{}{
					"all": map[string]interface{}{
						"type":        "boolean",
						"description": "Delete all placements of image_id regardless of placement_id",
					},
				}),
				"required": []string{"image_id"},
			},
		},

		// Cell Rendering
		{
			Name:        "image_cell_preview",
			Description: "Render what one cell shows as a base64-encoded PNG at the cell's pixel size.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(cellProperties(), map[string]interface{}{
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Output width in pixels (default: configured cell width)",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Output height in pixels (default: configured cell height)",
					},
				}),
				"required": []string{"image_id"},
			},
		},
		{
			Name:        "image_cell_color",
			Description: "Average colour of one cell, for drawing a text-only approximation. Optionally returns the most common colours.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(cellProperties(), map[string]interface{}{
					"palette": map[string]interface{}{
						"type":        "integer",
						"description": "Number of dominant colours to return (default 0, none)",
					},
				}),
				"required": []string{"image_id"},
			},
		},
		{
			Name:        "image_frame_diff",
			Description: "List the cells of a placement whose content changes between two animation frames.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(placementProperties(), map[string]interface{}{
					"frame_a": map[string]interface{}{"type": "integer"},
					"frame_b": map[string]interface{}{"type": "integer"},
				}),
				"required": []string{"image_id", "frame_a", "frame_b"},
			},
		},

		// Snapshots
		{
			Name:        "image_snapshot_save",
			Description: "Save every stored image and placement to the snapshot database.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "image_snapshot_load",
			Description: "Restore images and placements from a snapshot, replacing the current placements.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "string",
						"description": "Snapshot id (default: the newest snapshot)",
					},
				},
			},
		},
		{
			Name:        "image_snapshot_list",
			Description: "List saved snapshots, newest first.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
