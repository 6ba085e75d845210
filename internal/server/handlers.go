package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ironsheep/imagecell/internal/imagecell"
	"github.com/ironsheep/imagecell/internal/imaging"
	"github.com/ironsheep/imagecell/internal/store"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_ingest", "image_place").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Debug("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Resolves images and placements from the store
//  4. Calls the appropriate imaging/store function
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Images
	case "image_ingest":
		return s.handleImageIngest(ctx, args)
	case "image_info":
		return s.handleImageInfo(args)
	case "image_release":
		return s.handleImageRelease(args)
	case "image_store_stats":
		return s.handleStoreStats()

	// Placements
	case "image_place":
		return s.handleImagePlace(args)
	case "image_cells":
		return s.handleImageCells(args)
	case "image_delete_placement":
		return s.handleDeletePlacement(args)

	// Cell Rendering
	case "image_cell_preview":
		return s.handleCellPreview(args)
	case "image_cell_color":
		return s.handleCellColor(args)
	case "image_frame_diff":
		return s.handleFrameDiff(args)

	// Snapshots
	case "image_snapshot_save":
		return s.handleSnapshotSave(ctx)
	case "image_snapshot_load":
		return s.handleSnapshotLoad(ctx, args)
	case "image_snapshot_list":
		return s.handleSnapshotList(ctx)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments, treating missing arguments as an
// empty object.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Image Handlers ===

type imageIngestArgs struct {
	Path       string   `json:"path"`
	Paths      []string `json:"paths"`
	DataBase64 string   `json:"data_base64"`
}

type ingestResult struct {
	Images []*imaging.ImageInfo `json:"images"`
}

func (s *Server) handleImageIngest(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageIngestArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	var inputs [][]byte
	if a.DataBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(a.DataBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid data_base64: %w", err)
		}
		inputs = append(inputs, data)
	}
	paths := a.Paths
	if a.Path != "" {
		paths = append([]string{a.Path}, paths...)
	}
	// Files are only held until the store has them; repeats are caught by
	// the store's raw-hash alias.
	defer func() {
		for _, p := range paths {
			s.cache.Evict(p)
		}
	}()
	for _, p := range paths {
		f, err := s.cache.Load(p)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, f.Data)
	}
	if len(inputs) == 0 {
		return nil, errors.New("one of path, paths or data_base64 is required")
	}

	imgs, err := s.store.IngestAll(ctx, inputs)
	if err != nil {
		return nil, err
	}

	res := &ingestResult{Images: make([]*imaging.ImageInfo, 0, len(imgs))}
	for _, img := range imgs {
		info, err := imaging.Describe(img)
		if err != nil {
			return nil, err
		}
		res.Images = append(res.Images, info)
	}
	return res, nil
}

type imageIDArgs struct {
	ID uint64 `json:"id"`
}

func (s *Server) lookupImage(id uint64) (*imagecell.ImageData, error) {
	img, ok := s.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", store.ErrNotFound, id)
	}
	return img, nil
}

func (s *Server) handleImageInfo(args json.RawMessage) (interface{}, error) {
	var a imageIDArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.lookupImage(a.ID)
	if err != nil {
		return nil, err
	}
	return imaging.Describe(img)
}

func (s *Server) handleImageRelease(args json.RawMessage) (interface{}, error) {
	var a imageIDArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := s.store.Evict(a.ID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"released": a.ID}, nil
}

type storeStatsResult struct {
	store.Stats
	Placements  int `json:"placements"`
	CachedFiles int `json:"cached_files"`
}

func (s *Server) handleStoreStats() (interface{}, error) {
	return &storeStatsResult{
		Stats:       s.store.Stats(),
		Placements:  s.placements.Len(),
		CachedFiles: s.cache.Len(),
	}, nil
}

// === Placement Handlers ===

type imagePlaceArgs struct {
	ID          uint64               `json:"id"`
	ImageID     uint32               `json:"image_id"`
	PlacementID imagecell.OptionalID `json:"placement_id"`
	Cols        int                  `json:"cols"`
	Rows        int                  `json:"rows"`
	ZIndex      int32                `json:"z_index"`
	OffsetX     uint32               `json:"offset_x"`
	OffsetY     uint32               `json:"offset_y"`
}

type placeResult struct {
	ImageID     uint32               `json:"image_id"`
	PlacementID imagecell.OptionalID `json:"placement_id"`
	Cols        int                  `json:"cols"`
	Rows        int                  `json:"rows"`
	Cells       int                  `json:"cells"`
	Layer       string               `json:"layer"`
}

func (s *Server) handleImagePlace(args json.RawMessage) (interface{}, error) {
	var a imagePlaceArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.lookupImage(a.ID)
	if err != nil {
		return nil, err
	}

	p := imagecell.Placement{
		ZIndex:      a.ZIndex,
		OffsetX:     a.OffsetX,
		OffsetY:     a.OffsetY,
		ImageID:     a.ImageID,
		PlacementID: a.PlacementID,
	}

	var cells []*imagecell.Cell
	cols, rows := a.Cols, a.Rows
	if cols > 0 || rows > 0 {
		cells, err = imaging.SliceGrid(img, cols, rows, p)
	} else {
		cells, cols, rows, err = imaging.SliceByCellSize(img, s.cells.PixelWidth, s.cells.PixelHeight, p)
	}
	if err != nil {
		return nil, err
	}

	if err := s.placements.Place(a.ImageID, a.PlacementID, cells); err != nil {
		return nil, err
	}
	return &placeResult{
		ImageID:     a.ImageID,
		PlacementID: a.PlacementID,
		Cols:        cols,
		Rows:        rows,
		Cells:       len(cells),
		Layer:       imagecell.LayerFor(a.ZIndex).String(),
	}, nil
}

type placementArgs struct {
	ImageID     *uint32              `json:"image_id"`
	PlacementID imagecell.OptionalID `json:"placement_id"`
}

// cellSummary describes one placed cell without its pixel data.
type cellSummary struct {
	Index       int                  `json:"index"`
	StoreID     uint64               `json:"store_id"`
	ImageID     uint32               `json:"image_id"`
	PlacementID imagecell.OptionalID `json:"placement_id"`
	TopLeft     imagecell.Coordinate `json:"top_left"`
	BottomRight imagecell.Coordinate `json:"bottom_right"`
	ZIndex      int32                `json:"z_index"`
	Layer       string               `json:"layer"`
}

func summarize(cells []*imagecell.Cell) []cellSummary {
	out := make([]cellSummary, len(cells))
	for i, c := range cells {
		out[i] = cellSummary{
			Index:       i,
			StoreID:     c.Image().ID(),
			ImageID:     c.ImageID(),
			PlacementID: c.PlacementID(),
			TopLeft:     c.TopLeft(),
			BottomRight: c.BottomRight(),
			ZIndex:      c.ZIndex(),
			Layer:       c.Layer().String(),
		}
	}
	return out
}

// handleImageCells lists the cells of one placement, or every placed cell in
// render order when no image_id is given.
func (s *Server) handleImageCells(args json.RawMessage) (interface{}, error) {
	var a placementArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.ImageID == nil {
		return map[string]interface{}{"cells": summarize(s.placements.All())}, nil
	}
	cells, ok := s.placements.Find(*a.ImageID, a.PlacementID)
	if !ok {
		return nil, fmt.Errorf("no placement %d/%v", *a.ImageID, a.PlacementID)
	}
	return map[string]interface{}{"cells": summarize(cells)}, nil
}

type deletePlacementArgs struct {
	ImageID     uint32               `json:"image_id"`
	PlacementID imagecell.OptionalID `json:"placement_id"`
	All         bool                 `json:"all"`
}

func (s *Server) handleDeletePlacement(args json.RawMessage) (interface{}, error) {
	var a deletePlacementArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.All {
		n, err := s.placements.DeleteImage(a.ImageID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"placements_deleted": n}, nil
	}
	n, err := s.placements.Delete(a.ImageID, a.PlacementID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"cells_deleted": n}, nil
}

// === Cell Rendering Handlers ===

type cellArgs struct {
	ImageID     uint32               `json:"image_id"`
	PlacementID imagecell.OptionalID `json:"placement_id"`
	Index       int                  `json:"index"`
	Frame       int                  `json:"frame"`
}

func (s *Server) findCell(a cellArgs) (*imagecell.Cell, error) {
	cells, ok := s.placements.Find(a.ImageID, a.PlacementID)
	if !ok {
		return nil, fmt.Errorf("no placement %d/%v", a.ImageID, a.PlacementID)
	}
	if a.Index < 0 || a.Index >= len(cells) {
		return nil, fmt.Errorf("cell index %d out of range (0-%d)", a.Index, len(cells)-1)
	}
	return cells[a.Index], nil
}

type cellPreviewArgs struct {
	cellArgs
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *Server) handleCellPreview(args json.RawMessage) (interface{}, error) {
	var a cellPreviewArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Width == 0 {
		a.Width = s.cells.PixelWidth
	}
	if a.Height == 0 {
		a.Height = s.cells.PixelHeight
	}
	cell, err := s.findCell(a.cellArgs)
	if err != nil {
		return nil, err
	}
	return imaging.PreviewCell(cell, a.Frame, a.Width, a.Height)
}

type cellColorArgs struct {
	cellArgs
	Palette int `json:"palette"`
}

type cellColorResult struct {
	*imaging.ColorResult
	Palette []imaging.ColorFrequency `json:"palette,omitempty"`
}

func (s *Server) handleCellColor(args json.RawMessage) (interface{}, error) {
	var a cellColorArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	cell, err := s.findCell(a.cellArgs)
	if err != nil {
		return nil, err
	}

	avg, err := imaging.CellColor(cell, a.Frame)
	if err != nil {
		return nil, err
	}
	res := &cellColorResult{ColorResult: avg}
	if a.Palette > 0 {
		if res.Palette, err = imaging.CellPalette(cell, a.Frame, a.Palette); err != nil {
			return nil, err
		}
	}
	return res, nil
}

type frameDiffArgs struct {
	ImageID     uint32               `json:"image_id"`
	PlacementID imagecell.OptionalID `json:"placement_id"`
	FrameA      int                  `json:"frame_a"`
	FrameB      int                  `json:"frame_b"`
}

func (s *Server) handleFrameDiff(args json.RawMessage) (interface{}, error) {
	var a frameDiffArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	cells, ok := s.placements.Find(a.ImageID, a.PlacementID)
	if !ok {
		return nil, fmt.Errorf("no placement %d/%v", a.ImageID, a.PlacementID)
	}
	changed, err := imaging.ChangedCells(cells, a.FrameA, a.FrameB)
	if err != nil {
		return nil, err
	}
	if changed == nil {
		changed = []int{}
	}
	return map[string]interface{}{
		"changed_cells": changed,
		"total_cells":   len(cells),
	}, nil
}

// === Snapshot Handlers ===

func (s *Server) handleSnapshotSave(ctx context.Context) (interface{}, error) {
	db, err := s.snapshotDB()
	if err != nil {
		return nil, err
	}
	return store.SaveSnapshot(ctx, db, s.store, s.placements)
}

type snapshotLoadArgs struct {
	ID string `json:"id"`
}

func (s *Server) handleSnapshotLoad(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a snapshotLoadArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	db, err := s.snapshotDB()
	if err != nil {
		return nil, err
	}
	return store.LoadSnapshot(ctx, db, s.store, s.placements, a.ID)
}

func (s *Server) handleSnapshotList(ctx context.Context) (interface{}, error) {
	db, err := s.snapshotDB()
	if err != nil {
		return nil, err
	}
	list, err := store.ListSnapshots(ctx, db)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []store.SnapshotInfo{}
	}
	return map[string]interface{}{"snapshots": list}, nil
}
