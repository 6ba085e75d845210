package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// createTestImageFile writes a solid PNG and returns its path
func createTestImageFile(t *testing.T, width, height int, c color.Color) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(t.TempDir(), "cell.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// twoFrameGIF returns a 4x2 animation whose left half turns white in the
// second frame.
func twoFrameGIF(t *testing.T) []byte {
	t.Helper()
	pal := color.Palette{color.Black, color.White}
	first := image.NewPaletted(image.Rect(0, 0, 4, 2), pal)
	second := image.NewPaletted(image.Rect(0, 0, 4, 2), pal)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			second.SetColorIndex(x, y, 1)
		}
	}

	var buf bytes.Buffer
	err := gif.EncodeAll(&buf, &gif.GIF{
		Image: []*image.Paletted{first, second},
		Delay: []int{10, 10},
	})
	if err != nil {
		t.Fatalf("failed to encode gif: %v", err)
	}
	return buf.Bytes()
}

// callTool runs a tools/call request and decodes the text content of a
// successful result into a map.
func callTool(t *testing.T, s *Server, name string, args interface{}) (map[string]interface{}, *MCPError) {
	t.Helper()

	paramsJSON, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	if err != nil {
		t.Fatalf("failed to marshal params: %v", err)
	}
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	content := resp.Result.(map[string]interface{})["content"].([]map[string]interface{})
	if len(content) != 1 || content[0]["type"] != "text" {
		t.Fatalf("unexpected content: %v", content)
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), &out); err != nil {
		t.Fatalf("result is not a JSON object: %v", err)
	}
	return out, nil
}

func mustCall(t *testing.T, s *Server, name string, args interface{}) map[string]interface{} {
	t.Helper()
	out, mcpErr := callTool(t, s, name, args)
	if mcpErr != nil {
		t.Fatalf("%s failed: %s (%v)", name, mcpErr.Message, mcpErr.Data)
	}
	return out
}

// ingestOne ingests args and returns the store id of the single image.
func ingestOne(t *testing.T, s *Server, args map[string]interface{}) uint64 {
	t.Helper()
	out := mustCall(t, s, "image_ingest", args)
	images := out["images"].([]interface{})
	if len(images) != 1 {
		t.Fatalf("got %d images, want 1", len(images))
	}
	return uint64(images[0].(map[string]interface{})["id"].(float64))
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("got %+v, want code -32602", resp.Error)
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t)
	_, mcpErr := callTool(t, s, "image_load", nil)
	if mcpErr == nil || mcpErr.Code != -32000 {
		t.Fatalf("got %+v, want code -32000", mcpErr)
	}
	if !strings.Contains(mcpErr.Data.(string), "unknown tool") {
		t.Errorf("Data: got %v", mcpErr.Data)
	}
}

func TestImageIngest_File(t *testing.T) {
	s := newTestServer(t)
	path := createTestImageFile(t, 40, 30, color.RGBA{255, 0, 0, 255})

	out := mustCall(t, s, "image_ingest", map[string]interface{}{"path": path})
	info := out["images"].([]interface{})[0].(map[string]interface{})

	if info["kind"] != "still" {
		t.Errorf("kind: got %v, want still", info["kind"])
	}
	if info["width"] != float64(40) || info["height"] != float64(30) {
		t.Errorf("size: got %vx%v, want 40x30", info["width"], info["height"])
	}
	if info["footprint_bytes"] != float64(40*30*4) {
		t.Errorf("footprint_bytes: got %v, want %d", info["footprint_bytes"], 40*30*4)
	}
	if len(info["hash"].(string)) != 64 {
		t.Errorf("hash should be 64 hex digits, got %q", info["hash"])
	}

	// Same content maps to the same image.
	again := ingestOne(t, s, map[string]interface{}{"path": path})
	if again != uint64(info["id"].(float64)) {
		t.Errorf("re-ingest: got id %d, want %v", again, info["id"])
	}
	if stats := mustCall(t, s, "image_store_stats", nil); stats["cached_files"] != float64(0) {
		t.Errorf("file bytes should be dropped after ingest, cached_files: %v", stats["cached_files"])
	}
}

func TestImageIngest_FailureDropsFiles(t *testing.T) {
	s := newTestServer(t)
	good := createTestImageFile(t, 4, 4, color.White)
	missing := filepath.Join(t.TempDir(), "absent.png")

	if _, mcpErr := callTool(t, s, "image_ingest", map[string]interface{}{"paths": []string{good, missing}}); mcpErr == nil {
		t.Fatal("expected error for missing file")
	}
	if n := s.cache.Len(); n != 0 {
		t.Errorf("cached files after failed ingest: got %d, want 0", n)
	}
}

func TestImagePlace_GridTooLarge(t *testing.T) {
	s := newTestServer(t)
	id := ingestOne(t, s, map[string]interface{}{"path": createTestImageFile(t, 4, 4, color.White)})

	_, mcpErr := callTool(t, s, "image_place", map[string]interface{}{
		"id": id, "image_id": 1, "cols": 2147483647, "rows": 2147483647,
	})
	if mcpErr == nil {
		t.Fatal("expected error for oversized grid")
	}
	if !strings.Contains(mcpErr.Data.(string), "cell limit") {
		t.Errorf("Data: got %v", mcpErr.Data)
	}
	if stats := mustCall(t, s, "image_store_stats", nil); stats["placements"] != float64(0) {
		t.Errorf("placements: got %v, want 0", stats["placements"])
	}
}

func TestImageIngest_Base64Unknown(t *testing.T) {
	s := newTestServer(t)
	data := base64.StdEncoding.EncodeToString([]byte("not an image format"))

	out := mustCall(t, s, "image_ingest", map[string]interface{}{"data_base64": data})
	info := out["images"].([]interface{})[0].(map[string]interface{})
	if info["kind"] != "encoded_file" {
		t.Errorf("kind: got %v, want encoded_file", info["kind"])
	}
	if info["frames"] != float64(0) {
		t.Errorf("frames: got %v, want 0", info["frames"])
	}
}

func TestImageIngest_Errors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"no input", map[string]interface{}{}},
		{"bad base64", map[string]interface{}{"data_base64": "!!!"}},
		{"missing file", map[string]interface{}{"path": filepath.Join(t.TempDir(), "absent.png")}},
		{"directory", map[string]interface{}{"path": t.TempDir()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, mcpErr := callTool(t, s, "image_ingest", tt.args); mcpErr == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestImageIngest_Paths(t *testing.T) {
	s := newTestServer(t)
	red := createTestImageFile(t, 8, 8, color.RGBA{255, 0, 0, 255})
	blue := createTestImageFile(t, 8, 8, color.RGBA{0, 0, 255, 255})

	out := mustCall(t, s, "image_ingest", map[string]interface{}{"paths": []string{red, blue}})
	images := out["images"].([]interface{})
	if len(images) != 2 {
		t.Fatalf("got %d images, want 2", len(images))
	}
	if images[0].(map[string]interface{})["hash"] == images[1].(map[string]interface{})["hash"] {
		t.Error("different images should have different hashes")
	}
}

func TestImageInfo(t *testing.T) {
	s := newTestServer(t)
	id := ingestOne(t, s, map[string]interface{}{"path": createTestImageFile(t, 12, 6, color.White)})

	out := mustCall(t, s, "image_info", map[string]interface{}{"id": id})
	if out["width"] != float64(12) || out["frames"] != float64(1) {
		t.Errorf("got %v", out)
	}

	if _, mcpErr := callTool(t, s, "image_info", map[string]interface{}{"id": id + 100}); mcpErr == nil {
		t.Error("unknown id should fail")
	}
}

func TestPlaceAndCells(t *testing.T) {
	s := newTestServer(t)
	id := ingestOne(t, s, map[string]interface{}{"path": createTestImageFile(t, 30, 40, color.White)})

	// 30x40 at the default 10x20 cell size is 3x2 cells.
	out := mustCall(t, s, "image_place", map[string]interface{}{"id": id, "image_id": 7, "placement_id": 1})
	if out["cols"] != float64(3) || out["rows"] != float64(2) || out["cells"] != float64(6) {
		t.Errorf("place: got %v", out)
	}
	if out["layer"] != "above_text" {
		t.Errorf("layer: got %v", out["layer"])
	}

	out = mustCall(t, s, "image_place", map[string]interface{}{
		"id": id, "image_id": 7, "cols": 2, "rows": 2, "z_index": -5,
	})
	if out["cells"] != float64(4) || out["layer"] != "below_text" {
		t.Errorf("grid place: got %v", out)
	}
	if out["placement_id"] != nil {
		t.Errorf("placement_id: got %v, want null", out["placement_id"])
	}

	cells := mustCall(t, s, "image_cells", map[string]interface{}{"image_id": 7, "placement_id": 1})["cells"].([]interface{})
	if len(cells) != 6 {
		t.Fatalf("got %d cells, want 6", len(cells))
	}
	first := cells[0].(map[string]interface{})
	if first["store_id"] != float64(id) {
		t.Errorf("store_id: got %v, want %d", first["store_id"], id)
	}
	tl := first["top_left"].(map[string]interface{})
	if tl["x"] != float64(0) || tl["y"] != float64(0) {
		t.Errorf("top_left: got %v", tl)
	}

	// Without image_id every cell is listed, lowest z first.
	all := mustCall(t, s, "image_cells", nil)["cells"].([]interface{})
	if len(all) != 10 {
		t.Fatalf("got %d cells, want 10", len(all))
	}
	if all[0].(map[string]interface{})["z_index"] != float64(-5) {
		t.Errorf("first cell should be the z=-5 placement, got %v", all[0])
	}

	if _, mcpErr := callTool(t, s, "image_cells", map[string]interface{}{"image_id": 8}); mcpErr == nil {
		t.Error("unknown placement should fail")
	}

	stats := mustCall(t, s, "image_store_stats", nil)
	if stats["placements"] != float64(2) || stats["referenced"] != float64(1) {
		t.Errorf("stats: got %v", stats)
	}
}

func TestReleaseAndDelete(t *testing.T) {
	s := newTestServer(t)
	id := ingestOne(t, s, map[string]interface{}{"path": createTestImageFile(t, 10, 20, color.White)})
	mustCall(t, s, "image_place", map[string]interface{}{"id": id, "image_id": 1})
	mustCall(t, s, "image_place", map[string]interface{}{"id": id, "image_id": 1, "placement_id": 2})

	if _, mcpErr := callTool(t, s, "image_release", map[string]interface{}{"id": id}); mcpErr == nil {
		t.Fatal("release of a placed image should fail")
	}

	out := mustCall(t, s, "image_delete_placement", map[string]interface{}{"image_id": 1})
	if out["cells_deleted"] != float64(1) {
		t.Errorf("delete: got %v", out)
	}
	out = mustCall(t, s, "image_delete_placement", map[string]interface{}{"image_id": 1, "all": true})
	if out["placements_deleted"] != float64(1) {
		t.Errorf("delete all: got %v", out)
	}

	mustCall(t, s, "image_release", map[string]interface{}{"id": id})
	if stats := mustCall(t, s, "image_store_stats", nil); stats["images"] != float64(0) {
		t.Errorf("images after release: got %v", stats["images"])
	}
}

func TestCellPreviewAndColor(t *testing.T) {
	s := newTestServer(t)
	id := ingestOne(t, s, map[string]interface{}{"path": createTestImageFile(t, 20, 20, color.RGBA{0, 0, 255, 255})})
	mustCall(t, s, "image_place", map[string]interface{}{"id": id, "image_id": 3, "cols": 2, "rows": 1})

	preview := mustCall(t, s, "image_cell_preview", map[string]interface{}{"image_id": 3, "index": 1})
	if preview["width"] != float64(10) || preview["height"] != float64(20) {
		t.Errorf("preview size: got %vx%v, want default 10x20", preview["width"], preview["height"])
	}
	raw, err := base64.StdEncoding.DecodeString(preview["image_base64"].(string))
	if err != nil {
		t.Fatalf("preview is not base64: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(raw)); err != nil {
		t.Errorf("preview is not a PNG: %v", err)
	}

	col := mustCall(t, s, "image_cell_color", map[string]interface{}{"image_id": 3, "palette": 2})
	if col["hex"] != "#0000FF" {
		t.Errorf("hex: got %v, want #0000FF", col["hex"])
	}
	if col["coverage"] != float64(1) {
		t.Errorf("coverage: got %v, want 1", col["coverage"])
	}
	if palette := col["palette"].([]interface{}); len(palette) != 1 {
		t.Errorf("solid cell palette: got %d colours, want 1", len(palette))
	}

	if _, mcpErr := callTool(t, s, "image_cell_color", map[string]interface{}{"image_id": 3, "index": 2}); mcpErr == nil {
		t.Error("out of range index should fail")
	}
}

func TestFrameDiff(t *testing.T) {
	s := newTestServer(t)
	data := base64.StdEncoding.EncodeToString(twoFrameGIF(t))
	out := mustCall(t, s, "image_ingest", map[string]interface{}{"data_base64": data})
	info := out["images"].([]interface{})[0].(map[string]interface{})
	if info["kind"] != "animated" || info["frames"] != float64(2) {
		t.Fatalf("got %v, want a 2 frame animation", info)
	}

	mustCall(t, s, "image_place", map[string]interface{}{"id": info["id"], "image_id": 4, "cols": 2, "rows": 1})
	diff := mustCall(t, s, "image_frame_diff", map[string]interface{}{"image_id": 4, "frame_a": 0, "frame_b": 1})

	changed := diff["changed_cells"].([]interface{})
	if len(changed) != 1 || changed[0] != float64(0) {
		t.Errorf("changed_cells: got %v, want [0]", changed)
	}
	if diff["total_cells"] != float64(2) {
		t.Errorf("total_cells: got %v", diff["total_cells"])
	}

	if _, mcpErr := callTool(t, s, "image_frame_diff", map[string]interface{}{"image_id": 4, "frame_a": 0, "frame_b": 5}); mcpErr == nil {
		t.Error("missing frame should fail")
	}
}

func TestSnapshots(t *testing.T) {
	s := newTestServer(t)

	list := mustCall(t, s, "image_snapshot_list", nil)["snapshots"].([]interface{})
	if len(list) != 0 {
		t.Fatalf("got %d snapshots, want 0", len(list))
	}
	if _, mcpErr := callTool(t, s, "image_snapshot_load", nil); mcpErr == nil {
		t.Fatal("load without snapshots should fail")
	}

	id := ingestOne(t, s, map[string]interface{}{"path": createTestImageFile(t, 20, 20, color.White)})
	mustCall(t, s, "image_place", map[string]interface{}{"id": id, "image_id": 5, "cols": 2, "rows": 2})

	saved := mustCall(t, s, "image_snapshot_save", nil)
	if saved["images"] != float64(1) || saved["cells"] != float64(4) {
		t.Errorf("save: got %v", saved)
	}

	mustCall(t, s, "image_delete_placement", map[string]interface{}{"image_id": 5, "all": true})

	loaded := mustCall(t, s, "image_snapshot_load", map[string]interface{}{"id": saved["id"]})
	if loaded["id"] != saved["id"] {
		t.Errorf("loaded id: got %v, want %v", loaded["id"], saved["id"])
	}
	cells := mustCall(t, s, "image_cells", map[string]interface{}{"image_id": 5})["cells"].([]interface{})
	if len(cells) != 4 {
		t.Errorf("restored cells: got %d, want 4", len(cells))
	}

	list = mustCall(t, s, "image_snapshot_list", nil)["snapshots"].([]interface{})
	if len(list) != 1 {
		t.Errorf("got %d snapshots, want 1", len(list))
	}
}
