package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/tilecraft/dzgen/internal/imagetool"
	"github.com/tilecraft/dzgen/pkg/dzi"
)

func setupTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	s := New("test", dir, imagetool.NewImaging())
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return ts, dir
}

func writeSourceImage(t *testing.T, dir string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, "source.png")
	img := imaging.New(w, h, color.NRGBA{R: 30, G: 90, B: 160, A: 255})
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("writing source image: %v", err)
	}
	return path
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	return e
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %q, want healthy", health.Status)
	}
	if health.Version != "test" {
		t.Errorf("version = %q, want test", health.Version)
	}
}

func TestCreatePyramid_InvalidJSON(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/pyramids", "application/json",
		bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != "INVALID_JSON" {
		t.Errorf("code = %q, want INVALID_JSON", e.Code)
	}
}

func TestCreatePyramid_Validation(t *testing.T) {
	ts, dir := setupTestServer(t)
	src := writeSourceImage(t, dir, 16, 16)

	badTile := 0
	badStrategy := "diagonal"
	cases := []struct {
		name string
		req  GenerateRequest
	}{
		{"missing source", GenerateRequest{Name: "a"}},
		{"missing name", GenerateRequest{Source: src}},
		{"name with path", GenerateRequest{Source: src, Name: "../escape"}},
		{"bad tile size", GenerateRequest{Source: src, Name: "a", TileSize: &badTile}},
		{"bad strategy", GenerateRequest{Source: src, Name: "a", Strategy: &badStrategy}},
	}

	for _, c := range cases {
		resp := postJSON(t, ts.URL+"/api/v1/pyramids", c.req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", c.name, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestCreatePyramid_SourceNotFound(t *testing.T) {
	ts, dir := setupTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/pyramids", GenerateRequest{
		Source: filepath.Join(dir, "missing.png"),
		Name:   "ghost",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != "SOURCE_NOT_FOUND" {
		t.Errorf("code = %q, want SOURCE_NOT_FOUND", e.Code)
	}
}

func TestCreateServeAndDeletePyramid(t *testing.T) {
	ts, dir := setupTestServer(t)
	src := writeSourceImage(t, dir, 64, 64)

	resp := postJSON(t, ts.URL+"/api/v1/pyramids", GenerateRequest{
		Source: src,
		Name:   "demo",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate status = %d, want 201", resp.StatusCode)
	}
	var result struct {
		MaxLevel int `json:"max_level"`
		Levels   int `json:"levels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	resp.Body.Close()

	if result.MaxLevel != 6 || result.Levels != 7 {
		t.Errorf("result = %+v, want max level 6, 7 levels", result)
	}

	// The descriptor is served as XML.
	resp, err := http.Get(ts.URL + "/pyramids/demo.dzi")
	if err != nil {
		t.Fatalf("GET descriptor: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("descriptor status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/xml" {
		t.Errorf("descriptor content type = %q, want application/xml", ct)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("reading descriptor: %v", err)
	}
	resp.Body.Close()

	desc, err := dzi.Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("parsing served descriptor: %v", err)
	}
	if desc.Width != 64 || desc.Height != 64 {
		t.Errorf("descriptor size = %dx%d, want 64x64", desc.Width, desc.Height)
	}

	// Tiles are served from the level directories.
	resp, err = http.Get(ts.URL + "/pyramids/demo_files/6/0_0.jpg")
	if err != nil {
		t.Fatalf("GET tile: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("tile status = %d, want 200", resp.StatusCode)
	}

	// Directories are never listed, only files are served.
	for _, p := range []string{"/pyramids/", "/pyramids/demo_files", "/pyramids/demo_files/6/"} {
		resp, err := http.Get(ts.URL + p)
		if err != nil {
			t.Fatalf("GET %s: %v", p, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", p, resp.StatusCode)
		}
	}

	// Delete reports prior existence, and a repeat is a clean no-op.
	for i, wantExisted := range []bool{true, false} {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/pyramids/demo", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delete %d status = %d, want 200", i, resp.StatusCode)
		}
		var removed RemoveResponse
		if err := json.NewDecoder(resp.Body).Decode(&removed); err != nil {
			t.Fatalf("decoding remove response: %v", err)
		}
		resp.Body.Close()
		if removed.Existed != wantExisted {
			t.Errorf("delete %d existed = %v, want %v", i, removed.Existed, wantExisted)
		}
	}

	resp, err = http.Get(ts.URL + "/pyramids/demo.dzi")
	if err != nil {
		t.Fatalf("GET after delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("descriptor after delete = %d, want 404", resp.StatusCode)
	}
}

func TestDeletePyramid_InvalidName(t *testing.T) {
	ts, _ := setupTestServer(t)

	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/api/v1/pyramids/%s", ts.URL, "bad%2Fname"), nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 400 or 404", resp.StatusCode)
	}
}
