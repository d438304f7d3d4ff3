package dzi

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDescriptorBytes(t *testing.T) {
	d := &Descriptor{
		TileSize: 256,
		Overlap:  0,
		Format:   "jpg",
		Width:    1000,
		Height:   600,
	}

	want := "<?xml version='1.0' encoding='UTF-8'?>" +
		"<Image TileSize='256' Overlap='0' Format='jpg' " +
		"xmlns='http://schemas.microsoft.com/deepzoom/2008'>" +
		"<Size Width='1000' Height='600'/></Image>"

	if got := string(d.Bytes()); got != want {
		t.Errorf("descriptor mismatch:\ngot  %s\nwant %s", got, want)
	}
}

func TestDescriptorRoundTrip(t *testing.T) {
	d := &Descriptor{
		TileSize: 254,
		Overlap:  1,
		Format:   "png",
		Width:    4096,
		Height:   2048,
	}

	parsed, err := Parse(d.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if *parsed != *d {
		t.Errorf("round trip mismatch: got %+v, want %+v", parsed, d)
	}
}

func TestDescriptorWriteOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.dzi")

	if err := os.WriteFile(path, []byte("stale content"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	d := &Descriptor{TileSize: 256, Overlap: 0, Format: "jpg", Width: 10, Height: 10}
	if err := d.Write(path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *loaded != *d {
		t.Errorf("loaded descriptor %+v, want %+v", loaded, d)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not xml at all <")); err == nil {
		t.Error("expected an error parsing malformed XML")
	}
}
