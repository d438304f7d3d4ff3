package dzi

import (
	"encoding/xml"
	"fmt"
	"os"
)

// Namespace is the Deep Zoom descriptor XML namespace.
const Namespace = "http://schemas.microsoft.com/deepzoom/2008"

// Descriptor holds the five scalars a deep-zoom viewer needs to address the
// pyramid. Width and Height are always the original source dimensions, never
// a scaled level's.
type Descriptor struct {
	TileSize int
	Overlap  int
	Format   string
	Width    int
	Height   int
}

// Bytes renders the descriptor as the fixed-shape XML document viewers
// expect. The template is emitted verbatim (single-quoted attributes
// included) rather than via encoding/xml so the output is byte-stable.
func (d *Descriptor) Bytes() []byte {
	return []byte(fmt.Sprintf(
		"<?xml version='1.0' encoding='UTF-8'?>"+
			"<Image TileSize='%d' Overlap='%d' Format='%s' xmlns='%s'>"+
			"<Size Width='%d' Height='%d'/></Image>",
		d.TileSize, d.Overlap, d.Format, Namespace, d.Width, d.Height))
}

// Write writes the descriptor to path, fully replacing any existing file.
func (d *Descriptor) Write(path string) error {
	return os.WriteFile(path, d.Bytes(), 0o644)
}

type xmlImage struct {
	XMLName  xml.Name `xml:"Image"`
	TileSize int      `xml:"TileSize,attr"`
	Overlap  int      `xml:"Overlap,attr"`
	Format   string   `xml:"Format,attr"`
	Size     struct {
		Width  int `xml:"Width,attr"`
		Height int `xml:"Height,attr"`
	} `xml:"Size"`
}

// Parse decodes a descriptor document produced by Bytes (or any conforming
// DZI descriptor).
func Parse(data []byte) (*Descriptor, error) {
	var img xmlImage
	if err := xml.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("parsing descriptor: %w", err)
	}
	return &Descriptor{
		TileSize: img.TileSize,
		Overlap:  img.Overlap,
		Format:   img.Format,
		Width:    img.Size.Width,
		Height:   img.Size.Height,
	}, nil
}

// Load reads and parses the descriptor at path.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
