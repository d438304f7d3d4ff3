package dzi

import (
	"fmt"
	"math"
)

// TileRect is one cell of a level's tile grid, addressed by (Col, Row) and
// covering the pixel rectangle at (X, Y) with size Width x Height.
type TileRect struct {
	Col, Row      int
	X, Y          int
	Width, Height int
}

// MaxLevel returns the deepest pyramid level for an image of the given
// dimensions: the smallest L such that 2^L >= max(width, height). Level
// maxLevel holds the full-resolution raster, level 0 the ~1px extreme.
func MaxLevel(width, height int) int {
	longest := width
	if height > longest {
		longest = height
	}
	if longest <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(longest))))
}

// LevelDims returns the raster dimensions at the given level, derived by
// ceil-halving the original dimensions once per level below maxLevel. This
// mirrors the working-copy halving chain, so grid math and raster always
// agree even when compounding rounds differently than a direct divide.
func LevelDims(width, height, level, maxLevel int) (int, int) {
	for l := maxLevel; l > level; l-- {
		width = (width + 1) / 2
		height = (height + 1) / 2
		if width < 1 {
			width = 1
		}
		if height < 1 {
			height = 1
		}
	}
	return width, height
}

// GridCols returns the number of tile columns for a raster extent sliced
// into uniform non-overlapping tileSize-wide tiles.
func GridCols(extent, tileSize int) int {
	return (extent + tileSize - 1) / tileSize
}

type span struct {
	origin, size int
}

// overlapSpans lays out tile origins along one axis for the overlap-aware
// variant: the border tile (index 0) spans tileSize+overlap, interior tiles
// tileSize+2*overlap, and each origin advances by size-2*overlap so adjacent
// tiles share an overlap strip. Sizes are clamped to the extent.
func overlapSpans(extent, tileSize, overlap int) []span {
	var spans []span
	pos := 0
	for i := 0; pos < extent; i++ {
		size := tileSize + 2*overlap
		if i == 0 {
			size = tileSize + overlap
		}
		step := size - 2*overlap
		clamped := size
		if pos+clamped > extent {
			clamped = extent - pos
		}
		spans = append(spans, span{origin: pos, size: clamped})
		pos += step
	}
	return spans
}

// OverlapGrid computes the full tile grid for a raster of the given
// dimensions under the overlap-aware tiling policy. The returned rects
// cover [0,width)x[0,height) with no gaps. Callers must ensure
// tileSize > 2*overlap (see ValidateTiling) or the layout cannot advance.
func OverlapGrid(width, height, tileSize, overlap int) []TileRect {
	xs := overlapSpans(width, tileSize, overlap)
	ys := overlapSpans(height, tileSize, overlap)

	rects := make([]TileRect, 0, len(xs)*len(ys))
	for row, yspan := range ys {
		for col, xspan := range xs {
			rects = append(rects, TileRect{
				Col:    col,
				Row:    row,
				X:      xspan.origin,
				Y:      yspan.origin,
				Width:  xspan.size,
				Height: yspan.size,
			})
		}
	}
	return rects
}

// ValidateTiling checks the numeric tiling configuration up front so a bad
// tile size or overlap surfaces as a configuration error instead of a
// zero-step layout loop.
func ValidateTiling(tileSize, overlap int, withOverlap bool) error {
	if tileSize <= 0 {
		return fmt.Errorf("tile size must be positive, got %d", tileSize)
	}
	if overlap < 0 {
		return fmt.Errorf("overlap must not be negative, got %d", overlap)
	}
	if withOverlap && tileSize <= 2*overlap {
		return fmt.Errorf("tile size %d must exceed twice the overlap %d", tileSize, overlap)
	}
	return nil
}
