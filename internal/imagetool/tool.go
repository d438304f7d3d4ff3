package imagetool

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// NormalizeOptions tune the initial copy of the source into the working
// raster. All fields are optional.
type NormalizeOptions struct {
	Strip   bool    // drop EXIF/XMP and other metadata
	Profile string  // path to an ICC profile to apply
	Filter  string  // resize filter name used for subsequent halving
	Quality float64 // encoder quality, see EncoderQuality
}

// Tool is the capability set the pyramid generator needs from an image
// backend. Any conforming implementation is substitutable; the generator
// never touches pixels itself.
type Tool interface {
	// Dimensions reports the pixel width and height of the image at path.
	Dimensions(ctx context.Context, path string) (int, int, error)

	// Normalize copies/converts the source into dst, applying the options.
	Normalize(ctx context.Context, src, dst string, o NormalizeOptions) error

	// Crop extracts the (x, y, w, h) region of src into dst.
	Crop(ctx context.Context, src, dst string, x, y, w, h int, quality float64) error

	// Halve downscales the image at path to 50% in place, resampling
	// with the named filter (backend default when empty) and re-encoding
	// at the given quality.
	Halve(ctx context.Context, path, filter string, quality float64) error

	// GridCrop slices src into a uniform non-overlapping grid of
	// tileSize x tileSize tiles, writing <col>_<row>.<ext> files into
	// destDir where col and row are the tile's pixel offset divided by
	// tileSize.
	GridCrop(ctx context.Context, src, destDir, ext string, tileSize int, quality float64) error
}

// EncoderQuality maps the dual quality convention onto an encoder scale:
// values in (0,1] are treated as a fraction and scaled by 100, values
// above 1 pass through unchanged.
func EncoderQuality(q float64) int {
	if q > 0 && q <= 1 {
		return int(math.Round(q * 100))
	}
	return int(math.Round(q))
}

// CommandError reports an external image command exiting non-zero. It is
// the single error kind the generator treats as fatal backend failure.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}
