package imagetool

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Imaging is a pure-Go backend built on disintegration/imaging. It fulfils
// the same contract as the external toolchain so the pipeline runs where no
// ImageMagick is installed, and it is what the tests exercise real pixels
// with. The struct holds no per-run state, so one instance is safe to share
// across concurrent generations.
type Imaging struct{}

// NewImaging returns a native backend. Resampling defaults to Lanczos
// unless a call names another filter.
func NewImaging() *Imaging {
	return &Imaging{}
}

func filterByName(name string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(name) {
	case "", "lanczos":
		return imaging.Lanczos, nil
	case "box":
		return imaging.Box, nil
	case "linear", "triangle":
		return imaging.Linear, nil
	case "cubic", "catmullrom", "catrom":
		return imaging.CatmullRom, nil
	case "mitchell":
		return imaging.MitchellNetravali, nil
	case "gaussian":
		return imaging.Gaussian, nil
	case "nearest", "point":
		return imaging.NearestNeighbor, nil
	}
	return imaging.Lanczos, fmt.Errorf("unknown resize filter %q", name)
}

func save(img image.Image, path string, quality float64) error {
	q := EncoderQuality(quality)
	if q <= 0 {
		q = 75
	}
	return imaging.Save(img, path, imaging.JPEGQuality(q))
}

func (i *Imaging) Dimensions(ctx context.Context, path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("reading dimensions of %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Normalize re-encodes the source into dst. Decoding and re-encoding drops
// metadata regardless of the Strip flag; ICC profiles are outside what this
// backend can apply. The filter name is validated here so a typo fails the
// run before any level is written.
func (i *Imaging) Normalize(ctx context.Context, src, dst string, o NormalizeOptions) error {
	if o.Profile != "" {
		return fmt.Errorf("native backend cannot apply ICC profile %s", o.Profile)
	}
	if _, err := filterByName(o.Filter); err != nil {
		return err
	}

	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	return save(img, dst, o.Quality)
}

func (i *Imaging) Crop(ctx context.Context, src, dst string, x, y, w, h int, quality float64) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}

	tile := imaging.Crop(img, image.Rect(x, y, x+w, y+h))
	return save(tile, dst, quality)
}

func (i *Imaging) Halve(ctx context.Context, path, filter string, quality float64) error {
	resample, err := filterByName(filter)
	if err != nil {
		return err
	}

	img, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	b := img.Bounds()
	nw := (b.Dx() + 1) / 2
	nh := (b.Dy() + 1) / 2
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	halved := imaging.Resize(img, nw, nh, resample)
	return save(halved, path, quality)
}

func (i *Imaging) GridCrop(ctx context.Context, src, destDir, ext string, tileSize int, quality float64) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}

	b := img.Bounds()
	for y := 0; y < b.Dy(); y += tileSize {
		for x := 0; x < b.Dx(); x += tileSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			w := tileSize
			if x+w > b.Dx() {
				w = b.Dx() - x
			}
			h := tileSize
			if y+h > b.Dy() {
				h = b.Dy() - y
			}

			tile := imaging.Crop(img, image.Rect(x, y, x+w, y+h))
			name := fmt.Sprintf("%d_%d.%s", x/tileSize, y/tileSize, ext)
			dst := filepath.Join(destDir, name)

			if err := save(tile, dst, quality); err != nil {
				return fmt.Errorf("writing tile %s: %w", dst, err)
			}
		}
	}
	return nil
}
