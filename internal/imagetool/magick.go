package imagetool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Magick drives an ImageMagick-compatible toolchain over its command-line
// contract. Binary names are configurable so GraphicsMagick or a "magick"
// v7 shim can stand in.
type Magick struct {
	ConvertBin  string
	IdentifyBin string
}

// NewMagick returns a backend using the conventional convert/identify
// binary names from PATH.
func NewMagick() *Magick {
	return &Magick{
		ConvertBin:  "convert",
		IdentifyBin: "identify",
	}
}

// run executes one external command with an argv array, never a shell
// string, so paths and formats are passed verbatim.
func (m *Magick) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &CommandError{
				Args:     append([]string{name}, args...),
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return "", fmt.Errorf("running %s: %w", name, err)
	}
	return stdout.String(), nil
}

// Dimensions queries the pixel size without decoding the full raster.
func (m *Magick) Dimensions(ctx context.Context, path string) (int, int, error) {
	out, err := m.run(ctx, m.IdentifyBin, "-ping", "-format", "%w %h", path)
	if err != nil {
		return 0, 0, err
	}

	fields := strings.Fields(out)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unexpected identify output %q for %s", out, path)
	}
	w, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing width from identify output %q: %w", out, err)
	}
	h, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing height from identify output %q: %w", out, err)
	}
	return w, h, nil
}

func (m *Magick) Normalize(ctx context.Context, src, dst string, o NormalizeOptions) error {
	args := []string{src}
	if o.Strip {
		args = append(args, "-strip")
	}
	if o.Profile != "" {
		args = append(args, "-profile", o.Profile)
	}
	if o.Filter != "" {
		args = append(args, "-filter", o.Filter)
	}
	if o.Quality > 0 {
		args = append(args, "-quality", strconv.Itoa(EncoderQuality(o.Quality)))
	}
	args = append(args, dst)

	_, err := m.run(ctx, m.ConvertBin, args...)
	return err
}

func (m *Magick) Crop(ctx context.Context, src, dst string, x, y, w, h int, quality float64) error {
	args := []string{
		src,
		"-crop", fmt.Sprintf("%dx%d+%d+%d", w, h, x, y),
		"+repage",
	}
	if quality > 0 {
		args = append(args, "-quality", strconv.Itoa(EncoderQuality(quality)))
	}
	args = append(args, dst)

	_, err := m.run(ctx, m.ConvertBin, args...)
	return err
}

func (m *Magick) Halve(ctx context.Context, path, filter string, quality float64) error {
	args := []string{path}
	if filter != "" {
		args = append(args, "-filter", filter)
	}
	args = append(args, "-resize", "50%")
	if quality > 0 {
		args = append(args, "-quality", strconv.Itoa(EncoderQuality(quality)))
	}
	args = append(args, path)

	_, err := m.run(ctx, m.ConvertBin, args...)
	return err
}

// GridCrop issues one convert per level: ImageMagick slices the whole
// raster and derives each tile's filename from its pixel offset divided
// by the tile size.
func (m *Magick) GridCrop(ctx context.Context, src, destDir, ext string, tileSize int, quality float64) error {
	template := fmt.Sprintf("%%[fx:page.x/%d]_%%[fx:page.y/%d]", tileSize, tileSize)
	args := []string{
		src,
		"-crop", fmt.Sprintf("%dx%d", tileSize, tileSize),
		"-set", "filename:tile", template,
		"+repage", "+adjoin",
	}
	if quality > 0 {
		args = append(args, "-quality", strconv.Itoa(EncoderQuality(quality)))
	}
	args = append(args, filepath.Join(destDir, "%[filename:tile]."+ext))

	_, err := m.run(ctx, m.ConvertBin, args...)
	return err
}
