package pyramid

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tilecraft/dzgen/internal/imagetool"
	"github.com/tilecraft/dzgen/pkg/dzi"
)

// Strategy selects how a level's raster is sliced into tiles.
type Strategy string

const (
	// StrategyGrid slices each level into uniform non-overlapping tiles
	// with a single backend call per level.
	StrategyGrid Strategy = "grid"

	// StrategyOverlap emits overlap-aware tiles one backend call at a
	// time, the layout legacy viewers with seam blending expect.
	StrategyOverlap Strategy = "overlap"
)

// Options configure one pyramid generation run.
type Options struct {
	Name     string  // output name; <name>.dzi and <name>_files/
	Dir      string  // output base directory, default "."
	Format   string  // tile encoding format, default "jpg"
	Ext      string  // descriptor file extension, default "dzi"
	TileSize int     // default 256 (grid) or 254 (overlap)
	Overlap  int     // overlap strategy only; grid always uses 0
	Quality  float64 // (0,1] scaled by 100, >1 passed through
	Strip    bool    // drop source metadata during normalization
	Profile  string  // ICC profile path applied during normalization
	Filter   string  // resize filter name for the halving chain
	Strategy Strategy
}

func (o *Options) applyDefaults() {
	if o.Dir == "" {
		o.Dir = "."
	}
	if o.Format == "" {
		o.Format = "jpg"
	}
	if o.Ext == "" {
		o.Ext = "dzi"
	}
	if o.Strategy == "" {
		o.Strategy = StrategyGrid
	}
	switch o.Strategy {
	case StrategyGrid:
		if o.TileSize == 0 {
			o.TileSize = 256
		}
		o.Overlap = 0
		if o.Quality == 0 {
			o.Quality = 75
		}
	case StrategyOverlap:
		if o.TileSize == 0 {
			o.TileSize = 254
		}
		if o.Overlap == 0 {
			o.Overlap = 1
		}
		if o.Quality == 0 {
			o.Quality = 98
		}
	}
}

// Result summarizes a completed generation run.
type Result struct {
	Name     string `json:"name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MaxLevel int    `json:"max_level"`
	Levels   int    `json:"levels"`
	Tiles    int    `json:"tiles"`
	Replaced bool   `json:"replaced"` // prior output existed and was removed
}

// Generator drives one-source-at-a-time pyramid builds through an image
// backend. It is strictly sequential: a level's tiles are all written
// before the working copy is halved for the next level.
type Generator struct {
	opts Options
	tool imagetool.Tool
}

// New returns a generator for the given options. The tool may be nil if
// only Remove is used.
func New(opts Options, tool imagetool.Tool) *Generator {
	opts.applyDefaults()
	return &Generator{opts: opts, tool: tool}
}

// DescriptorPath is where the XML descriptor is written.
func (g *Generator) DescriptorPath() string {
	return filepath.Join(g.opts.Dir, g.opts.Name+"."+g.opts.Ext)
}

// TilesDir is the root of the per-level tile tree.
func (g *Generator) TilesDir() string {
	return filepath.Join(g.opts.Dir, g.opts.Name+"_files")
}

// Remove deletes any existing descriptor and tile tree for the configured
// name. It reports whether anything existed and is safe to call when
// nothing does.
func (g *Generator) Remove() (bool, error) {
	existed := false
	for _, path := range []string{g.DescriptorPath(), g.TilesDir()} {
		if _, err := os.Stat(path); err == nil {
			existed = true
		} else if !os.IsNotExist(err) {
			return existed, err
		}
		if err := os.RemoveAll(path); err != nil {
			return existed, fmt.Errorf("removing %s: %w", path, err)
		}
	}
	return existed, nil
}

// Generate builds the full pyramid from the source image. Any backend
// failure aborts immediately: remaining levels are skipped and no
// descriptor is written, but the clean-slate removal of prior output is
// not undone. The temporary working directory is discarded on every exit
// path.
func (g *Generator) Generate(ctx context.Context, src string) (*Result, error) {
	o := g.opts

	if o.Name == "" {
		return nil, fmt.Errorf("output name must not be empty")
	}
	if err := dzi.ValidateTiling(o.TileSize, o.Overlap, o.Strategy == StrategyOverlap); err != nil {
		return nil, err
	}

	width, height, err := g.tool.Dimensions(ctx, src)
	if err != nil {
		return nil, err
	}

	replaced, err := g.Remove()
	if err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp("", "dzgen-")
	if err != nil {
		return nil, fmt.Errorf("creating working directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	work := filepath.Join(tmp, "working."+o.Format)
	err = g.tool.Normalize(ctx, src, work, imagetool.NormalizeOptions{
		Strip:   o.Strip,
		Profile: o.Profile,
		Filter:  o.Filter,
		Quality: o.Quality,
	})
	if err != nil {
		return nil, err
	}

	maxLevel := dzi.MaxLevel(width, height)
	fmt.Fprintf(os.Stderr, "==Source: %s (%dx%d)\n", src, width, height)
	fmt.Fprintf(os.Stderr, "==Levels: %d down to 0\n", maxLevel)

	levelWidth, levelHeight := width, height
	tiles := 0
	for level := maxLevel; level >= 0; level-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		levelDir := filepath.Join(g.TilesDir(), strconv.Itoa(level))
		if err := os.MkdirAll(levelDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating level directory: %w", err)
		}

		n, err := g.writeTiles(ctx, work, levelDir, levelWidth, levelHeight)
		if err != nil {
			return nil, err
		}
		tiles += n
		fmt.Fprintf(os.Stderr, "==Level %d: %dx%d, %d tiles\n", level, levelWidth, levelHeight, n)

		if level > 0 {
			if err := g.tool.Halve(ctx, work, o.Filter, o.Quality); err != nil {
				return nil, err
			}
			levelWidth, levelHeight = dzi.LevelDims(levelWidth, levelHeight, level-1, level)
		}
	}

	// The descriptor always records the original dimensions, never a
	// scaled level's.
	desc := &dzi.Descriptor{
		TileSize: o.TileSize,
		Overlap:  o.Overlap,
		Format:   o.Format,
		Width:    width,
		Height:   height,
	}
	if err := desc.Write(g.DescriptorPath()); err != nil {
		return nil, fmt.Errorf("writing descriptor: %w", err)
	}

	return &Result{
		Name:     o.Name,
		Width:    width,
		Height:   height,
		MaxLevel: maxLevel,
		Levels:   maxLevel + 1,
		Tiles:    tiles,
		Replaced: replaced,
	}, nil
}

func (g *Generator) writeTiles(ctx context.Context, work, levelDir string, width, height int) (int, error) {
	o := g.opts

	switch o.Strategy {
	case StrategyOverlap:
		rects := dzi.OverlapGrid(width, height, o.TileSize, o.Overlap)
		for _, r := range rects {
			dst := filepath.Join(levelDir, fmt.Sprintf("%d_%d.%s", r.Col, r.Row, o.Format))
			if err := g.tool.Crop(ctx, work, dst, r.X, r.Y, r.Width, r.Height, o.Quality); err != nil {
				return 0, err
			}
		}
		return len(rects), nil

	default:
		if err := g.tool.GridCrop(ctx, work, levelDir, o.Format, o.TileSize, o.Quality); err != nil {
			return 0, err
		}
		return dzi.GridCols(width, o.TileSize) * dzi.GridCols(height, o.TileSize), nil
	}
}
