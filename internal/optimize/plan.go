// Package optimize is the per-file engine: plan the transform, run it
// through the codec, verify the result, and write it atomically.
package optimize

import (
	"math"
	"path/filepath"

	"squish/internal/config"
	"squish/internal/pipeline"
	"squish/pkg/imgutil"
)

// Plan is the per-candidate decision, derived before any transform runs
// and never shared across workers.
type Plan struct {
	// Width and Height are the target dimensions.
	Width  int
	Height int

	// Resize is set when the target dimensions differ from the source.
	Resize bool

	// Quality is the lossy encode quality; ignored for PNG.
	Quality int

	// TargetPath is where the optimized bytes go: the source path in
	// in-place mode, otherwise the relative path under the output root.
	TargetPath string

	// Write is false in dry-run mode: the transform is computed but no
	// file is produced.
	Write bool
}

// PlanFor derives the plan for a candidate with known source dimensions.
func PlanFor(c pipeline.Candidate, srcWidth, srcHeight int, cfg config.Effective) Plan {
	width, height, resize := FitWithin(srcWidth, srcHeight, cfg.MaxWidth, cfg.MaxHeight)
	return Plan{
		Width:      width,
		Height:     height,
		Resize:     resize,
		Quality:    cfg.Quality,
		TargetPath: TargetPath(c, cfg),
		Write:      !cfg.DryRun,
	}
}

// FitWithin scales (width, height) down uniformly so both fit within the
// given bounds (0 = unbounded), preserving aspect ratio. It never
// upscales, rounds to the nearest pixel, and floors at 1x1.
func FitWithin(width, height, maxWidth, maxHeight int) (int, int, bool) {
	scale := 1.0
	if maxWidth > 0 && width > maxWidth {
		scale = float64(maxWidth) / float64(width)
	}
	if maxHeight > 0 && height > maxHeight {
		if s := float64(maxHeight) / float64(height); s < scale {
			scale = s
		}
	}
	if scale >= 1 {
		return width, height, false
	}

	outW := int(math.Round(float64(width) * scale))
	outH := int(math.Round(float64(height) * scale))
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	return outW, outH, true
}

// TargetPath resolves where a candidate's output belongs.
func TargetPath(c pipeline.Candidate, cfg config.Effective) string {
	if cfg.InPlace {
		return c.Path
	}
	return filepath.Join(cfg.OutputDir, filepath.FromSlash(c.Rel))
}

// losslessFor reports whether the format is re-encoded in the codec's
// lossless-optimize mode instead of at a numeric quality.
func losslessFor(kind imgutil.Kind) bool {
	return kind == imgutil.KindPNG
}
