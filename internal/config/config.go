// Package config resolves run configuration from compiled defaults, an
// optional YAML config file, and explicit CLI overrides, in that order of
// precedence (later layers win).
package config

import (
	"fmt"
	"runtime"
)

// Effective is the fully resolved, immutable configuration for one run.
// Callers build it via Default, ApplyFile, and flag overrides, then call
// Validate exactly once before handing it to the pipeline.
type Effective struct {
	// Quality is the lossy re-encode quality for JPEG and WebP, 1-100.
	// PNG output ignores it and always uses lossless best compression.
	Quality int

	// MaxWidth and MaxHeight bound output dimensions; 0 means unbounded.
	// Images already within bounds are never upscaled.
	MaxWidth  int
	MaxHeight int

	// Recursive enables descending into subdirectories of the input root.
	Recursive bool

	// InPlace rewrites optimized files at their source path. When set,
	// OutputDir is ignored.
	InPlace bool

	// DryRun computes every outcome without writing any file.
	DryRun bool

	// OutputDir is the root of the output tree; source files keep their
	// relative position under it. Meaningless when InPlace is set.
	OutputDir string

	// SkipPatterns are doublestar globs matched against relative paths.
	// Matching files are excluded from the run entirely.
	SkipPatterns []string

	// Workers is the number of concurrent per-file transforms.
	Workers int
}

// DefaultOutputDir mirrors the conventional "optimized" destination used
// when neither --output nor --inplace is given.
const DefaultOutputDir = "optimized"

// Default returns the compiled-in configuration layer.
func Default() Effective {
	return Effective{
		Quality:   85,
		OutputDir: DefaultOutputDir,
		Workers:   runtime.NumCPU(),
	}
}

// Validate enforces the invariants the pipeline relies on. It never
// mutates the receiver.
func (c Effective) Validate() error {
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", c.Quality)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxWidth < 0 {
		return fmt.Errorf("max-width must not be negative, got %d", c.MaxWidth)
	}
	if c.MaxHeight < 0 {
		return fmt.Errorf("max-height must not be negative, got %d", c.MaxHeight)
	}
	if !c.InPlace && c.OutputDir == "" {
		return fmt.Errorf("output directory required when not optimizing in place")
	}
	return nil
}
