package optimize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"squish/internal/codec"
	"squish/internal/config"
	"squish/internal/pipeline"
	"squish/pkg/imgutil"
)

// Error taxonomy for per-file failures. All are isolated to their file;
// none aborts the run.
var (
	// ErrPlan marks sources rejected before any transform runs.
	ErrPlan = errors.New("plan rejected")

	// ErrTransform marks codec or read failures during the transform.
	ErrTransform = errors.New("transform failed")

	// ErrWrite marks failures while writing the target atomically.
	ErrWrite = errors.New("write failed")
)

// Engine executes one candidate at a time. Safe for concurrent use by
// multiple workers; each invocation owns its candidate and plan.
type Engine struct {
	cfg   config.Effective
	codec codec.Codec
	log   *slog.Logger
}

func New(cfg config.Effective, cd codec.Codec, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, codec: cd, log: log}
}

// Execute runs inspect, plan, transform, verify for one candidate. The
// only filesystem side effect is the atomic write of the target when the
// plan calls for one; a failure never leaves a partial target behind.
func (e *Engine) Execute(ctx context.Context, c pipeline.Candidate) pipeline.Outcome {
	start := time.Now()
	out := pipeline.Outcome{
		Candidate:    c,
		OriginalSize: c.Size,
		ResultSize:   c.Size,
	}

	fail := func(err error) pipeline.Outcome {
		out.Status = pipeline.StatusFailed
		out.ResultSize = c.Size
		out.Err = err
		out.Elapsed = time.Since(start)
		e.log.Debug("file failed", "path", c.Rel, "error", err)
		return out
	}

	if c.Size == 0 {
		return fail(fmt.Errorf("%w: empty source file", ErrPlan))
	}

	target := TargetPath(c, e.cfg)
	if !e.cfg.InPlace && filepath.Clean(target) == filepath.Clean(c.Path) {
		return fail(fmt.Errorf("%w: output path resolves to source path", ErrPlan))
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrPlan, err))
	}

	if kind, err := imgutil.DetectHeader(headerOf(data)); err != nil || kind != c.Format {
		return fail(fmt.Errorf("%w: content is not %s", ErrPlan, c.Format))
	}

	meta, err := e.codec.Extract(data, c.Format)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrTransform, err))
	}

	img, err := e.codec.Decode(data, c.Format)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrTransform, err))
	}

	bounds := img.Bounds()
	plan := PlanFor(c, bounds.Dx(), bounds.Dy(), e.cfg)

	if plan.Resize {
		img = e.codec.Resize(img, plan.Width, plan.Height)
	}

	encoded, err := e.codec.Encode(img, c.Format, codec.EncodeOptions{
		Quality:  plan.Quality,
		Lossless: losslessFor(c.Format),
		Meta:     meta,
	})
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrTransform, err))
	}

	out.Detail = codec.DescribeEXIF(meta.EXIF)
	out.Elapsed = time.Since(start)

	if !plan.Write {
		out.Status = pipeline.StatusSkippedDryRun
		out.ResultSize = int64(len(encoded))
		return out
	}

	if int64(len(encoded)) >= c.Size {
		// The transform would grow the file: discard it and leave the
		// source untouched. This is what makes in-place runs repeatable.
		out.Status = pipeline.StatusSkippedLarger
		return out
	}

	if err := writeAtomic(target, encoded, c.Mode, c.ModTime); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrWrite, err))
	}

	out.Status = pipeline.StatusOptimized
	out.ResultSize = int64(len(encoded))
	out.Elapsed = time.Since(start)
	return out
}

// writeAtomic writes data to target via a temp file in the same
// directory followed by a rename, so the target either fully exists or
// not at all. The source's mtime is reapplied to the written file; atime
// cannot be read portably, so mtime stands in for both (platform caveat).
func writeAtomic(target string, data []byte, mode fs.FileMode, modTime time.Time) error {
	destDir := filepath.Dir(target)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(destDir, ".squish-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(mode.Perm()); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := replaceFile(tmp.Name(), target); err != nil {
		return err
	}

	return os.Chtimes(target, modTime, modTime)
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}

func headerOf(data []byte) []byte {
	if len(data) < imgutil.HeaderLen {
		return data
	}
	return data[:imgutil.HeaderLen]
}
