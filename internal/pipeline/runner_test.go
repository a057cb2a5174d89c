package pipeline_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"squish/internal/codec"
	"squish/internal/config"
	"squish/internal/optimize"
	"squish/internal/pipeline"
	"squish/pkg/imgutil"
)

// stubEngine returns canned outcomes and records every candidate it saw.
type stubEngine struct {
	mu   sync.Mutex
	seen map[string]int
}

func newStubEngine() *stubEngine {
	return &stubEngine{seen: make(map[string]int)}
}

func (s *stubEngine) Execute(ctx context.Context, c pipeline.Candidate) pipeline.Outcome {
	s.mu.Lock()
	s.seen[c.Rel]++
	s.mu.Unlock()

	out := pipeline.Outcome{Candidate: c, OriginalSize: c.Size, ResultSize: c.Size}
	switch {
	case strings.HasPrefix(c.Rel, "fail"):
		out.Status = pipeline.StatusFailed
		out.Err = fmt.Errorf("stub failure for %s", c.Rel)
	case strings.HasPrefix(c.Rel, "skip"):
		out.Status = pipeline.StatusSkippedLarger
	default:
		out.Status = pipeline.StatusOptimized
		out.ResultSize = c.Size / 2
	}
	return out
}

func stubCandidates(n int) []pipeline.Candidate {
	candidates := make([]pipeline.Candidate, 0, n)
	for i := 0; i < n; i++ {
		rel := fmt.Sprintf("img-%03d.jpg", i)
		switch i % 5 {
		case 3:
			rel = fmt.Sprintf("skip-%03d.jpg", i)
		case 4:
			rel = fmt.Sprintf("fail-%03d.jpg", i)
		}
		candidates = append(candidates, pipeline.Candidate{
			Path:   "/in/" + rel,
			Rel:    rel,
			Format: imgutil.KindJPEG,
			Size:   int64(1000 + i),
		})
	}
	return candidates
}

func TestRunAttribution(t *testing.T) {
	candidates := stubCandidates(20)
	eng := newStubEngine()

	cfg := config.Default()
	cfg.Workers = 4

	report, err := pipeline.Run(context.Background(), candidates, cfg, eng, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.Stats.Total != len(candidates) {
		t.Fatalf("total = %d, want %d", report.Stats.Total, len(candidates))
	}
	for _, c := range candidates {
		if eng.seen[c.Rel] != 1 {
			t.Fatalf("candidate %s executed %d times", c.Rel, eng.seen[c.Rel])
		}
	}
	if len(report.Outcomes) != len(candidates) {
		t.Fatalf("outcomes = %d, want %d", len(report.Outcomes), len(candidates))
	}
	for _, out := range report.Outcomes {
		if out.Candidate.Rel == "" || out.OriginalSize != out.Candidate.Size {
			t.Fatalf("outcome lost its candidate attribution: %+v", out)
		}
	}
}

func TestRunWorkerCountInvariance(t *testing.T) {
	candidates := stubCandidates(37)

	var reports []pipeline.Report
	for _, workers := range []int{1, 2, 8} {
		cfg := config.Default()
		cfg.Workers = workers
		report, err := pipeline.Run(context.Background(), candidates, cfg, newStubEngine(), nil)
		if err != nil {
			t.Fatalf("run with %d workers: %v", workers, err)
		}
		reports = append(reports, report)
	}

	for i := 1; i < len(reports); i++ {
		if reports[i].Stats != reports[0].Stats {
			t.Fatalf("stats differ across worker counts:\n%+v\n%+v", reports[0].Stats, reports[i].Stats)
		}
	}
}

func TestRunProgressEvents(t *testing.T) {
	candidates := stubCandidates(15)
	cfg := config.Default()
	cfg.Workers = 3

	updates := make(chan pipeline.ProgressUpdate, 8)
	var acc pipeline.ProgressUpdate
	accDone := make(chan struct{})
	go func() {
		defer close(accDone)
		for u := range updates {
			acc.TotalDelta += u.TotalDelta
			acc.DoneDelta += u.DoneDelta
			acc.OptimizedDelta += u.OptimizedDelta
			acc.SkippedDelta += u.SkippedDelta
			acc.FailedDelta += u.FailedDelta
			acc.BytesSavedDelta += u.BytesSavedDelta
		}
	}()

	report, err := pipeline.Run(context.Background(), candidates, cfg, newStubEngine(), updates)
	close(updates)
	<-accDone
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if acc.TotalDelta != len(candidates) {
		t.Fatalf("total events = %d, want one per candidate", acc.TotalDelta)
	}
	if acc.DoneDelta != len(candidates) {
		t.Fatalf("done events = %d, want one per outcome", acc.DoneDelta)
	}
	if acc.OptimizedDelta != report.Stats.Optimized ||
		acc.SkippedDelta != report.Stats.Skipped() ||
		acc.FailedDelta != report.Stats.Failed {
		t.Fatalf("event deltas %+v disagree with stats %+v", acc, report.Stats)
	}
	if acc.BytesSavedDelta != report.Stats.SpaceSaved() {
		t.Fatalf("bytes-saved events %d != stats %d", acc.BytesSavedDelta, report.Stats.SpaceSaved())
	}
}

func TestRunCancellationBestEffort(t *testing.T) {
	candidates := stubCandidates(100)
	cfg := config.Default()
	cfg.Workers = 2

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := pipeline.Run(ctx, candidates, cfg, newStubEngine(), nil)
	if err != nil {
		t.Fatalf("cancelled run must still yield a best-effort report, got %v", err)
	}
	if report.Stats.Total >= len(candidates) {
		t.Fatalf("cancellation did not stop dispatch: %d outcomes", report.Stats.Total)
	}
}

// A progress display can die mid-run (lost terminal, operator quit).
// The consumer side then cancels the run and keeps draining; the
// pipeline must finish with a best-effort report instead of blocking
// on the full event buffer.
func TestRunSurvivesDyingProgressConsumer(t *testing.T) {
	candidates := stubCandidates(200)
	cfg := config.Default()
	cfg.Workers = 4

	updates := make(chan pipeline.ProgressUpdate, 64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for i := 0; i < 5; i++ {
			<-updates
		}
		cancel()
		for range updates {
		}
	}()

	runDone := make(chan struct{})
	var report pipeline.Report
	var runErr error
	go func() {
		defer close(runDone)
		report, runErr = pipeline.Run(ctx, candidates, cfg, newStubEngine(), updates)
	}()

	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("run blocked on a dying progress consumer")
	}
	close(updates)
	<-consumerDone

	if runErr != nil {
		t.Fatalf("cancelled run must still yield a best-effort report, got %v", runErr)
	}
	if report.Stats.Total > len(candidates) {
		t.Fatalf("stats total = %d exceeds candidate count", report.Stats.Total)
	}
}

// End-to-end: enumerate a real tree and run the real engine over it.
func TestRunEndToEnd(t *testing.T) {
	root := t.TempDir()
	writeTestJPEG(t, filepath.Join(root, "a.jpg"), 600, 450, 95)
	writeTestPNG(t, filepath.Join(root, "b.png"))
	writeTestJPEG(t, filepath.Join(root, "photo.draft.jpg"), 40, 40, 90)

	cfg := config.Default()
	cfg.Quality = 80
	cfg.MaxWidth = 300
	cfg.Workers = 2
	cfg.OutputDir = filepath.Join(root, "out")
	cfg.SkipPatterns = []string{"*.draft.*"}

	candidates, err := pipeline.Enumerate(root, cfg)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates = %d, skip pattern not applied", len(candidates))
	}

	eng := optimize.New(cfg, codec.Std(), nil)
	report, err := pipeline.Run(context.Background(), candidates, cfg, eng, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Stats.Total != 2 {
		t.Fatalf("stats total = %d, want 2", report.Stats.Total)
	}

	byRel := make(map[string]pipeline.Outcome)
	for _, out := range report.Outcomes {
		byRel[out.Candidate.Rel] = out
	}
	if _, ok := byRel["photo.draft.jpg"]; ok {
		t.Fatal("skipped-by-pattern file produced an outcome")
	}

	jpgOut := byRel["a.jpg"]
	if jpgOut.Status != pipeline.StatusOptimized {
		t.Fatalf("a.jpg status = %v (err: %v)", jpgOut.Status, jpgOut.Err)
	}
	f, err := os.Open(filepath.Join(cfg.OutputDir, "a.jpg"))
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	imgCfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if imgCfg.Width > 300 {
		t.Fatalf("output width %d exceeds bound", imgCfg.Width)
	}

	pngOut := byRel["b.png"]
	switch pngOut.Status {
	case pipeline.StatusOptimized:
		if pngOut.ResultSize >= pngOut.OriginalSize {
			t.Fatal("optimized PNG is not smaller")
		}
	case pipeline.StatusSkippedLarger:
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, "b.png")); !os.IsNotExist(err) {
			t.Fatal("skipped PNG was written anyway")
		}
	default:
		t.Fatalf("b.png status = %v (err: %v)", pngOut.Status, pngOut.Err)
	}
}

func TestRunDryRunMutatesNothing(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.jpg")
	writeTestJPEG(t, src, 600, 450, 95)
	before, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	cfg := config.Default()
	cfg.Quality = 60
	cfg.DryRun = true
	cfg.OutputDir = filepath.Join(root, "out")

	candidates, err := pipeline.Enumerate(root, cfg)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}

	eng := optimize.New(cfg, codec.Std(), nil)
	report, err := pipeline.Run(context.Background(), candidates, cfg, eng, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.Stats.SkippedDryRun != 1 {
		t.Fatalf("stats = %+v, want one dry-run skip", report.Stats)
	}
	if _, err := os.Stat(cfg.OutputDir); !os.IsNotExist(err) {
		t.Fatal("dry run created the output tree")
	}
	after, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("dry run modified the source")
	}
}

func writeTestJPEG(t *testing.T, path string, w, h, quality int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) * 255 / (w + h)),
				A: 0xff,
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			img.Set(x, y, color.RGBA{R: 0x20, G: 0x70, B: 0xb0, A: 0xff})
		}
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}
