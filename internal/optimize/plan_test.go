package optimize

import (
	"path/filepath"
	"testing"

	"squish/internal/config"
	"squish/internal/pipeline"
)

func TestFitWithin(t *testing.T) {
	cases := []struct {
		name         string
		w, h         int
		maxW, maxH   int
		wantW, wantH int
		wantResize   bool
	}{
		{"no bounds", 2000, 1500, 0, 0, 2000, 1500, false},
		{"fits both", 800, 600, 1000, 1000, 800, 600, false},
		{"width bound", 2000, 1500, 1000, 0, 1000, 750, true},
		{"height bound", 2000, 1500, 0, 750, 1000, 750, true},
		{"both bounds width wins", 2000, 1500, 500, 1000, 500, 375, true},
		{"both bounds height wins", 2000, 1500, 1900, 300, 400, 300, true},
		{"never upscale", 100, 100, 5000, 5000, 100, 100, false},
		{"exact fit", 1000, 1000, 1000, 1000, 1000, 1000, false},
		{"rounding", 1000, 999, 100, 100, 100, 100, true},
		{"floor at one", 10000, 1, 100, 0, 100, 1, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotW, gotH, resized := FitWithin(tc.w, tc.h, tc.maxW, tc.maxH)
			if gotW != tc.wantW || gotH != tc.wantH || resized != tc.wantResize {
				t.Fatalf("FitWithin(%d,%d,%d,%d) = (%d,%d,%v), want (%d,%d,%v)",
					tc.w, tc.h, tc.maxW, tc.maxH, gotW, gotH, resized, tc.wantW, tc.wantH, tc.wantResize)
			}
			if tc.maxW > 0 && gotW > tc.maxW {
				t.Fatalf("width %d exceeds bound %d", gotW, tc.maxW)
			}
			if tc.maxH > 0 && gotH > tc.maxH {
				t.Fatalf("height %d exceeds bound %d", gotH, tc.maxH)
			}
			if gotW > tc.w || gotH > tc.h {
				t.Fatalf("upscaled (%d,%d) beyond (%d,%d)", gotW, gotH, tc.w, tc.h)
			}
		})
	}
}

func TestTargetPath(t *testing.T) {
	cand := pipeline.Candidate{Path: "/photos/sub/a.jpg", Rel: "sub/a.jpg"}

	inPlace := config.Effective{InPlace: true}
	if got := TargetPath(cand, inPlace); got != cand.Path {
		t.Fatalf("in-place target = %q, want source path", got)
	}

	outTree := config.Effective{OutputDir: "out"}
	want := filepath.Join("out", "sub", "a.jpg")
	if got := TargetPath(cand, outTree); got != want {
		t.Fatalf("target = %q, want %q", got, want)
	}
}

func TestPlanForDryRun(t *testing.T) {
	cand := pipeline.Candidate{Path: "/photos/a.jpg", Rel: "a.jpg"}
	cfg := config.Effective{Quality: 80, MaxWidth: 100, DryRun: true, OutputDir: "out"}

	plan := PlanFor(cand, 400, 200, cfg)
	if plan.Write {
		t.Fatal("dry-run plan must not write")
	}
	if !plan.Resize || plan.Width != 100 || plan.Height != 50 {
		t.Fatalf("plan dims = (%d,%d) resize=%v, want (100,50) true", plan.Width, plan.Height, plan.Resize)
	}
	if plan.Quality != 80 {
		t.Fatalf("plan quality = %d, want 80", plan.Quality)
	}
}
