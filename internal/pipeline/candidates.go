package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"squish/internal/config"
	"squish/pkg/imgutil"
)

// Enumerate walks root and returns the candidates for one run, sorted
// lexicographically by relative path for deterministic scheduling.
// Files matching a skip pattern are excluded entirely and never appear
// in run statistics. A fresh enumeration is required for each run.
func Enumerate(root string, cfg config.Effective) ([]Candidate, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &EnumerationError{Root: root, Err: err}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &EnumerationError{Root: root, Err: err}
	}

	for _, pattern := range cfg.SkipPatterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, &EnumerationError{Root: root, Err: &fs.PathError{Op: "pattern", Path: pattern, Err: doublestar.ErrBadPattern}}
		}
	}

	if !info.IsDir() {
		cand, ok, err := buildCandidate(absRoot, filepath.Base(absRoot), cfg)
		if err != nil || !ok {
			return nil, err
		}
		return []Candidate{cand}, nil
	}

	// When the output tree nests inside the input root, prune it so a
	// second run never re-reads its own output.
	var outputAbs string
	if !cfg.InPlace && cfg.OutputDir != "" {
		if abs, err := filepath.Abs(cfg.OutputDir); err == nil && abs != filepath.Clean(absRoot) && isWithin(abs, absRoot) {
			outputAbs = abs
		}
	}

	var candidates []Candidate
	fsys := os.DirFS(absRoot)
	walkErr := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == "." {
				return nil
			}
			if !cfg.Recursive {
				return fs.SkipDir
			}
			if outputAbs != "" && isWithin(filepath.Join(absRoot, path), outputAbs) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		cand, ok, err := buildCandidate(filepath.Join(absRoot, path), path, cfg)
		if err != nil {
			// The file vanished or became unreadable between readdir
			// and stat; it is no longer part of this run. Only the
			// root itself is fatal to enumeration.
			return nil
		}
		if ok {
			candidates = append(candidates, cand)
		}
		return nil
	})
	if walkErr != nil {
		return nil, &EnumerationError{Root: root, Err: walkErr}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Rel < candidates[j].Rel })
	return candidates, nil
}

func buildCandidate(path, rel string, cfg config.Effective) (Candidate, bool, error) {
	kind := imgutil.KindForPath(rel)
	if kind == imgutil.KindUnknown {
		return Candidate{}, false, nil
	}

	rel = filepath.ToSlash(rel)
	for _, pattern := range cfg.SkipPatterns {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return Candidate{}, false, nil
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return Candidate{}, false, err
	}

	return Candidate{
		Path:    path,
		Rel:     rel,
		Format:  kind,
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
	}, true, nil
}

func isWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..")
}
