package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is looked up inside the input directory when no --config
// path is given.
const ConfigFileName = ".squish.yaml"

// fileConfig is the YAML file layer. Every field is a pointer so that
// absent keys leave the lower layer untouched.
type fileConfig struct {
	Quality      *int     `yaml:"quality"`
	MaxWidth     *int     `yaml:"max_width"`
	MaxHeight    *int     `yaml:"max_height"`
	Recursive    *bool    `yaml:"recursive"`
	InPlace      *bool    `yaml:"inplace"`
	DryRun       *bool    `yaml:"dry_run"`
	OutputDir    *string  `yaml:"output"`
	SkipPatterns []string `yaml:"skip"`
	Workers      *int     `yaml:"workers"`
}

// ApplyFile overlays the YAML file at path onto base and returns the
// result. A missing file is not an error when required is false.
func ApplyFile(base Effective, path string, required bool) (Effective, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return base, nil
		}
		return base, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return base, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return overlay(base, fc), nil
}

func overlay(base Effective, fc fileConfig) Effective {
	out := base
	if fc.Quality != nil {
		out.Quality = *fc.Quality
	}
	if fc.MaxWidth != nil {
		out.MaxWidth = *fc.MaxWidth
	}
	if fc.MaxHeight != nil {
		out.MaxHeight = *fc.MaxHeight
	}
	if fc.Recursive != nil {
		out.Recursive = *fc.Recursive
	}
	if fc.InPlace != nil {
		out.InPlace = *fc.InPlace
	}
	if fc.DryRun != nil {
		out.DryRun = *fc.DryRun
	}
	if fc.OutputDir != nil {
		out.OutputDir = *fc.OutputDir
	}
	if len(fc.SkipPatterns) > 0 {
		out.SkipPatterns = append([]string(nil), fc.SkipPatterns...)
	}
	if fc.Workers != nil {
		out.Workers = *fc.Workers
	}
	return out
}
