package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// includeWalker overlays files listed under "includes" onto a Config.
// Later files win over earlier ones; the including file is re-applied by
// the caller so its own values take precedence.
type includeWalker struct {
	seen map[string]bool
}

func newIncludeWalker(root string) *includeWalker {
	w := &includeWalker{seen: make(map[string]bool)}
	if abs, err := filepath.Abs(root); err == nil {
		w.seen[abs] = true
	}
	return w
}

func (w *includeWalker) apply(cfg *Config, patterns []string, dir string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("config includes: nesting deeper than %d", maxIncludeDepth)
	}
	for _, pattern := range patterns {
		files, err := expandInclude(pattern, dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			abs, err := filepath.Abs(f)
			if err != nil {
				return fmt.Errorf("config includes: %q: %w", f, err)
			}
			if w.seen[abs] {
				return fmt.Errorf("config includes: %q included twice (cycle?)", abs)
			}
			w.seen[abs] = true
			if err := w.overlay(cfg, abs, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *includeWalker) overlay(cfg *Config, path string, depth int) error {
	if err := validatePermissions(path); err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config includes: read %q: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}

	cfg.Includes = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config includes: parse %q: %w", path, err)
	}
	nested := cfg.Includes
	cfg.Includes = nil
	if len(nested) == 0 {
		return nil
	}
	return w.apply(cfg, nested, filepath.Dir(path), depth)
}

// expandInclude resolves pattern against dir. Literal paths are returned even
// when missing so the read reports the error; empty globs match nothing.
func expandInclude(pattern, dir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(dir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("config includes: %q is outside %s", pattern, dir)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	return matches, nil
}
