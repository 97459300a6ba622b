package config

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultLogsSubdir = "logs"

// configDir returns the absolute directory holding path, or "" when it cannot be resolved.
func configDir(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	return filepath.Dir(abs)
}

// resolvePath anchors a relative runtime path at base. An empty base means the working
// directory.
func resolvePath(base, raw, fallback string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		target = fallback
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return filepath.Clean(target)
		}
		base = wd
	}
	return filepath.Clean(filepath.Join(base, target))
}
