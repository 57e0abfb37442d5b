package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

func ExpandHomePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(home, strings.TrimPrefix(p, "~")))
	}
	return filepath.Clean(p)
}

// UnderRoot resolves p against root unless p is already absolute (after ~
// expansion). An empty p yields filepath.Join(root, fallback).
func UnderRoot(root, p, fallback string) string {
	root = ExpandHomePath(root)
	p = strings.TrimSpace(p)
	if p == "" {
		p = fallback
	}
	p = ExpandHomePath(p)
	if filepath.IsAbs(p) || root == "" {
		return p
	}
	return filepath.Join(root, p)
}
