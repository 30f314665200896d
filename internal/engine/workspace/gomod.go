package workspace

import (
	"os"
	"path/filepath"
	"regexp"

	"sorcerer/internal/core/errors"
)

var moduleDirective = regexp.MustCompile(`(?m)^\s*module\s+"?([^\s"]+)"?`)

// FindModule walks up from startPath to the nearest go.mod and returns the
// module root directory and module path.
func FindModule(startPath string) (root, modulePath string, err error) {
	abs, err := filepath.Abs(startPath)
	if err != nil {
		return "", "", err
	}
	current := abs
	if info, statErr := os.Stat(abs); statErr != nil || !info.IsDir() {
		current = filepath.Dir(abs)
	}

	for {
		modFile := filepath.Join(current, "go.mod")
		if _, statErr := os.Stat(modFile); statErr == nil {
			data, readErr := os.ReadFile(modFile)
			if readErr != nil {
				return "", "", readErr
			}
			m := moduleDirective.FindSubmatch(data)
			if len(m) < 2 {
				return "", "", errors.Newf(errors.CodeValidationError, "no module directive in %s", modFile)
			}
			return current, string(m[1]), nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", "", errors.AddContext(errors.New(errors.CodeNotFound, "no go.mod found"), errors.CtxPath, startPath)
		}
		current = parent
	}
}

// ImportPathFor maps a package directory inside root to its import path.
func ImportPathFor(root, modulePath, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return modulePath
	}
	return modulePath + "/" + filepath.ToSlash(rel)
}
