package app

import (
	"path/filepath"
	"strings"

	"sorcerer/internal/core/model"
)

// OutputPath is where the tests for sourcePath are written: next to the
// source as {name}_test.go, or, when testsRoot is set, under testsRoot at
// the source package's path relative to the module root.
func OutputPath(project model.Project, sourcePath, testsRoot string) string {
	name := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath)) + "_test.go"
	if testsRoot == "" {
		return filepath.Join(filepath.Dir(sourcePath), name)
	}

	rel := strings.TrimPrefix(project.ImportPath, project.ModulePath)
	rel = strings.TrimPrefix(rel, "/")
	if !filepath.IsAbs(testsRoot) && project.ModuleRoot != "" {
		testsRoot = filepath.Join(project.ModuleRoot, testsRoot)
	}
	return filepath.Join(testsRoot, filepath.FromSlash(rel), name)
}

// TestPackageName is the package clause for a test file in testDir. Tests
// outside the source directory use the external test package.
func TestPackageName(project model.Project, testDir string) string {
	if filepath.Clean(testDir) == filepath.Clean(project.Dir) {
		return project.Name
	}
	return project.Name + "_test"
}
