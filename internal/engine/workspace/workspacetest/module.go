// Package workspacetest writes throwaway Go modules for tests.
package workspacetest

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteModule creates a module under t.TempDir() from relative path to
// content pairs and returns its root. A go.mod is added when missing.
func WriteModule(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	if _, ok := files["go.mod"]; !ok {
		files["go.mod"] = "module example.com/shop\n\ngo 1.24\n"
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// Shop is a small module with cross-package references, a mutually
// recursive pair, two FakeClock types and files that must not be indexed.
func Shop() map[string]string {
	return map[string]string{
		".gitignore": "generated/\n",
		"clock/clock.go": `package clock

import "time"

// Clock abstracts the current time.
type Clock interface {
	Now() time.Time
}

type FakeClock struct {
	now time.Time
}

func (f *FakeClock) Now() time.Time { return f.now }
`,
		"fakes/clock.go": `package fakes

type FakeClock struct {
	Ticks int
}
`,
		"money/money.go": `package money

type Amount struct {
	Cents    int64
	Currency Currency
}

type Currency string
`,
		"order/order.go": `package order

import (
	"example.com/shop/clock"
	m "example.com/shop/money"
)

type Order struct {
	ID    string
	Total m.Amount
	Lines []Line
	clock clock.Clock
}

type Line struct {
	Order *Order
	Qty   int
}
`,
		"order/service.go": `package order

import "github.com/stretchr/testify/assert"

type Service struct {
	orders []Order
}

func (s *Service) Place(o Order) (Receipt, error) {
	var _ assert.TestingT
	return Receipt{}, nil
}

type Receipt struct {
	Number int
}
`,
		"order/order_test.go": `package order

import "testing"

type testOnly struct{}

func TestOrder(t *testing.T) {}
`,
		"vendor/example.com/dep/dep.go":     "package dep\n\ntype Dep struct{}\n",
		"generated/gen.go":                  "package generated\n\ntype Gen struct{}\n",
		"tools/nested/go.mod":               "module example.com/tools\n",
		"tools/nested/tool.go":              "package nested\n\ntype Tool struct{}\n",
		"order/testdata/fixture/fixture.go": "package fixture\n\ntype Fixture struct{}\n",
	}
}
