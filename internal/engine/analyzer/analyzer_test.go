package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
	"sorcerer/internal/engine/crawler"
	"sorcerer/internal/engine/workspace/workspacetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinder struct {
	types map[string]model.Definition
	calls []string
}

func (f *fakeFinder) FindSingleClassDefinition(_ context.Context, _ string, className string) (*model.DefinitionResult, error) {
	f.calls = append(f.calls, className)
	def, ok := f.types[className]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "type not found in workspace")
	}
	r := model.NewDefinitionResult(def.File)
	r.Add(def)
	return r, nil
}

func writeSource(t *testing.T, lines int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uut.go")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x\n", lines)), 0o644))
	return path
}

func mkDef(ns, symbol, file string, lines int) model.Definition {
	return model.Definition{
		Symbol:    symbol,
		Namespace: ns,
		File:      file,
		Code:      strings.TrimSuffix(strings.Repeat("l\n", lines), "\n"),
	}
}

func group(groups ...[]model.Definition) []*model.DefinitionResult {
	var out []*model.DefinitionResult
	for _, g := range groups {
		r := model.NewDefinitionResult(g[0].File)
		for _, d := range g {
			r.Add(d)
		}
		out = append(out, r)
	}
	return out
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		loc  int
		want model.TestWorthiness
	}{
		{0, model.WorthinessExcellent},
		{500, model.WorthinessExcellent},
		{501, model.WorthinessOkay},
		{1000, model.WorthinessOkay},
		{1001, model.WorthinessPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.loc), "loc %d", tt.loc)
	}
}

func TestAnalyzeDedupesAndCountsLines(t *testing.T) {
	uut := writeSource(t, 20)
	a := New(nil, nil)

	// The same type reached from two files is counted once.
	in := group(
		[]model.Definition{mkDef("m/a", "A", "a.go", 3), mkDef("m/b", "B", "a.go", 4)},
		[]model.Definition{mkDef("m/a", "A", "c.go", 3), mkDef("m/c", "C", "c.go", 5)},
	)
	got, err := a.Analyze(context.Background(), in, uut)
	require.NoError(t, err)

	var full []string
	for _, d := range got.Definitions {
		full = append(full, d.FullName())
	}
	assert.Equal(t, []string{"m/a.A", "m/b.B", "m/c.C"}, full)
	assert.Equal(t, 12, got.ContextLoc)
	assert.Equal(t, 32, got.TotalLoc)
	assert.Equal(t, model.WorthinessExcellent, got.TestWorthiness)
	assert.Zero(t, got.Supplements)
}

func TestAnalyzeWorthinessFromTotal(t *testing.T) {
	a := New(nil, nil)
	in := group([]model.Definition{mkDef("m", "Big", "big.go", 600)})

	got, err := a.Analyze(context.Background(), in, writeSource(t, 400))
	require.NoError(t, err)
	assert.Equal(t, 1000, got.TotalLoc)
	assert.Equal(t, model.WorthinessOkay, got.TestWorthiness)

	got, err = a.Analyze(context.Background(), in, writeSource(t, 401))
	require.NoError(t, err)
	assert.Equal(t, model.WorthinessPoor, got.TestWorthiness)
}

func TestAnalyzeSupplements(t *testing.T) {
	finder := &fakeFinder{types: map[string]model.Definition{
		"FakeClock": mkDef("m/fakes", "FakeClock", "fakes.go", 2),
	}}
	a := New(finder, []Rule{
		{Symbol: "Clock", Type: "FakeClock", Reason: "prefer the fake clock"},
		{Symbol: "Ticker", Type: "FakeTicker", Reason: "prefer the fake ticker"},
	})

	in := group([]model.Definition{
		mkDef("m/clock", "Clock", "clock.go", 3),
		mkDef("m/tick", "Ticker", "clock.go", 3),
		mkDef("m/order", "Order", "clock.go", 3),
	})
	got, err := a.Analyze(context.Background(), in, writeSource(t, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, got.Supplements, "a failed lookup is not counted")
	assert.Equal(t, []string{"FakeClock", "FakeTicker"}, finder.calls)
	require.NotNil(t, got.Definitions[0].Supplement)
	assert.Equal(t, "FakeClock", got.Definitions[0].Supplement.Definition.Symbol)
	assert.Equal(t, "prefer the fake clock", got.Definitions[0].Supplement.Reason)
	assert.Nil(t, got.Definitions[1].Supplement)
	assert.Nil(t, got.Definitions[2].Supplement)
}

func TestAnalyzeSupplementsTypesDeclaredInTarget(t *testing.T) {
	finder := &fakeFinder{types: map[string]model.Definition{
		"FakeClock": mkDef("m/fakes", "FakeClock", "fakes.go", 2),
	}}
	a := New(finder, []Rule{{Symbol: "Clock", Type: "FakeClock", Reason: "prefer the fake clock"}})

	clock := mkDef("m/svc", "Clock", "uut.go", 3)
	clock.InTarget = true
	in := group([]model.Definition{clock}, []model.Definition{mkDef("m/money", "Amount", "money.go", 4)})

	got, err := a.Analyze(context.Background(), in, writeSource(t, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Supplements)
	require.NotNil(t, got.Definitions[0].Supplement)
	assert.Equal(t, "FakeClock", got.Definitions[0].Supplement.Definition.Symbol)
	assert.Equal(t, 4, got.ContextLoc, "code under test is counted once")
	assert.Equal(t, 14, got.TotalLoc)
}

func TestAnalyzeCrawledInterfaceDeclaredInTarget(t *testing.T) {
	root := workspacetest.WriteModule(t, map[string]string{
		"svc/service.go": `package svc

import "time"

type Clock interface {
	Now() time.Time
}

type Service struct {
	clock Clock
}

func (s *Service) Stamp() time.Time { return s.clock.Now() }
`,
		"fakes/fake.go": `package fakes

import "time"

type FakeClock struct {
	At time.Time
}

func (f *FakeClock) Now() time.Time { return f.At }
`,
	})
	c := crawler.New(crawler.Options{})
	defer c.Close()
	target := filepath.Join(root, "svc", "service.go")

	results, err := c.FindDefinitions(context.Background(), target, 2)
	require.NoError(t, err)

	got, err := New(c, []Rule{{Symbol: "Clock", Type: "FakeClock", Reason: "prefer the fake clock"}}).Analyze(context.Background(), results, target)
	require.NoError(t, err)
	require.Len(t, got.Definitions, 1)
	assert.Equal(t, 1, got.Supplements)
	require.NotNil(t, got.Definitions[0].Supplement)
	assert.Equal(t, "example.com/shop/fakes.FakeClock", got.Definitions[0].Supplement.Definition.FullName())
}

func TestAnalyzeLeavesInputUntouched(t *testing.T) {
	finder := &fakeFinder{types: map[string]model.Definition{"FakeClock": mkDef("m", "FakeClock", "f.go", 1)}}
	a := New(finder, []Rule{{Symbol: "Clock", Type: "FakeClock"}})
	in := group([]model.Definition{mkDef("m", "Clock", "c.go", 1)})

	_, err := a.Analyze(context.Background(), in, writeSource(t, 1))
	require.NoError(t, err)
	assert.Nil(t, in[0].Definitions()[0].Supplement)
}

func TestAnalyzeMissingFile(t *testing.T) {
	_, err := New(nil, nil).Analyze(context.Background(), nil, filepath.Join(t.TempDir(), "nope.go"))
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}
