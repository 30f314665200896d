package parser

import (
	"context"
	"sync"
	"sync/atomic"

	"sorcerer/internal/core/errors"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ParserPool recycles tree-sitter parsers configured for one grammar.
// Workspace indexing parses many files in parallel; each worker leases a
// parser for a single file and returns it afterwards.
//
//	sp := pool.Get()
//	defer pool.Put(sp)
//	tree := sp.Parse(source, nil)
//
// Safe for concurrent use.
type ParserPool struct {
	lang   *sitter.Language
	pool   sync.Pool
	leased atomic.Int64
}

// NewParserPool creates a pool for the given language grammar.
// The language must remain valid for the lifetime of the pool.
func NewParserPool(lang *sitter.Language) *ParserPool {
	p := &ParserPool{lang: lang}
	p.pool = sync.Pool{
		New: func() any {
			sp := sitter.NewParser()
			_ = sp.SetLanguage(lang)
			return sp
		},
	}
	return p
}

// Get leases a parser. The language is set again in case the parser was
// Reset() by a previous holder.
func (p *ParserPool) Get() *sitter.Parser {
	sp := p.pool.Get().(*sitter.Parser)
	_ = sp.SetLanguage(p.lang)
	p.leased.Add(1)
	return sp
}

// Put resets sp and returns it to the pool. Callers must not use sp after Put.
func (p *ParserPool) Put(sp *sitter.Parser) {
	if sp == nil {
		return
	}
	p.leased.Add(-1)
	sp.Reset()
	p.pool.Put(sp)
}

// Parse leases a parser for one parse. The caller owns the returned tree
// and must Close it.
func (p *ParserPool) Parse(ctx context.Context, source []byte) (*sitter.Tree, error) {
	sp := p.Get()
	defer p.Put(sp)

	length := len(source)
	tree := sp.ParseWithOptions(func(i int, _ sitter.Point) []byte {
		if i < length {
			return source[i:]
		}
		return []byte{}
	}, nil, &sitter.ParseOptions{
		ProgressCallback: func(sitter.ParseState) bool { return ctx.Err() != nil },
	})
	if tree == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New(errors.CodeInternal, "tree-sitter parse failed")
	}
	return tree, nil
}

// Active returns the number of parsers currently leased.
func (p *ParserPool) Active() int {
	return int(p.leased.Load())
}
