package parser

import (
	"context"
	"path/filepath"
	"strings"

	"sorcerer/internal/core/errors"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
)

func GoLanguage() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_go.Language())
}

// Parser turns Go source into a File. Safe for concurrent use.
type Parser struct {
	pool      *ParserPool
	extractor *GoExtractor
}

func NewParser() *Parser {
	return &Parser{
		pool:      NewParserPool(GoLanguage()),
		extractor: &GoExtractor{},
	}
}

func (p *Parser) ParseFile(ctx context.Context, path string, content []byte) (*File, error) {
	if !IsGoSource(path) {
		return nil, errors.Newf(errors.CodeValidationError, "not a Go source file: %s", path)
	}

	tree, err := p.pool.Parse(ctx, content)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	defer tree.Close()

	file, err := p.extractor.Extract(tree.RootNode(), content, path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "extraction failed")
	}
	return file, nil
}

func IsGoSource(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".go")
}

func IsTestFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(filepath.Base(path)), "_test.go")
}
