package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeHandler processes a node for the extractor.
// Returns true if the handler has processed children and the walker should stop.
type NodeHandler func(ctx *ExtractionContext, node *sitter.Node) bool

// ExtractionContext carries the source and the file being filled.
type ExtractionContext struct {
	Source []byte
	File   *File
}

// ExtractorEngine walks the syntax tree and dispatches node handlers by kind.
type ExtractorEngine struct {
	handlers map[string]NodeHandler
}

func NewExtractorEngine(handlers map[string]NodeHandler) *ExtractorEngine {
	return &ExtractorEngine{handlers: handlers}
}

func (e *ExtractorEngine) Walk(ctx *ExtractionContext, node *sitter.Node) {
	if node == nil {
		return
	}

	if handler, ok := e.handlers[node.Kind()]; ok {
		if handler(ctx, node) {
			return
		}
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		e.Walk(ctx, node.Child(i))
	}
}

func (c *ExtractionContext) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(c.Source[node.StartByte():node.EndByte()])
}

func (c *ExtractionContext) Line(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}

func (c *ExtractionContext) EndLine(node *sitter.Node) int {
	return int(node.EndPosition().Row) + 1
}

// FromLineStart returns the text of node extended back to the start of
// its first line when only indentation precedes it there, so the
// indentation is kept for later cleaning.
func (c *ExtractionContext) FromLineStart(node *sitter.Node) string {
	start := int(node.StartByte())
	lineStart := start
	for lineStart > 0 && c.Source[lineStart-1] != '\n' {
		lineStart--
	}
	for _, b := range c.Source[lineStart:start] {
		if b != ' ' && b != '\t' {
			return c.Text(node)
		}
	}
	return string(c.Source[lineStart:node.EndByte()])
}
