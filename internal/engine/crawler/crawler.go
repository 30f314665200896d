package crawler

import (
	"context"
	"log/slog"
	"strings"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
	"sorcerer/internal/engine/workspace"
	"sorcerer/internal/shared/observability"
)

type Options struct {
	ExcludedNamespaces []string
	PreferredProjects  []string
	CacheSize          int
	Workspace          workspace.Options
}

// Crawler discovers the type definitions a source file depends on. It owns
// the workspace cache; Close releases it.
type Crawler struct {
	cache     *workspace.Cache
	prefixes  []string
	preferred []string
}

func New(opts Options) *Crawler {
	return &Crawler{
		cache:     workspace.NewCache(opts.CacheSize, opts.Workspace),
		prefixes:  append([]string(nil), opts.ExcludedNamespaces...),
		preferred: append([]string(nil), opts.PreferredProjects...),
	}
}

func (c *Crawler) Close() error {
	return c.cache.Close()
}

// Invalidate drops the cached workspace of the module containing path.
func (c *Crawler) Invalidate(path string) {
	root, _, err := workspace.FindModule(path)
	if err != nil {
		return
	}
	c.cache.Invalidate(root)
}

// FindDefinitions crawls the named types referenced from filePath. Direct
// references are depth 0; nothing deeper than maxDepth is returned. Each
// type is expanded once per call, at the shallowest depth it is reached.
// Results are grouped by declaring file in discovery order. Types declared
// in filePath itself are kept and marked InTarget.
func (c *Crawler) FindDefinitions(ctx context.Context, filePath string, maxDepth int) ([]*model.DefinitionResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "crawler.FindDefinitions")
	defer span.End()

	ws, err := c.cache.Resolve(ctx, filePath)
	if err != nil {
		return nil, err
	}
	doc, err := ws.Document(filePath)
	if err != nil {
		return nil, err
	}

	filter := NamespaceFilter{Prefixes: c.prefixes, ModulePath: ws.ModulePath}
	visited := map[string]bool{}
	byFile := map[string]*model.DefinitionResult{}
	var results []*model.DefinitionResult
	total := 0

	frontier := doc.SymbolRefs()
	for depth := 0; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []workspace.SymbolRef
		for _, ref := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			ns, ok := ws.Namespace(ref)
			if !ok || filter.Excluded(ns) {
				continue
			}
			decl, ok := ws.FindDeclaration(ref)
			if !ok {
				continue
			}
			key := decl.Namespace + "." + decl.Symbol
			if visited[key] {
				continue
			}
			visited[key] = true

			result, ok := byFile[decl.File]
			if !ok {
				result = model.NewDefinitionResult(decl.File)
				byFile[decl.File] = result
				results = append(results, result)
			}
			def := toDefinition(decl, depth)
			def.InTarget = decl.File == doc.Path
			if result.Add(def) {
				total++
			}
			next = append(next, decl.Refs...)
		}
		frontier = next
	}

	observability.CrawlDefinitions.Observe(float64(total))
	slog.Debug("crawl finished", "file", filePath, "depth", maxDepth, "definitions", total)
	return results, nil
}

// FindSingleClassDefinition returns the first type named className in the
// workspace of filePath, searching preferred packages first.
func (c *Crawler) FindSingleClassDefinition(ctx context.Context, filePath, className string) (*model.DefinitionResult, error) {
	ws, err := c.cache.Resolve(ctx, filePath)
	if err != nil {
		return nil, err
	}

	decl, ok := ws.FindSymbolByName(className, c.preferred)
	if !ok {
		return nil, errors.AddContext(errors.New(errors.CodeNotFound, "type not found in workspace"), errors.CtxSymbol, className)
	}

	result := model.NewDefinitionResult(decl.File)
	result.Add(toDefinition(decl, 0))
	return result, nil
}

// LocateProject returns the indexed package owning filePath.
func (c *Crawler) LocateProject(ctx context.Context, filePath string) (model.Project, error) {
	ws, err := c.cache.Resolve(ctx, filePath)
	if err != nil {
		return model.Project{}, err
	}
	p, ok := ws.ProjectForFile(filePath)
	if !ok {
		return model.Project{}, errors.AddContext(errors.New(errors.CodeNotFound, "file is not part of an indexed package"), errors.CtxPath, filePath)
	}
	return model.Project{
		Name:       p.Name,
		ImportPath: p.ImportPath,
		Dir:        p.Dir,
		ModuleRoot: ws.Root,
		ModulePath: ws.ModulePath,
	}, nil
}

func toDefinition(decl workspace.Declaration, depth int) model.Definition {
	return model.Definition{
		Symbol:    decl.Symbol,
		Namespace: decl.Namespace,
		Code:      RenderDeclaration(decl),
		File:      decl.File,
		Line:      decl.Line,
		Depth:     depth,
	}
}

// RenderDeclaration is the cleaned type declaration followed by the
// signatures of its methods.
func RenderDeclaration(decl workspace.Declaration) string {
	code := CleanSnippet(decl.Code)
	if len(decl.Methods) == 0 {
		return code
	}
	return code + "\n\n" + strings.Join(decl.Methods, "\n")
}
