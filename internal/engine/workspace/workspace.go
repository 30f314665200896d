package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/engine/parser"
	"sorcerer/internal/shared/observability"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	Exclude      []string
	ParseWorkers int
}

// Project is one Go package of the module.
type Project struct {
	Name       string
	ImportPath string
	Dir        string
	Files      []string

	types   map[string]typeEntry
	methods map[string][]methodEntry
}

type typeEntry struct {
	decl parser.TypeDecl
	file string
}

type methodEntry struct {
	decl parser.MethodDecl
	file string
}

// TypeNames lists the package's declared types, sorted.
func (p *Project) TypeNames() []string {
	names := make([]string, 0, len(p.types))
	for name := range p.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Document is an indexed source file.
type Document struct {
	Path        string
	ImportPath  string
	PackageName string
	Imports     []parser.Import
	Refs        []parser.TypeRef
}

// SymbolRefs returns the document's type references bound to its path.
func (d *Document) SymbolRefs() []SymbolRef {
	out := make([]SymbolRef, 0, len(d.Refs))
	for _, r := range d.Refs {
		out = append(out, SymbolRef{TypeRef: r, File: d.Path})
	}
	return out
}

// SymbolRef is a type reference plus the file whose imports qualify it.
type SymbolRef struct {
	parser.TypeRef
	File string
}

// Declaration is the source of one named type and its method set.
type Declaration struct {
	Symbol    string
	Namespace string
	File      string
	Line      int
	EndLine   int
	Kind      parser.TypeKind
	Code      string
	Methods   []string
	Refs      []SymbolRef
}

// Workspace is an indexed Go module. It is immutable after Load.
type Workspace struct {
	Root       string
	ModulePath string
	LoadedAt   time.Time

	projects  map[string]*Project
	documents map[string]*Document
}

// Load indexes every non-test Go file of the module at root.
func Load(ctx context.Context, root, modulePath string, opts Options) (*Workspace, error) {
	start := time.Now()
	defer func() { observability.WorkspaceLoadDuration.Observe(time.Since(start).Seconds()) }()

	excludes, err := compileExcludes(opts.Exclude)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "invalid exclude pattern")
	}
	files, err := discoverFiles(root, excludes)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeToolingError, "discover workspace files")
	}

	workers := opts.ParseWorkers
	if workers <= 0 {
		workers = 4
	}

	p := parser.NewParser()
	parsed := make([]*parser.File, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rel := range files {
		g.Go(func() error {
			abs := filepath.Join(root, filepath.FromSlash(rel))
			content, err := os.ReadFile(abs)
			if err != nil {
				slog.Warn("skipping unreadable file", "path", abs, "error", err)
				return nil
			}
			file, err := p.ParseFile(gctx, abs, content)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("skipping unparseable file", "path", abs, "error", err)
				return nil
			}
			parsed[i] = file
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ws := &Workspace{
		Root:       filepath.Clean(root),
		ModulePath: modulePath,
		LoadedAt:   time.Now(),
		projects:   make(map[string]*Project),
		documents:  make(map[string]*Document),
	}
	for _, file := range parsed {
		if file != nil {
			ws.add(file)
		}
	}
	observability.WorkspaceFilesIndexed.Add(float64(len(ws.documents)))

	slog.Debug("workspace indexed",
		"root", ws.Root,
		"module", modulePath,
		"packages", len(ws.projects),
		"files", len(ws.documents),
		"duration", time.Since(start))
	return ws, nil
}

func (w *Workspace) add(file *parser.File) {
	dir := filepath.Dir(file.Path)
	importPath := ImportPathFor(w.Root, w.ModulePath, dir)

	project, ok := w.projects[importPath]
	if !ok {
		project = &Project{
			Name:       file.PackageName,
			ImportPath: importPath,
			Dir:        dir,
			types:      make(map[string]typeEntry),
			methods:    make(map[string][]methodEntry),
		}
		w.projects[importPath] = project
	}
	project.Files = append(project.Files, file.Path)

	for _, td := range file.Types {
		if _, exists := project.types[td.Name]; !exists {
			project.types[td.Name] = typeEntry{decl: td, file: file.Path}
		}
	}
	for _, md := range file.Methods {
		project.methods[md.Receiver] = append(project.methods[md.Receiver], methodEntry{decl: md, file: file.Path})
	}

	w.documents[file.Path] = &Document{
		Path:        file.Path,
		ImportPath:  importPath,
		PackageName: file.PackageName,
		Imports:     file.Imports,
		Refs:        file.Refs,
	}
}

// Document returns the indexed document for path.
func (w *Workspace) Document(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	doc, ok := w.documents[abs]
	if !ok {
		return nil, errors.AddContext(errors.New(errors.CodeNotFound, "document not found in workspace"), errors.CtxPath, path)
	}
	return doc, nil
}

// Projects returns all packages sorted by import path.
func (w *Workspace) Projects() []*Project {
	out := make([]*Project, 0, len(w.projects))
	for _, p := range w.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImportPath < out[j].ImportPath })
	return out
}

// ProjectForFile returns the package owning path.
func (w *Workspace) ProjectForFile(path string) (*Project, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}
	p, ok := w.projects[ImportPathFor(w.Root, w.ModulePath, filepath.Dir(abs))]
	return p, ok
}

// Namespace resolves the import path a reference points into. Unqualified
// references live in the referring file's package.
func (w *Workspace) Namespace(ref SymbolRef) (string, bool) {
	doc, ok := w.documents[ref.File]
	if !ok {
		return "", false
	}
	if ref.Qualifier == "" {
		return doc.ImportPath, true
	}
	for _, imp := range doc.Imports {
		if imp.Alias == ref.Qualifier {
			return imp.Path, true
		}
	}
	for _, imp := range doc.Imports {
		if imp.Alias == "" && w.packageName(imp.Path) == ref.Qualifier {
			return imp.Path, true
		}
	}
	return "", false
}

// FindDeclaration looks up the source declaration a reference points to.
// Only types declared inside the module can be found.
func (w *Workspace) FindDeclaration(ref SymbolRef) (Declaration, bool) {
	ns, ok := w.Namespace(ref)
	if !ok {
		return Declaration{}, false
	}
	project, ok := w.projects[ns]
	if !ok {
		return Declaration{}, false
	}
	entry, ok := project.types[ref.Name]
	if !ok {
		return Declaration{}, false
	}
	return w.declaration(project, entry), true
}

// FindSymbolByName returns the first type named name, searching packages
// matching preferred (by package name or import path suffix) in the given
// order first and the rest alphabetically by import path.
func (w *Workspace) FindSymbolByName(name string, preferred []string) (Declaration, bool) {
	for _, project := range w.orderedProjects(preferred) {
		if entry, ok := project.types[name]; ok {
			return w.declaration(project, entry), true
		}
	}
	return Declaration{}, false
}

func (w *Workspace) orderedProjects(preferred []string) []*Project {
	all := w.Projects()
	if len(preferred) == 0 {
		return all
	}

	out := make([]*Project, 0, len(all))
	taken := make(map[string]bool, len(all))
	for _, pref := range preferred {
		for _, p := range all {
			if taken[p.ImportPath] {
				continue
			}
			if p.Name == pref || p.ImportPath == pref || strings.HasSuffix(p.ImportPath, "/"+pref) {
				out = append(out, p)
				taken[p.ImportPath] = true
			}
		}
	}
	for _, p := range all {
		if !taken[p.ImportPath] {
			out = append(out, p)
		}
	}
	return out
}

func (w *Workspace) declaration(project *Project, entry typeEntry) Declaration {
	decl := Declaration{
		Symbol:    entry.decl.Name,
		Namespace: project.ImportPath,
		File:      entry.file,
		Line:      entry.decl.Line,
		EndLine:   entry.decl.EndLine,
		Kind:      entry.decl.Kind,
		Code:      entry.decl.Code,
	}
	for _, r := range entry.decl.Refs {
		decl.Refs = append(decl.Refs, SymbolRef{TypeRef: r, File: entry.file})
	}
	for _, m := range project.methods[entry.decl.Name] {
		decl.Methods = append(decl.Methods, m.decl.Signature)
		for _, r := range m.decl.Refs {
			decl.Refs = append(decl.Refs, SymbolRef{TypeRef: r, File: m.file})
		}
	}
	return decl
}

var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// packageName is the name an unaliased import binds. Module packages are
// known exactly; for others the usual path conventions are applied.
func (w *Workspace) packageName(importPath string) string {
	if p, ok := w.projects[importPath]; ok && p.Name != "" {
		return p.Name
	}
	return DefaultPackageName(importPath)
}

func DefaultPackageName(importPath string) string {
	parts := strings.Split(importPath, "/")
	name := parts[len(parts)-1]
	if majorVersion.MatchString(name) && len(parts) > 1 {
		name = parts[len(parts)-2]
	}
	if i := strings.Index(name, ".v"); i > 0 {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "go-")
	name = strings.TrimSuffix(name, "-go")
	return strings.ReplaceAll(name, "-", "_")
}
