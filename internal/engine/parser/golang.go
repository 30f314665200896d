package parser

import (
	"strconv"
	"strings"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// predeclared lists the universe-scope types, which are never crawl symbols.
var predeclared = map[string]bool{
	"any": true, "bool": true, "byte": true, "comparable": true,
	"complex64": true, "complex128": true, "error": true,
	"float32": true, "float64": true, "int": true, "int8": true, "int16": true,
	"int32": true, "int64": true, "rune": true, "string": true, "uint": true,
	"uint8": true, "uint16": true, "uint32": true, "uint64": true, "uintptr": true,
}

func IsPredeclared(name string) bool {
	return predeclared[name]
}

type GoExtractor struct{}

func (e *GoExtractor) Extract(root *sitter.Node, source []byte, filePath string) (*File, error) {
	file := &File{
		Path:     filePath,
		ParsedAt: time.Now(),
	}

	ctx := &ExtractionContext{Source: source, File: file}
	engine := NewExtractorEngine(map[string]NodeHandler{
		"package_clause":       e.extractPackage,
		"import_declaration":   e.extractImports,
		"type_declaration":     e.extractTypes,
		"method_declaration":   e.extractMethod,
		"function_declaration": e.extractFunction,
		"type_identifier":      e.extractReference,
		"qualified_type":       e.extractReference,
	})
	engine.Walk(ctx, root)

	file.Refs = uniqueRefs(file.Refs)
	return file, nil
}

func (e *GoExtractor) extractPackage(ctx *ExtractionContext, node *sitter.Node) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == "package_identifier" {
			ctx.File.PackageName = ctx.Text(child)
		}
	}
	return true
}

func (e *GoExtractor) extractImports(ctx *ExtractionContext, node *sitter.Node) bool {
	e.walkImports(ctx, node)
	return true
}

func (e *GoExtractor) walkImports(ctx *ExtractionContext, node *sitter.Node) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() != "import_spec" {
			e.walkImports(ctx, child)
			continue
		}

		raw := ctx.Text(child.ChildByFieldName("path"))
		path, err := strconv.Unquote(raw)
		if err != nil {
			path = strings.Trim(raw, "\"`")
		}
		if path == "" {
			continue
		}
		ctx.File.Imports = append(ctx.File.Imports, Import{
			Path:  path,
			Alias: ctx.Text(child.ChildByFieldName("name")),
			Line:  ctx.Line(child),
		})
	}
}

func (e *GoExtractor) extractTypes(ctx *ExtractionContext, node *sitter.Node) bool {
	grouped := false
	for i := uint(0); i < node.ChildCount(); i++ {
		if node.Child(i).Kind() == "(" {
			grouped = true
			break
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		spec := node.Child(i)
		kind := spec.Kind()
		if kind != "type_spec" && kind != "type_alias" {
			continue
		}
		name := ctx.Text(spec.ChildByFieldName("name"))
		if name == "" {
			continue
		}

		skip := typeParamNames(ctx, spec.ChildByFieldName("type_parameters"))
		refs := collectRefs(ctx, spec.ChildByFieldName("type_parameters"), skip)
		refs = append(refs, collectRefs(ctx, spec.ChildByFieldName("type"), skip)...)
		refs = uniqueRefs(refs)

		code := ctx.FromLineStart(node)
		if grouped {
			text := ctx.FromLineStart(spec)
			indent := text[:len(text)-len(strings.TrimLeft(text, " \t"))]
			code = indent + "type " + text[len(indent):]
		}

		ctx.File.Types = append(ctx.File.Types, TypeDecl{
			Name:    name,
			Kind:    typeKind(kind, spec.ChildByFieldName("type")),
			Code:    code,
			Line:    ctx.Line(spec),
			EndLine: ctx.EndLine(spec),
			Refs:    refs,
		})
		ctx.File.Refs = append(ctx.File.Refs, refs...)
	}
	return true
}

func typeKind(specKind string, typeNode *sitter.Node) TypeKind {
	if specKind == "type_alias" {
		return TypeAlias
	}
	if typeNode == nil {
		return TypeNamed
	}
	switch typeNode.Kind() {
	case "struct_type":
		return TypeStruct
	case "interface_type":
		return TypeInterface
	default:
		return TypeNamed
	}
}

func (e *GoExtractor) extractMethod(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.Text(node.ChildByFieldName("name"))
	receiver, skip := receiverType(ctx, node.ChildByFieldName("receiver"))
	if name == "" || receiver == "" {
		return true
	}

	var refs []TypeRef
	refs = append(refs, collectRefs(ctx, node.ChildByFieldName("parameters"), skip)...)
	refs = append(refs, collectRefs(ctx, node.ChildByFieldName("result"), skip)...)
	refs = uniqueRefs(refs)

	ctx.File.Methods = append(ctx.File.Methods, MethodDecl{
		Receiver:  receiver,
		Name:      name,
		Signature: signatureText(ctx, node),
		Line:      ctx.Line(node),
		Refs:      refs,
	})
	ctx.File.Refs = append(ctx.File.Refs, refs...)
	ctx.File.Refs = append(ctx.File.Refs, collectRefs(ctx, node.ChildByFieldName("body"), skip)...)
	return true
}

func (e *GoExtractor) extractFunction(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.Text(node.ChildByFieldName("name"))
	params := node.ChildByFieldName("parameters")
	if strings.HasPrefix(name, "Test") && strings.Contains(ctx.Text(params), "*testing.T") {
		ctx.File.TestFuncs = append(ctx.File.TestFuncs, name)
	}

	skip := typeParamNames(ctx, node.ChildByFieldName("type_parameters"))
	ctx.File.Refs = append(ctx.File.Refs, collectRefs(ctx, node, skip)...)
	return true
}

func (e *GoExtractor) extractReference(ctx *ExtractionContext, node *sitter.Node) bool {
	ctx.File.Refs = append(ctx.File.Refs, collectRefs(ctx, node, nil)...)
	return true
}

// receiverType returns the bare receiver type name and the names of its
// type parameters, e.g. "Set" and {T} for (s *Set[T]).
func receiverType(ctx *ExtractionContext, receiver *sitter.Node) (string, map[string]bool) {
	if receiver == nil {
		return "", nil
	}
	var param *sitter.Node
	for i := uint(0); i < receiver.NamedChildCount(); i++ {
		if child := receiver.NamedChild(i); child.Kind() == "parameter_declaration" {
			param = child
			break
		}
	}
	if param == nil {
		return "", nil
	}

	t := param.ChildByFieldName("type")
	for t != nil && t.Kind() == "pointer_type" {
		t = t.NamedChild(0)
	}
	if t == nil {
		return "", nil
	}

	skip := map[string]bool{}
	if t.Kind() == "generic_type" {
		if args := t.ChildByFieldName("type_arguments"); args != nil {
			var walk func(*sitter.Node)
			walk = func(n *sitter.Node) {
				if n.Kind() == "type_identifier" {
					skip[ctx.Text(n)] = true
				}
				for i := uint(0); i < n.ChildCount(); i++ {
					walk(n.Child(i))
				}
			}
			walk(args)
		}
		t = t.ChildByFieldName("type")
	}
	if t == nil || t.Kind() != "type_identifier" {
		return "", nil
	}
	return ctx.Text(t), skip
}

func typeParamNames(ctx *ExtractionContext, list *sitter.Node) map[string]bool {
	if list == nil {
		return nil
	}
	names := map[string]bool{}
	for i := uint(0); i < list.NamedChildCount(); i++ {
		decl := list.NamedChild(i)
		if decl.Kind() != "type_parameter_declaration" {
			continue
		}
		for j := uint(0); j < decl.NamedChildCount(); j++ {
			if id := decl.NamedChild(j); id.Kind() == "identifier" {
				names[ctx.Text(id)] = true
			}
		}
	}
	return names
}

// signatureText is the method declaration up to its body.
func signatureText(ctx *ExtractionContext, node *sitter.Node) string {
	body := node.ChildByFieldName("body")
	if body == nil {
		return strings.TrimSpace(ctx.Text(node))
	}
	return strings.TrimSpace(string(ctx.Source[node.StartByte():body.StartByte()]))
}

func collectRefs(ctx *ExtractionContext, node *sitter.Node, skip map[string]bool) []TypeRef {
	if node == nil {
		return nil
	}
	var refs []TypeRef
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Kind() {
		case "qualified_type":
			pkg := ctx.Text(n.ChildByFieldName("package"))
			name := ctx.Text(n.ChildByFieldName("name"))
			if pkg != "" && name != "" {
				refs = append(refs, TypeRef{Name: name, Qualifier: pkg, Line: ctx.Line(n)})
			}
			return
		case "type_identifier":
			name := ctx.Text(n)
			if name == "" || skip[name] || predeclared[name] || isDeclName(n) {
				return
			}
			refs = append(refs, TypeRef{Name: name, Line: ctx.Line(n)})
			return
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(node)
	return refs
}

// isDeclName reports whether n is the name being declared by a type spec.
func isDeclName(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil {
		return false
	}
	if k := parent.Kind(); k != "type_spec" && k != "type_alias" {
		return false
	}
	name := parent.ChildByFieldName("name")
	return name != nil && name.StartByte() == n.StartByte()
}

func uniqueRefs(refs []TypeRef) []TypeRef {
	if len(refs) == 0 {
		return refs
	}
	seen := make(map[string]bool, len(refs))
	out := refs[:0]
	for _, r := range refs {
		key := r.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
