package parser

import "time"

// File is everything extracted from one Go source file. It holds plain
// values only; no tree-sitter node outlives the parse.
type File struct {
	Path        string
	PackageName string
	Imports     []Import
	Types       []TypeDecl
	Methods     []MethodDecl
	Refs        []TypeRef // every named-type reference in the file
	TestFuncs   []string  // TestXxx(t *testing.T) functions
	ParsedAt    time.Time
}

type Import struct {
	Path  string
	Alias string // explicit alias, "." or "_"; empty when none
	Line  int
}

// TypeRef is a use of a named type: Name alone for the current package,
// Qualifier.Name for an imported one.
type TypeRef struct {
	Name      string
	Qualifier string
	Line      int
}

func (r TypeRef) String() string {
	if r.Qualifier == "" {
		return r.Name
	}
	return r.Qualifier + "." + r.Name
}

type TypeKind string

const (
	TypeStruct    TypeKind = "struct"
	TypeInterface TypeKind = "interface"
	TypeAlias     TypeKind = "alias"
	TypeNamed     TypeKind = "named"
)

// TypeDecl is one type spec. Code is the declaration text starting at the
// beginning of its first line, with the "type" keyword present even when
// the type_spec node sits inside a grouped declaration.
type TypeDecl struct {
	Name    string
	Kind    TypeKind
	Code    string
	Line    int
	EndLine int
	Refs    []TypeRef
}

// MethodDecl is a method signature without its body.
type MethodDecl struct {
	Receiver  string
	Name      string
	Signature string
	Line      int
	Refs      []TypeRef
}
