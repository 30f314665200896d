package model

// Target describes the file under test and where its tests live.
type Target struct {
	SourcePath  string
	Source      string
	TestPath    string
	PackageName string
	PackageDir  string
	ProjectRoot string
}

// Project is the package owning a source file and the module around it.
type Project struct {
	Name       string
	ImportPath string
	Dir        string
	ModuleRoot string
	ModulePath string
}
