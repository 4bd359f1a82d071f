// Package dependency contains the dependency model of a repository and the
// parser for its eng/Version.Details.xml file.
package dependency

import "fmt"

// Type distinguishes product from toolset dependencies.
type Type string

const (
	TypeProduct Type = "product"
	TypeToolset Type = "toolset"
)

// Detail describes one dependency of a repository at a specific version.
type Detail struct {
	Name    string
	Version string
	Commit  string
	RepoURI string
	// CoherentParentDependencyName is set for dependencies that have to be
	// produced by a build that was an input of the parent dependency.
	CoherentParentDependencyName string
	Type                         Type
}

// Update describes the version change of a single dependency.
type Update struct {
	From Detail
	To   Detail
}

func (u *Update) String() string {
	return fmt.Sprintf("%s: %s -> %s", u.To.Name, u.From.Version, u.To.Version)
}

// Metadata keys of a GitFile.
const (
	MetadataSdkVersionUpdate  = "SdkVersionUpdate"
	MetadataToolsDotNetUpdate = "ToolsDotNetUpdate"
)

// GlobalJSONPath is the path of the .NET SDK configuration file.
const GlobalJSONPath = "global.json"

// GitFile is a file that was committed as part of a dependency update.
type GitFile struct {
	FilePath string
	Content  string
	// Metadata contains additional information about the change, e.g. the
	// new SDK version when global.json was changed.
	Metadata map[string]string
}
