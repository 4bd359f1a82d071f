package dependency

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// ArcadeSdkName is the name of the dependency whose updates also update the
// .NET SDK versions in global.json.
const ArcadeSdkName = "Microsoft.DotNet.Arcade.Sdk"

var (
	sdkVersionRe  = regexp.MustCompile(`("sdk"\s*:\s*\{[^}]*?"version"\s*:\s*")([^"]*)(")`)
	toolsDotNetRe = regexp.MustCompile(`("tools"\s*:\s*\{[^}]*?"dotnet"\s*:\s*")([^"]*)(")`)
)

// DotNetVersions are the .NET SDK versions that are configured in a
// global.json file.
type DotNetVersions struct {
	SdkVersion  string
	ToolsDotNet string
}

type globalJSON struct {
	Sdk struct {
		Version string `json:"version"`
	} `json:"sdk"`
	Tools struct {
		DotNet string `json:"dotnet"`
	} `json:"tools"`
}

// ParseGlobalJSON returns the .NET SDK versions of a global.json file.
func ParseGlobalJSON(content string) (*DotNetVersions, error) {
	var doc globalJSON

	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("parsing %s failed: %w", GlobalJSONPath, err)
	}

	return &DotNetVersions{
		SdkVersion:  doc.Sdk.Version,
		ToolsDotNet: doc.Tools.DotNet,
	}, nil
}

// newerVersion returns true if candidate should replace current.
// Versions that are not semantic versions are replaced when they differ.
func newerVersion(candidate, current string) bool {
	if candidate == "" || candidate == current {
		return false
	}

	c, cur := "v"+candidate, "v"+current
	if semver.IsValid(c) && semver.IsValid(cur) {
		return semver.Compare(c, cur) > 0
	}

	return true
}

// UpdateGlobalJSON raises the sdk.version and tools.dotnet entries of the
// global.json content of a repository to the tools.dotnet version of the
// global.json that arcade was built with.
// Nil is returned when no entry needs to be changed. Otherwise the returned
// GitFile contains the new content and one metadata entry per changed
// setting.
func UpdateGlobalJSON(content string, arcade *DotNetVersions) (*GitFile, error) {
	current, err := ParseGlobalJSON(content)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{}

	if current.SdkVersion != "" && newerVersion(arcade.ToolsDotNet, current.SdkVersion) {
		content = sdkVersionRe.ReplaceAllString(content, "${1}"+arcade.ToolsDotNet+"${3}")
		metadata[MetadataSdkVersionUpdate] = arcade.ToolsDotNet
	}

	if current.ToolsDotNet != "" && newerVersion(arcade.ToolsDotNet, current.ToolsDotNet) {
		content = toolsDotNetRe.ReplaceAllString(content, "${1}"+arcade.ToolsDotNet+"${3}")
		metadata[MetadataToolsDotNetUpdate] = arcade.ToolsDotNet
	}

	if len(metadata) == 0 {
		return nil, nil
	}

	return &GitFile{
		FilePath: GlobalJSONPath,
		Content:  content,
		Metadata: metadata,
	}, nil
}

// FindArcadeUpdate returns the update of the arcade SDK in updates.
func FindArcadeUpdate(updates []*Update) (*Update, bool) {
	for _, upd := range updates {
		if strings.EqualFold(upd.To.Name, ArcadeSdkName) {
			return upd, true
		}
	}

	return nil, false
}
