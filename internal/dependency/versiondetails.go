package dependency

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// VersionDetailsPath is the repository path of the file that declares the
// dependencies of a repository.
const VersionDetailsPath = "eng/Version.Details.xml"

type xmlDependency struct {
	Name                     string `xml:"Name,attr"`
	Version                  string `xml:"Version,attr"`
	CoherentParentDependency string `xml:"CoherentParentDependency,attr"`
	URI                      string `xml:"Uri"`
	Sha                      string `xml:"Sha"`
}

type xmlVersionDetails struct {
	XMLName             xml.Name        `xml:"Dependencies"`
	ProductDependencies []xmlDependency `xml:"ProductDependencies>Dependency"`
	ToolsetDependencies []xmlDependency `xml:"ToolsetDependencies>Dependency"`
}

// ParseVersionDetails parses the content of an eng/Version.Details.xml file.
// Product dependencies are returned before toolset dependencies, both in
// file order.
func ParseVersionDetails(content string) ([]*Detail, error) {
	var doc xmlVersionDetails

	if err := xml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("parsing %s failed: %w", VersionDetailsPath, err)
	}

	result := make([]*Detail, 0, len(doc.ProductDependencies)+len(doc.ToolsetDependencies))

	add := func(deps []xmlDependency, typ Type) error {
		for _, d := range deps {
			if d.Name == "" {
				return fmt.Errorf("%s: %s dependency without Name attribute", VersionDetailsPath, typ)
			}

			result = append(result, &Detail{
				Name:                         d.Name,
				Version:                      d.Version,
				Commit:                       strings.TrimSpace(d.Sha),
				RepoURI:                      strings.TrimSpace(d.URI),
				CoherentParentDependencyName: d.CoherentParentDependency,
				Type:                         typ,
			})
		}

		return nil
	}

	if err := add(doc.ProductDependencies, TypeProduct); err != nil {
		return nil, err
	}

	if err := add(doc.ToolsetDependencies, TypeToolset); err != nil {
		return nil, err
	}

	return result, nil
}
