package dependency

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	dependencyElementRe = regexp.MustCompile(`(?s)<Dependency\s[^>]*?Name="([^"]+)"[^>]*>.*?</Dependency>`)
	versionAttrRe       = regexp.MustCompile(`(<Dependency\s[^>]*?)Version="[^"]*"`)
	uriElementRe        = regexp.MustCompile(`<Uri>[^<]*</Uri>`)
	shaElementRe        = regexp.MustCompile(`<Sha>[^<]*</Sha>`)
)

// ApplyUpdates returns content of an eng/Version.Details.xml file with the
// Version attribute, Uri and Sha of every updated dependency set to the
// values of Update.To.
// Dependency names are compared case-insensitively. The formatting of the
// file is preserved.
// An error is returned when a dependency of updates is not declared in
// content.
func ApplyUpdates(content string, updates []*Update) (string, error) {
	pending := make(map[string]*Update, len(updates))
	for _, upd := range updates {
		pending[strings.ToLower(upd.To.Name)] = upd
	}

	result := dependencyElementRe.ReplaceAllStringFunc(content, func(elem string) string {
		name := dependencyElementRe.FindStringSubmatch(elem)[1]

		upd, exists := pending[strings.ToLower(name)]
		if !exists {
			return elem
		}
		delete(pending, strings.ToLower(name))

		elem = versionAttrRe.ReplaceAllString(elem, `${1}Version="`+upd.To.Version+`"`)
		if upd.To.RepoURI != "" {
			elem = uriElementRe.ReplaceAllLiteralString(elem, "<Uri>"+upd.To.RepoURI+"</Uri>")
		}
		if upd.To.Commit != "" {
			elem = shaElementRe.ReplaceAllLiteralString(elem, "<Sha>"+upd.To.Commit+"</Sha>")
		}

		return elem
	})

	if len(pending) != 0 {
		missing := make([]string, 0, len(pending))
		for _, upd := range updates {
			if _, exists := pending[strings.ToLower(upd.To.Name)]; exists {
				missing = append(missing, upd.To.Name)
			}
		}

		return "", fmt.Errorf("%s does not declare the dependencies: %s", VersionDetailsPath, strings.Join(missing, ", "))
	}

	return result, nil
}
