// Package prdescription maintains the description of a dependency update
// pull request.
//
// The description consists of sections delimited by marker lines. Every
// update replaces the section of its subscription in place or appends it, so
// a description can be re-rendered any number of times without duplicating
// content.
package prdescription

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/dependency"
	"github.com/simplesurance/depflow/internal/logfields"
)

const loggerName = "pr_description"

const (
	DependencyUpdateBegin = "[DependencyUpdate]: <> (Begin)"
	DependencyUpdateEnd   = "[DependencyUpdate]: <> (End)"
)

const (
	coherencySectionBegin = "[marker]: <> (Begin:Coherency Updates)"
	coherencySectionEnd   = "[marker]: <> (End:Coherency Updates)"
)

const dateProducedLayout = "January 2, 2006 3:04:05 PM UTC"

var referenceIDRe = regexp.MustCompile(`(?m)^\[(\d+)\]:.+`)

// Update describes the origin of the dependency updates rendered into a
// section.
type Update struct {
	SubscriptionID    uuid.UUID
	SourceRepo        string
	IsCoherencyUpdate bool
}

// Build contains the information about the build that produced the updated
// dependencies.
type Build struct {
	Number            string
	DateProduced      time.Time
	Commit            string
	AzureDevOpsBranch string
	GitHubBranch      string
}

// Composer renders update sections into a pull request description.
// It is not safe for concurrent use.
type Composer struct {
	logger      *zap.Logger
	description string
	nextRefID   int
}

// New returns a Composer that modifies description.
// Footnote references allocated by the Composer continue after the highest
// reference found in description.
func New(description string) *Composer {
	return &Composer{
		logger:      zap.L().Named(loggerName),
		description: description,
		nextRefID:   startingReferenceID(description),
	}
}

func startingReferenceID(description string) int {
	var maxID int

	for _, m := range referenceIDRe.FindAllStringSubmatch(description, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}

		if id > maxID {
			maxID = id
		}
	}

	return maxID + 1
}

// String returns the description.
func (c *Composer) String() string {
	return c.description
}

// NextReferenceID returns the number that the next allocated footnote
// reference will get.
func (c *Composer) NextReferenceID() int {
	return c.nextRefID
}

// SubscriptionSectionMarkers returns the begin and end marker lines of the
// section of a subscription.
func SubscriptionSectionMarkers(subscriptionID uuid.UUID) (begin, end string) {
	return fmt.Sprintf("[marker]: <> (Begin:%s)", subscriptionID),
		fmt.Sprintf("[marker]: <> (End:%s)", subscriptionID)
}

// ComposeSection renders the section for update into the description.
// An existing section for the same subscription, or the coherency section
// when update.IsCoherencyUpdate is true, is replaced at its current
// position, otherwise the section is appended.
func (c *Composer) ComposeSection(update *Update, deps []*dependency.Update, committedFiles []*dependency.GitFile, build *Build) {
	var linkCnt int

	if update.IsCoherencyUpdate {
		insertAt := c.removeSection(coherencySectionBegin, coherencySectionEnd)
		c.insert(insertAt, coherencySection(deps))
	} else {
		begin, end := SubscriptionSectionMarkers(update.SubscriptionID)
		insertAt := c.removeSection(begin, end)

		var section string
		section, linkCnt = c.subscriptionSection(update, deps, committedFiles, build, begin, end)
		c.insert(insertAt, section)
	}

	c.description += "\n"
	c.nextRefID += linkCnt
}

// removeSection removes the text between begin and end, including the
// markers, and returns the position where it started.
// If one of the markers does not exist, nothing is removed and the length of
// the description is returned.
func (c *Composer) removeSection(begin, end string) int {
	startIdx := strings.Index(c.description, begin)
	endIdx := strings.Index(c.description, end)

	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return len(c.description)
	}

	endIdx += len(end)
	c.description = c.description[:startIdx] + c.description[endIdx:]

	return startIdx
}

func (c *Composer) insert(pos int, text string) {
	c.description = c.description[:pos] + text + c.description[pos:]
}

func coherencySection(deps []*dependency.Update) string {
	var sb strings.Builder

	sb.WriteString(coherencySectionBegin + "\n")
	sb.WriteString("## Coherency Updates\n")
	sb.WriteString("\n")
	sb.WriteString("The following updates ensure that dependencies with a *CoherentParentDependency*\n")
	sb.WriteString("attribute were produced in a build used as input to the parent dependency's build.\n")
	sb.WriteString("See [Dependency Description Format](https://github.com/dotnet/arcade/blob/master/Documentation/DependencyDescriptionFormat.md#dependency-description-overview)\n")
	sb.WriteString("\n")
	sb.WriteString(DependencyUpdateBegin + "\n")
	sb.WriteString("\n")
	sb.WriteString("- **Coherency Updates**:\n")
	for _, dep := range deps {
		fmt.Fprintf(&sb, "  - **%s**: from %s to %s (parent: %s)\n",
			dep.To.Name, dep.From.Version, dep.To.Version, dep.To.CoherentParentDependencyName,
		)
	}
	sb.WriteString("\n")
	sb.WriteString(DependencyUpdateEnd + "\n")
	sb.WriteString("\n")
	sb.WriteString(coherencySectionEnd + "\n")

	return sb.String()
}

type shaRange struct {
	from string
	to   string
}

func (c *Composer) subscriptionSection(
	update *Update,
	deps []*dependency.Update,
	committedFiles []*dependency.GitFile,
	build *Build,
	begin, end string,
) (section string, linkCnt int) {
	var sb strings.Builder

	sb.WriteString(begin + "\n")
	fmt.Fprintf(&sb, "## From %s\n", update.SourceRepo)
	fmt.Fprintf(&sb, "- **Subscription**: %s\n", update.SubscriptionID)
	fmt.Fprintf(&sb, "- **Build**: %s\n", build.Number)
	fmt.Fprintf(&sb, "- **Date Produced**: %s\n", build.DateProduced.UTC().Format(dateProducedLayout))
	fmt.Fprintf(&sb, "- **Commit**: %s\n", build.Commit)

	branch := build.AzureDevOpsBranch
	if branch == "" {
		branch = build.GitHubBranch
	}
	if branch != "" {
		fmt.Fprintf(&sb, "- **Branch**: %s\n", branch)
	}

	sb.WriteString("\n")
	sb.WriteString(DependencyUpdateBegin + "\n")
	sb.WriteString("\n")
	sb.WriteString("- **Updates**:\n")

	var links []string
	linkIDs := map[shaRange]int{}

	for _, dep := range deps {
		key := shaRange{from: dep.From.Commit, to: dep.To.Commit}

		if _, exists := linkIDs[key]; !exists {
			link, err := ChangesURI(dep.To.RepoURI, dep.From.Commit, dep.To.Commit)
			if err != nil {
				c.logger.Error(
					"creating sha comparison link failed, using an empty link",
					logfields.Event("pr_description_changes_link_failed"),
					logfields.Dependency(dep.To.Name),
					logfields.SubscriptionID(update.SubscriptionID),
					zap.Error(err),
				)
			}

			linkIDs[key] = c.nextRefID + len(links)
			links = append(links, link)
		}

		fmt.Fprintf(&sb, "  - **%s**: [from %s to %s][%d]\n",
			dep.To.Name, dep.From.Version, dep.To.Version, linkIDs[key],
		)
	}

	sb.WriteString("\n")
	for i, link := range links {
		fmt.Fprintf(&sb, "[%d]: %s\n", c.nextRefID+i, link)
	}

	sb.WriteString("\n")
	sb.WriteString(DependencyUpdateEnd + "\n")
	sb.WriteString("\n")
	writeConfigFileNotes(&sb, committedFiles)
	sb.WriteString("\n")
	sb.WriteString(end + "\n")

	return sb.String(), len(links)
}

func writeConfigFileNotes(sb *strings.Builder, committedFiles []*dependency.GitFile) {
	for _, f := range committedFiles {
		// global.json can be part of the committed files without having
		// been changed, in that case it has no metadata
		if !strings.EqualFold(f.FilePath, dependency.GlobalJSONPath) || f.Metadata == nil {
			continue
		}

		sdkVersion, hasSdkUpdate := f.Metadata[dependency.MetadataSdkVersionUpdate]
		toolsVersion, hasToolsUpdate := f.Metadata[dependency.MetadataToolsDotNetUpdate]

		sb.WriteString("- **Updates to .NET SDKs:**\n")
		if hasSdkUpdate {
			fmt.Fprintf(sb, "  - Updates sdk.version to %s\n", sdkVersion)
		}
		if hasToolsUpdate {
			fmt.Fprintf(sb, "  - Updates tools.dotnet to %s\n", toolsVersion)
		}

		return
	}
}
