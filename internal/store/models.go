package store

import (
	"time"

	"github.com/google/uuid"
)

// MergePolicyDefinition configures one merge policy of a subscription.
type MergePolicyDefinition struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

// SubscriptionPolicy is stored as JSON in the policy column.
type SubscriptionPolicy struct {
	Batchable       bool                    `json:"batchable"`
	UpdateFrequency string                  `json:"update_frequency,omitempty"`
	MergePolicies   []MergePolicyDefinition `json:"merge_policies,omitempty"`
}

// Subscription declares that a target repository branch receives the
// dependency updates of builds of a source repository.
type Subscription struct {
	ID                 uuid.UUID          `gorm:"type:uuid;primaryKey"`
	ChannelID          int                `gorm:"not null;default:0"`
	SourceRepository   string             `gorm:"size:300;not null"`
	TargetRepository   string             `gorm:"size:300;not null;index:idx_subscriptions_target"`
	TargetBranch       string             `gorm:"size:300;not null;index:idx_subscriptions_target"`
	Enabled            bool               `gorm:"not null"`
	SourceEnabled      bool               `gorm:"not null"`
	PolicyObject       SubscriptionPolicy `gorm:"column:policy;type:text;serializer:json"`
	LastAppliedBuildID *int
}

// LocationType is the kind of storage an asset was published to.
type LocationType int

const (
	LocationTypeNone LocationType = iota
	LocationTypeNugetFeed
	LocationTypeContainer
)

type AssetLocation struct {
	ID       int          `gorm:"primaryKey"`
	AssetID  int          `gorm:"index;not null"`
	Location string       `gorm:"not null"`
	Type     LocationType `gorm:"not null;default:0"`
}

type Asset struct {
	ID          int    `gorm:"primaryKey"`
	BuildID     int    `gorm:"index;not null"`
	Name        string `gorm:"size:250;not null"`
	Version     string `gorm:"size:75;not null"`
	NonShipping bool
	Locations   []AssetLocation `gorm:"constraint:OnDelete:CASCADE"`
}

// Build is a set of assets produced from a commit of a source repository.
// Builds are immutable after they were created.
type Build struct {
	ID                     int    `gorm:"primaryKey"`
	Commit                 string `gorm:"size:100;not null"`
	GitHubRepository       string `gorm:"column:github_repository;size:300"`
	GitHubBranch           string `gorm:"column:github_branch;size:300"`
	AzureDevOpsRepository  string `gorm:"column:azure_devops_repository;size:300"`
	AzureDevOpsBranch      string `gorm:"column:azure_devops_branch;size:300"`
	AzureDevOpsBuildNumber string `gorm:"column:azure_devops_build_number;size:100"`
	DateProduced           time.Time
	Assets                 []Asset `gorm:"constraint:OnDelete:CASCADE"`
}

// Repository returns the GitHub repository URL of the build, or the Azure
// DevOps repository when no GitHub repository is set.
func (b *Build) Repository() string {
	if b.GitHubRepository != "" {
		return b.GitHubRepository
	}

	return b.AzureDevOpsRepository
}

// SubscriptionUpdate records the result of the last action that was run for
// a subscription. There is at most one record per subscription.
type SubscriptionUpdate struct {
	SubscriptionID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Action         string
	Success        bool
	ErrorMessage   string
	Method         *string
	Arguments      *string
}

// DependencyFlowEvent is an audit record of the lifecycle of a dependency
// update. Records are only inserted.
type DependencyFlowEvent struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	SourceRepository string    `gorm:"size:300"`
	TargetRepository string    `gorm:"size:300"`
	ChannelID        int       `gorm:"not null;default:0"`
	BuildID          int       `gorm:"index;not null"`
	Timestamp        time.Time `gorm:"not null"`
	Event            string    `gorm:"size:50;not null"`
	Reason           string    `gorm:"size:100;not null"`
	FlowType         string    `gorm:"size:50"`
	URL              *string   `gorm:"column:url"`
}

// Repository maps a repository or organization URL to the id of the GitHub
// App installation that grants access to it.
type Repository struct {
	RepositoryName string `gorm:"primaryKey;size:300"`
	InstallationID int64  `gorm:"not null"`
}

// ContainedUpdate is a subscription update that is part of an in-progress
// pull request.
type ContainedUpdate struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	BuildID        int       `json:"build_id"`
	SourceRepo     string    `json:"source_repo"`
}

// InProgressPullRequest is an open dependency update pull request.
type InProgressPullRequest struct {
	RoutingKey       string            `gorm:"primaryKey;size:400"`
	URL              string            `gorm:"column:url;not null"`
	TargetRepository string            `gorm:"size:300;not null"`
	TargetBranch     string            `gorm:"size:300;not null"`
	HeadBranch       string            `gorm:"size:300;not null"`
	ContainedUpdates []ContainedUpdate `gorm:"type:text;serializer:json"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func allModels() []any {
	return []any{
		&Subscription{},
		&Build{},
		&Asset{},
		&AssetLocation{},
		&SubscriptionUpdate{},
		&DependencyFlowEvent{},
		&Repository{},
		&InProgressPullRequest{},
	}
}
