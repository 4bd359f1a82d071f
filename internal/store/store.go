// Package store persists subscriptions, builds and the dependency flow audit
// records.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/repourl"
)

const loggerName = "store"

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store provides access to the depflow database.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the database and migrates the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector

	switch strings.ToLower(driver) {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database failed: %w", err)
	}

	if strings.EqualFold(driver, DriverSQLite) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}

		// sqlite allows only one writer
		sqlDB.SetMaxOpenConns(1)
	}

	s := New(db)

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// New returns a Store that uses db.
func New(db *gorm.DB) *Store {
	return &Store{
		db:     db,
		logger: zap.L().Named(loggerName),
	}
}

// Migrate creates or updates the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("migrating database schema failed: %w", err)
	}

	s.logger.Debug("database schema migrated", logfields.Event("db_schema_migrated"))

	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Subscription returns the subscription with the given id.
// If it does not exist an error matching ErrNotFound is returned.
func (s *Store) Subscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	var result Subscription

	err := s.db.WithContext(ctx).First(&result, "id = ?", id).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get subscription", "id="+id.String())
	}

	return &result, nil
}

// SaveSubscription creates or replaces a subscription.
func (s *Store) SaveSubscription(ctx context.Context, sub *Subscription) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(sub).Error

	return wrapErrorWithDetails(err, "save subscription", "id="+sub.ID.String())
}

// SetLastAppliedBuild sets the LastAppliedBuildID of a subscription.
func (s *Store) SetLastAppliedBuild(ctx context.Context, subscriptionID uuid.UUID, buildID int) error {
	res := s.db.WithContext(ctx).
		Model(&Subscription{}).
		Where("id = ?", subscriptionID).
		Update("last_applied_build_id", buildID)
	if res.Error != nil {
		return wrapErrorWithDetails(res.Error, "set last applied build", "id="+subscriptionID.String())
	}

	if res.RowsAffected == 0 {
		return &NotFoundError{Search: "set last applied build (id=" + subscriptionID.String() + ")"}
	}

	return nil
}

// CreateBuild stores a build with its assets and their locations.
func (s *Store) CreateBuild(ctx context.Context, build *Build) error {
	err := s.db.WithContext(ctx).Create(build).Error
	return wrapErrorWithDetails(err, "create build", fmt.Sprintf("commit=%s", build.Commit))
}

// BuildWithAssets returns a build together with its assets and their
// locations. Assets are returned in the order they were created.
func (s *Store) BuildWithAssets(ctx context.Context, id int) (*Build, error) {
	var result Build

	err := s.db.WithContext(ctx).
		Preload("Assets", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Assets.Locations", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&result, "id = ?", id).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get build with assets", fmt.Sprintf("id=%d", id))
	}

	return &result, nil
}

// UpsertSubscriptionUpdate creates the SubscriptionUpdate record of a
// subscription or overwrites the existing one.
func (s *Store) UpsertSubscriptionUpdate(ctx context.Context, upd *SubscriptionUpdate) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "subscription_id"}}, UpdateAll: true}).
		Create(upd).Error

	return wrapErrorWithDetails(err, "upsert subscription update", "subscription_id="+upd.SubscriptionID.String())
}

func (s *Store) SubscriptionUpdate(ctx context.Context, subscriptionID uuid.UUID) (*SubscriptionUpdate, error) {
	var result SubscriptionUpdate

	err := s.db.WithContext(ctx).First(&result, "subscription_id = ?", subscriptionID).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get subscription update", "subscription_id="+subscriptionID.String())
	}

	return &result, nil
}

// AddDependencyFlowEvent inserts ev.
// A zero Timestamp is set to the current time.
func (s *Store) AddDependencyFlowEvent(ctx context.Context, ev *DependencyFlowEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	err := s.db.WithContext(ctx).Create(ev).Error
	return wrapErrorWithDetails(err, "add dependency flow event", fmt.Sprintf("build_id=%d", ev.BuildID))
}

// DependencyFlowEvents returns the events recorded for a build in insertion
// order.
func (s *Store) DependencyFlowEvents(ctx context.Context, buildID int) ([]*DependencyFlowEvent, error) {
	var result []*DependencyFlowEvent

	err := s.db.WithContext(ctx).Where("build_id = ?", buildID).Order("id").Find(&result).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "list dependency flow events", fmt.Sprintf("build_id=%d", buildID))
	}

	return result, nil
}

// SetInstallationID stores the GitHub App installation id of a repository
// or organization URL.
func (s *Store) SetInstallationID(ctx context.Context, repositoryURL string, installationID int64) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "repository_name"}}, UpdateAll: true}).
		Create(&Repository{RepositoryName: repositoryURL, InstallationID: installationID}).Error

	return wrapErrorWithDetails(err, "set installation id", "repository="+repositoryURL)
}

// InstallationID returns the GitHub App installation id for a normalized
// repository URL.
// When no entry for the repository exists, the entry of its organization
// (https://github.com/<owner>) is used. If neither exists, 0 is returned.
func (s *Store) InstallationID(ctx context.Context, repositoryURL string) (int64, error) {
	candidates := []string{repositoryURL}
	if owner, _, err := repourl.ParseGitHub(repositoryURL); err == nil {
		candidates = append(candidates, "https://github.com/"+owner)
	}

	var repos []*Repository

	err := s.db.WithContext(ctx).Where("repository_name IN ?", candidates).Find(&repos).Error
	if err != nil {
		return 0, wrapErrorWithDetails(err, "get installation id", "repository="+repositoryURL)
	}

	var result int64
	for _, r := range repos {
		if r.RepositoryName == repositoryURL {
			return r.InstallationID, nil
		}

		result = r.InstallationID
	}

	return result, nil
}

func (s *Store) InProgressPullRequest(ctx context.Context, routingKey string) (*InProgressPullRequest, error) {
	var result InProgressPullRequest

	err := s.db.WithContext(ctx).First(&result, "routing_key = ?", routingKey).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get in-progress pull request", "routing_key="+routingKey)
	}

	return &result, nil
}

func (s *Store) InProgressPullRequests(ctx context.Context) ([]*InProgressPullRequest, error) {
	var result []*InProgressPullRequest

	err := s.db.WithContext(ctx).Order("created_at").Find(&result).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "list in-progress pull requests", "")
	}

	return result, nil
}

func (s *Store) SaveInProgressPullRequest(ctx context.Context, pr *InProgressPullRequest) error {
	err := s.db.WithContext(ctx).Save(pr).Error
	return wrapErrorWithDetails(err, "save in-progress pull request", "routing_key="+pr.RoutingKey)
}

func (s *Store) DeleteInProgressPullRequest(ctx context.Context, routingKey string) error {
	err := s.db.WithContext(ctx).Delete(&InProgressPullRequest{}, "routing_key = ?", routingKey).Error
	return wrapErrorWithDetails(err, "delete in-progress pull request", "routing_key="+routingKey)
}
