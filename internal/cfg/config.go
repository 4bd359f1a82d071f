package cfg

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	DefHTTPListenAddr            = ":8085"
	DefBuildNotificationEndpoint = "/listener/build"
	DefGithubWebhookEndpoint     = "/listener/github"
	DefLogFormat                 = "logfmt"
	DefLogTimeKey                = "time_iso8601"
	DefLogLevel                  = "info"
	DefDatabaseDriver            = "sqlite"
	DefDatabaseDSN               = "depflow.db"
	DefPullRequestCheckInterval  = "30m"
)

type Config struct {
	HTTPListenAddr                string `toml:"http_server_listen_addr"`
	HTTPSListenAddr               string `toml:"https_server_listen_addr"`
	HTTPSCertFile                 string `toml:"https_ssl_cert_file"`
	HTTPSKeyFile                  string `toml:"https_ssl_key_file"`
	HTTPBuildNotificationEndpoint string `toml:"build_notification_endpoint"`
	BuildNotificationSecret       string `toml:"build_notification_secret"`
	HTTPGithubWebhookEndpoint     string `toml:"github_webhook_endpoint"`
	GithubWebHookSecret           string `toml:"github_webhook_secret"`
	LogFormat                     string `toml:"log_format"`
	LogTimeKey                    string `toml:"log_time_key"`
	LogLevel                      string `toml:"log_level"`
	TemporaryRepositoryRoot       string `toml:"temporary_repository_root"`

	// DryRun disables all write operations on remote repositories,
	// pull requests are only simulated.
	DryRun                   bool   `toml:"dry_run"`
	PullRequestCheckInterval string `toml:"pull_request_check_interval"`

	Database    Database    `toml:"database"`
	GithubApp   GithubApp   `toml:"github_app"`
	AzureDevOps AzureDevOps `toml:"azure_devops"`
	Rules       []*Rule     `toml:"rule"`
}

type Database struct {
	// Driver is "sqlite" or "postgres".
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type GithubApp struct {
	AppID          int64  `toml:"app_id"`
	PrivateKeyFile string `toml:"private_key_file"`
	// APIURL and GraphQLURL are only set for GitHub Enterprise servers.
	APIURL     string `toml:"api_url"`
	GraphQLURL string `toml:"graphql_url"`
}

type AzureDevOps struct {
	// Tokens maps account names to personal access tokens.
	Tokens map[string]string `toml:"tokens"`
	// ManagedIdentities maps account names to managed identity client
	// ids, the account "default" applies to all others.
	ManagedIdentities map[string]string `toml:"managed_identities"`
}

type Rule struct {
	Name        string `toml:"name"`
	FilterQuery string `toml:"filter_query"`
}

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	result.setDefaults()

	if err := result.validate(); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Config) setDefaults() {
	if c.HTTPListenAddr == "" && c.HTTPSListenAddr == "" {
		c.HTTPListenAddr = DefHTTPListenAddr
	}

	if c.HTTPBuildNotificationEndpoint == "" {
		c.HTTPBuildNotificationEndpoint = DefBuildNotificationEndpoint
	}

	if c.HTTPGithubWebhookEndpoint == "" {
		c.HTTPGithubWebhookEndpoint = DefGithubWebhookEndpoint
	}

	if c.LogFormat == "" {
		c.LogFormat = DefLogFormat
	}

	if c.LogTimeKey == "" {
		c.LogTimeKey = DefLogTimeKey
	}

	if c.LogLevel == "" {
		c.LogLevel = DefLogLevel
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DefDatabaseDriver
	}

	if c.Database.DSN == "" && c.Database.Driver == DefDatabaseDriver {
		c.Database.DSN = DefDatabaseDSN
	}

	if c.PullRequestCheckInterval == "" {
		c.PullRequestCheckInterval = DefPullRequestCheckInterval
	}
}

func (c *Config) validate() error {
	if c.HTTPSListenAddr != "" && (c.HTTPSCertFile == "" || c.HTTPSKeyFile == "") {
		return errors.New("https_server_listen_addr is set but https_ssl_cert_file or https_ssl_key_file is missing")
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver: unsupported value %q, must be sqlite or postgres", c.Database.Driver)
	}

	if c.Database.DSN == "" {
		return errors.New("database.dsn is empty")
	}

	if c.GithubApp.AppID != 0 && c.GithubApp.PrivateKeyFile == "" {
		return errors.New("github_app.app_id is set but github_app.private_key_file is missing")
	}

	if _, err := c.CheckInterval(); err != nil {
		return err
	}

	return nil
}

// CheckInterval returns the parsed pull_request_check_interval.
func (c *Config) CheckInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.PullRequestCheckInterval)
	if err != nil {
		return 0, fmt.Errorf("pull_request_check_interval: %w", err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("pull_request_check_interval: must be positive, is %s", d)
	}

	return d, nil
}

func (c *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(c)
}
