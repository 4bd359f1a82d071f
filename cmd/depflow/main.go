package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/depflow/internal/actor"
	"github.com/simplesurance/depflow/internal/cfg"
	"github.com/simplesurance/depflow/internal/evloop"
	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/provider/buildnotify"
	"github.com/simplesurance/depflow/internal/provider/github"
	"github.com/simplesurance/depflow/internal/pullrequest"
	"github.com/simplesurance/depflow/internal/remote"
	"github.com/simplesurance/depflow/internal/store"
	"github.com/simplesurance/depflow/internal/subscription"
	"github.com/simplesurance/depflow/internal/tokens"
)

const appName = "depflow"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

// goodbye runs exit handlers in ascending priority order, handlers
// registered via Register() have priority 0.
const (
	shutdownPrioEventLoop = 10
	shutdownPrioStore     = 20
	shutdownPrioLogger    = 30
)

const pullRequestListEndpoint = "/pullrequests"
const metricsEndpoint = "/metrics"

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught , terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

func startServer(name string, srv *http.Server, listenAndServe func() error) {
	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating "+name+" server",
			logfields.Event(name+"_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := srv.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down "+name+" server failed",
				logfields.Event(name+"_server_termination_failed"),
				zap.Error(err),
			)
		}
	})

	go func() {
		defer panicHandler()

		logger.Info(
			name+" server started",
			logfields.Event(name+"_server_started"),
			zap.String("listenAddr", srv.Addr),
		)

		err := listenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info(name+" server terminated", logfields.Event(name+"_server_terminated"))
			return
		}

		logger.Fatal(
			name+" server terminated unexpectedly",
			logfields.Event(name+"_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

func startHTTPSServer(listenAddr string, certFile, keyFile string, handler http.Handler) {
	srv := http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
	}

	startServer("https", &srv, func() error {
		return srv.ListenAndServeTLS(certFile, keyFile)
	})
}

func startHTTPServer(listenAddr string, handler http.Handler) {
	srv := http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
	}

	startServer("http", &srv, srv.ListenAndServe)
}

type arguments struct {
	Verbose     *bool
	ConfigFile  *string
	ShowVersion *bool
	DryRun      *bool
}

var args arguments

const defConfigFile = "/etc/depflow/config.toml"

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			defConfigFile,
			"path to the depflow configuration file",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
		DryRun: pflag.Bool(
			"dry-run",
			false,
			"simulate pull request changes, overrides the dry_run config setting",
		),
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nFlow dependency updates from builds into pull requests of subscribed repositories.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	file, err := os.Open(*args.ConfigFile)
	exitOnErr("could not open configuration files", err)
	defer file.Close()

	config, err := cfg.Load(file)
	if err != nil {
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	if *args.DryRun {
		config.DryRun = true
	}

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s \n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.RegisterWithPriority(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	}, shutdownPrioLogger)
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func mapKeys(in map[string]string) []string {
	result := make([]string, 0, len(in))
	for k := range in {
		result = append(result, k)
	}

	return result
}

func mustOpenStore(config *cfg.Config) *store.Store {
	ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
	defer cancelFn()

	st, err := store.Open(ctx, config.Database.Driver, config.Database.DSN)
	exitOnErr("opening database failed", err)

	goodbye.RegisterWithPriority(func(context.Context, os.Signal) {
		if err := st.Close(); err != nil {
			logger.Warn("closing database failed", logfields.Event("database_close_failed"), zap.Error(err))
		}
	}, shutdownPrioStore)

	return st
}

func mustInitTokenResolver(config *cfg.Config) *tokens.Resolver {
	azdo := tokens.AzureDevOpsConfig{
		Tokens:            config.AzureDevOps.Tokens,
		ManagedIdentities: config.AzureDevOps.ManagedIdentities,
	}

	if config.GithubApp.AppID == 0 {
		logger.Info(
			"no github app configured, github repositories can not be accessed",
			logfields.Event("github_app_unconfigured"),
		)

		return tokens.NewResolver(nil, azdo)
	}

	key, err := os.ReadFile(config.GithubApp.PrivateKeyFile)
	exitOnErr("reading github app private key failed", err)

	var opts []tokens.GitHubAppOption
	if config.GithubApp.APIURL != "" {
		opts = append(opts, tokens.WithGitHubAPIURL(config.GithubApp.APIURL))
	}

	ghApp, err := tokens.NewGitHubAppTokenProvider(config.GithubApp.AppID, key, opts...)
	exitOnErr("initializing github app token provider failed", err)

	return tokens.NewResolver(ghApp, azdo)
}

// startPullRequestChecker runs CheckPullRequests periodically until
// shutdown.
func startPullRequestChecker(prs *pullrequest.Registry, interval time.Duration) {
	ctx, cancelFn := context.WithCancel(context.Background())
	done := make(chan struct{})

	goodbye.RegisterWithPriority(func(context.Context, os.Signal) {
		logger.Debug(
			"stopping pull request checker",
			logfields.Event("pull_request_checker_stopping"),
		)
		cancelFn()
		<-done
	}, shutdownPrioEventLoop)

	go func() {
		defer panicHandler()
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info(
			"pull request checker started",
			logfields.Event("pull_request_checker_started"),
			zap.Duration("interval", interval),
		)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if err := prs.CheckPullRequests(ctx); err != nil {
				logger.Warn(
					"checking in-progress pull requests failed",
					logfields.Event("pull_request_check_failed"),
					zap.Error(err),
				)
			}
		}
	}()
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()

	mustInitLogger(config)

	rules, err := evloop.RulesFromCfg(config)
	exitOnErr(fmt.Sprintf("could not parse rules from configuration file: %s", *args.ConfigFile), err)

	checkInterval, err := config.CheckInterval()
	exitOnErr("invalid configuration", err)

	logger.Info(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("http_server_listen_addr", config.HTTPListenAddr),
		zap.String("https_server_listen_addr", config.HTTPSListenAddr),
		zap.String("build_notification_endpoint", config.HTTPBuildNotificationEndpoint),
		zap.String("build_notification_secret", hide(config.BuildNotificationSecret)),
		zap.String("github_webhook_endpoint", config.HTTPGithubWebhookEndpoint),
		zap.String("github_webhook_secret", hide(config.GithubWebHookSecret)),
		zap.Int64("github_app_id", config.GithubApp.AppID),
		zap.String("github_api_url", config.GithubApp.APIURL),
		zap.Strings("azure_devops_token_accounts", mapKeys(config.AzureDevOps.Tokens)),
		zap.Any("azure_devops_managed_identities", config.AzureDevOps.ManagedIdentities),
		zap.String("database_driver", config.Database.Driver),
		zap.String("temporary_repository_root", config.TemporaryRepositoryRoot),
		zap.Bool("dry_run", config.DryRun),
		zap.Duration("pull_request_check_interval", checkInterval),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
		zap.String("rules", rules.String()),
	)

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
	})

	st := mustOpenStore(config)

	remoteFactory := remote.NewFactory(
		remote.Config{
			TemporaryRepositoryRoot: config.TemporaryRepositoryRoot,
			GitHubAPIURL:            config.GithubApp.APIURL,
			GitHubGraphQLURL:        config.GithubApp.GraphQLURL,
		},
		mustInitTokenResolver(config),
		st,
	)

	var remotes pullrequest.RemoteFactory = remoteFactory
	if config.DryRun {
		remotes = pullrequest.NewDryRemoteFactory(remoteFactory)
	}

	// pushing commits is done by an external git service, changes are
	// only written into the repository working directories
	committer := pullrequest.NewDryCommitter(remoteFactory.WorkingDirectory)

	host := actor.NewHost()

	var prs *pullrequest.Registry
	subs := subscription.NewRegistry(
		host,
		st,
		subscription.PullRequestWorkflowLookupFunc(func(routingKey string) subscription.PullRequestWorkflow {
			return prs.Lookup(routingKey)
		}),
	)
	prs = pullrequest.NewRegistry(host, st, remotes, committer, subs)

	evLoop := evloop.NewEventLoop(
		subs,
		rules,
		evloop.WithActionRoutineDeferFunc(panicHandler),
	)

	evLoopDone := make(chan struct{})
	go func() {
		evLoop.Start()
		close(evLoopDone)
	}()

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	buildNotify := buildnotify.New(
		evLoop.C(),
		buildnotify.WithSharedSecret(config.BuildNotificationSecret),
	)
	router.Post(config.HTTPBuildNotificationEndpoint, buildNotify.HTTPHandler)
	logger.Info(
		"registered build notification http endpoint",
		logfields.Event("build_notification_http_handler_registered"),
		zap.String("endpoint", config.HTTPBuildNotificationEndpoint),
	)

	gh := github.New(st, github.WithPayloadSecret(config.GithubWebHookSecret))
	router.Post(config.HTTPGithubWebhookEndpoint, gh.HTTPHandler)
	logger.Info(
		"registered github webhook event http endpoint",
		logfields.Event("github_http_handler_registered"),
		zap.String("endpoint", config.HTTPGithubWebhookEndpoint),
	)

	router.Get(pullRequestListEndpoint, prs.HTTPHandlerList)
	router.Method(http.MethodGet, metricsEndpoint, promhttp.Handler())

	startPullRequestChecker(prs, checkInterval)

	// stopped after the http servers, when no new events are accepted
	goodbye.RegisterWithPriority(func(context.Context, os.Signal) {
		logger.Debug(
			"stopping event loop",
			logfields.Event("event_loop_stopping"),
		)
		evLoop.Stop()
		<-evLoopDone
	}, shutdownPrioEventLoop)

	if config.HTTPListenAddr != "" {
		startHTTPServer(config.HTTPListenAddr, router)
	}

	if config.HTTPSListenAddr != "" {
		startHTTPSServer(
			config.HTTPSListenAddr,
			config.HTTPSCertFile,
			config.HTTPSKeyFile,
			router,
		)
	}

	select {}
}
