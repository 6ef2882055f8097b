package di

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zanmi-app/zanmi-go/internal/application/auth"
	"github.com/zanmi-app/zanmi-go/internal/application/localfirst"
	"github.com/zanmi-app/zanmi-go/internal/application/pipeline"
	"github.com/zanmi-app/zanmi-go/internal/core/domain"
	infraauth "github.com/zanmi-app/zanmi-go/internal/infrastructure/auth"
	"github.com/zanmi-app/zanmi-go/internal/infrastructure/cache"
	"github.com/zanmi-app/zanmi-go/internal/infrastructure/config"
	"github.com/zanmi-app/zanmi-go/internal/infrastructure/events"
	httpinfra "github.com/zanmi-app/zanmi-go/internal/infrastructure/http"
	"github.com/zanmi-app/zanmi-go/internal/infrastructure/storage"
)

// cacheBackendWindow is the bigcache upper bound; individual entries
// expire by their own route TTL, all of which are shorter.
const cacheBackendWindow = time.Hour

// Options configures the container from flags and environment.
type Options struct {
	APIURL     string
	Profile    string
	Debug      bool
	RoutesFile string
	DataDir    string
}

// Container wires the SDK together for the CLI.
type Container struct {
	Logger *zap.Logger
	Routes *domain.RouteTable

	TokenStore    *infraauth.SecureFileTokenStore
	Refresher     *infraauth.HTTPRefresher
	Events        *events.Emitter
	Coordinator   *auth.Coordinator
	ResponseCache *cache.BigCacheStore
	Client        *pipeline.Client

	Repository  *storage.FileRepository
	Queries     *localfirst.QueryCache
	Pools       *localfirst.PoolReader
	Enrollments *localfirst.EnrollmentReader
	Payments    *localfirst.PaymentService
}

// NewContainer builds and wires every component.
func NewContainer(opts Options) (*Container, error) {
	if opts.APIURL == "" {
		return nil, fmt.Errorf("api url is required")
	}
	if opts.DataDir == "" {
		opts.DataDir = "~/.zanmi"
	}

	logger, err := newLogger(opts.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	routes, err := config.LoadRouteTable(opts.RoutesFile)
	if err != nil {
		return nil, err
	}

	refresher := infraauth.NewHTTPRefresher(opts.APIURL)
	tokenStore, err := infraauth.NewSecureFileTokenStore(opts.DataDir+"/auth", refresher)
	if err != nil {
		return nil, err
	}

	emitter := events.NewEmitter(logger)
	coordinator := auth.NewCoordinator(tokenStore, emitter, logger)

	responseCache, err := cache.NewBigCacheStore(context.Background(), cacheBackendWindow, nil)
	if err != nil {
		return nil, err
	}

	client, err := pipeline.New(pipeline.Options{
		BaseURL:     opts.APIURL,
		Routes:      routes,
		Requester:   httpinfra.NewStdRequester(opts.APIURL, nil),
		Cache:       responseCache,
		Coordinator: coordinator,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if opts.Profile != "" {
		client.SetProfile(opts.Profile)
	}

	repository, err := storage.NewFileRepository(opts.DataDir+"/data", nil)
	if err != nil {
		return nil, err
	}

	queries := localfirst.NewQueryCache()

	return &Container{
		Logger:        logger,
		Routes:        routes,
		TokenStore:    tokenStore,
		Refresher:     refresher,
		Events:        emitter,
		Coordinator:   coordinator,
		ResponseCache: responseCache,
		Client:        client,
		Repository:    repository,
		Queries:       queries,
		Pools:         localfirst.NewPoolReader(client, repository, queries, logger),
		Enrollments:   localfirst.NewEnrollmentReader(client, repository, queries, logger),
		Payments:      localfirst.NewPaymentService(client, repository, queries, responseCache, logger),
	}, nil
}

// Close releases held resources.
func (c *Container) Close() {
	if c.ResponseCache != nil {
		_ = c.ResponseCache.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}
