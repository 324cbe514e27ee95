package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/toncenter/ton-tools-go/tontools/backend"
	"github.com/toncenter/ton-tools-go/tontools/backend/dton"
	"github.com/toncenter/ton-tools-go/tontools/backend/lite"
	"github.com/toncenter/ton-tools-go/tontools/backend/tonapi"
	"github.com/toncenter/ton-tools-go/tontools/backend/toncenter"
	"github.com/toncenter/ton-tools-go/tontools/content"
	"github.com/toncenter/ton-tools-go/tontools/markets"
)

type Settings struct {
	Backend      string
	ToncenterUrl string
	ToncenterKey string
	TonapiUrl    string
	TonapiKey    string
	DtonUrl      string
	DtonKey      string
	LiteConfig   string
	Testnet      bool

	IpfsGateway string
	Redis       string
	MetadataTtl time.Duration

	MarketsFile string
	PgDsn       string

	Bind        string
	Timeout     time.Duration
	Concurrency int
	MaxLimit    int
	Prefork     bool
	Debug       bool
}

func endpoint(custom string, testnet bool, mainnetUrl, testnetUrl string) string {
	if len(custom) > 0 {
		return custom
	}
	if testnet {
		return testnetUrl
	}
	return mainnetUrl
}

func newResolver(transport backend.Transport, settings Settings) (*content.Resolver, error) {
	opts := content.Options{
		Gateway:     settings.IpfsGateway,
		Concurrency: int64(settings.Concurrency),
		TTL:         settings.MetadataTtl,
	}
	if len(settings.Redis) > 0 {
		redisOpts, err := redis.ParseURL(settings.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts.Cache = content.NewCache[content.Metadata](redis.NewClient(redisOpts), "metadata")
		log.Infof("caching metadata in redis for %s", settings.MetadataTtl)
	}
	return content.NewResolver(transport, opts), nil
}

func loadMarkets(ctx context.Context, settings Settings) (*markets.Registry, error) {
	opts := markets.Options{File: settings.MarketsFile}
	if len(settings.PgDsn) > 0 {
		pool, err := pgxpool.New(ctx, settings.PgDsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pool.Close()
		opts.Pool = pool
	}
	return markets.Load(ctx, opts)
}

func newProvider(ctx context.Context, settings Settings) (backend.Provider, error) {
	transport := backend.NewAgentTransport(settings.Timeout)
	resolver, err := newResolver(transport, settings)
	if err != nil {
		return nil, err
	}
	names, err := loadMarkets(ctx, settings)
	if err != nil {
		return nil, err
	}
	log.Infof("using %s backend with %d known marketplaces", settings.Backend, names.Len())

	switch settings.Backend {
	case "toncenter":
		return toncenter.New(transport, resolver, names, toncenter.Settings{
			Endpoint: endpoint(settings.ToncenterUrl, settings.Testnet, toncenter.MainnetEndpoint, toncenter.TestnetEndpoint),
			ApiKey:   settings.ToncenterKey,
		}), nil
	case "tonapi":
		return tonapi.New(transport, resolver, names, tonapi.Settings{
			Endpoint: endpoint(settings.TonapiUrl, settings.Testnet, tonapi.MainnetEndpoint, tonapi.TestnetEndpoint),
			ApiKey:   settings.TonapiKey,
		}), nil
	case "dton":
		client := dton.New(transport, resolver, names, dton.Settings{
			Endpoint: endpoint(settings.DtonUrl, settings.Testnet, dton.MainnetEndpoint, dton.TestnetEndpoint),
			ApiKey:   settings.DtonKey,
			Testnet:  settings.Testnet,
		})
		if err := client.Login(ctx); err != nil {
			return nil, err
		}
		return client, nil
	case "lite":
		chain, err := lite.Dial(ctx, endpoint(settings.LiteConfig, settings.Testnet, lite.MainnetConfigUrl, lite.TestnetConfigUrl))
		if err != nil {
			return nil, err
		}
		return lite.New(chain, resolver, names), nil
	}
	return nil, fmt.Errorf("unknown backend %q", settings.Backend)
}

func main() {
	var settings Settings
	var timeout_ms int

	flag.StringVar(&settings.Backend, "backend", "toncenter", "Data backend: toncenter, tonapi, dton or lite")
	flag.StringVar(&settings.ToncenterUrl, "toncenter-url", "", "TON HTTP API v2 endpoint")
	flag.StringVar(&settings.ToncenterKey, "toncenter-key", "", "API key for TON HTTP API")
	flag.StringVar(&settings.TonapiUrl, "tonapi-url", "", "tonapi endpoint")
	flag.StringVar(&settings.TonapiKey, "tonapi-key", "", "tonapi bearer token")
	flag.StringVar(&settings.DtonUrl, "dton-url", "", "dton GraphQL endpoint")
	flag.StringVar(&settings.DtonKey, "dton-key", "", "dton api token")
	flag.StringVar(&settings.LiteConfig, "lite-config", "", "Global config url for the lite backend")
	flag.BoolVar(&settings.Testnet, "testnet", false, "Use testnet endpoints")
	flag.StringVar(&settings.IpfsGateway, "ipfs-gateway", content.DefaultGateway, "Gateway for ipfs:// metadata links")
	flag.StringVar(&settings.Redis, "redis", "", "Redis url for the metadata cache")
	flag.DurationVar(&settings.MetadataTtl, "metadata-ttl", time.Hour, "Metadata cache TTL")
	flag.StringVar(&settings.MarketsFile, "markets-file", "", "YAML file with additional marketplace names")
	flag.StringVar(&settings.PgDsn, "pg", "", "PostgreSQL connection string for marketplace names")
	flag.StringVar(&settings.Bind, "bind", ":8000", "Bind address")
	flag.IntVar(&timeout_ms, "timeout", 10000, "Backend request timeout in milliseconds")
	flag.IntVar(&settings.Concurrency, "concurrency", 16, "Concurrent backend requests per batch")
	flag.IntVar(&settings.MaxLimit, "max-limit", 1000, "Maximum value for limit")
	flag.BoolVar(&settings.Prefork, "prefork", false, "Prefork workers")
	flag.BoolVar(&settings.Debug, "debug", false, "Run service in debug mode")
	flag.Parse()
	settings.Timeout = time.Duration(timeout_ms) * time.Millisecond

	if settings.Debug {
		log.SetLevel(log.LevelDebug)
	} else {
		log.SetLevel(log.LevelInfo)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	provider, err := newProvider(ctx, settings)
	cancel()
	if err != nil {
		log.Error(err)
		os.Exit(63)
	}

	// web server
	config := fiber.Config{
		AppName:      "TON Tools API",
		Concurrency:  256 * 1024,
		Prefork:      settings.Prefork,
		ErrorHandler: ErrorHandlerFunc,
	}
	app := fiber.New(config)

	app.Use("/api/v1/", func(c *fiber.Ctx) error {
		c.Accepts("application/json")
		start := time.Now()
		err := c.Next()
		stop := time.Now()
		c.Append("Server-timing", fmt.Sprintf("app;dur=%v", stop.Sub(start).String()))
		return err
	})
	if settings.Debug {
		app.Use(pprof.New())
		app.Use("/api/v1", logger.New(logger.Config{Format: "[${ip}]:${port} ${status} - ${method} ${path}\n"}))
	}

	handlers := &Handlers{provider: provider, settings: settings}
	handlers.Register(app)

	err = app.Listen(settings.Bind)
	log.Fatal(err)
}
