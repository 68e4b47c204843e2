package faunatyped

import (
	"context"
	"fmt"
	"strings"

	"github.com/Etesie/fauna-typed/internal/codec"
	"github.com/Etesie/fauna-typed/pkg/connection"
	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/gateway"
	"github.com/Etesie/fauna-typed/pkg/logger"
	"github.com/Etesie/fauna-typed/pkg/models"
	"github.com/Etesie/fauna-typed/pkg/persistence"
)

var (
	_ Gateway    = (*gateway.Fauna)(nil)
	_ ChangeFeed = (*gateway.Fauna)(nil)
)

// Environment variables read by NewConfig.
const (
	EnvEndpoint = "FAUNA_ENDPOINT"
	EnvSecret   = "FAUNA_SECRET"
	EnvCacheDir = "FAUNA_CACHE_DIR"
	EnvPageSize = "FAUNA_PAGE_SIZE"
	EnvFormat   = "FAUNA_CACHE_FORMAT"
)

// Storage formats for file persistence.
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// Config describes how to reach the service and where to keep the cache.
type Config struct {
	Endpoint string
	Secret   string

	// CacheDir is the directory of file persistence. Empty keeps the
	// cache in memory only.
	CacheDir string
	Format   string

	PageSize     int
	HistoryLimit int
	Logger       logger.Logger
}

// NewConfig returns defaults overridden by the environment.
func NewConfig() *Config {
	return &Config{
		Endpoint:     GetEnvOrDefault(EnvEndpoint, constants.DefaultEndpoint),
		Secret:       GetEnvOrDefault(EnvSecret, ""),
		CacheDir:     GetEnvOrDefault(EnvCacheDir, ""),
		Format:       GetEnvOrDefault(EnvFormat, FormatJSON),
		PageSize:     getEnvIntOrDefault(EnvPageSize, constants.DefaultPageSize),
		HistoryLimit: constants.DefaultHistoryLimit,
		Logger:       logger.Default(),
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return constants.ErrNoBaseURL
	}
	if !strings.HasPrefix(c.Endpoint, constants.HTTPScheme+"://") &&
		!strings.HasPrefix(c.Endpoint, constants.HTTPSecureScheme+"://") {
		return fmt.Errorf("invalid endpoint %q: want an http or https URL", c.Endpoint)
	}
	if c.Secret == "" {
		return constants.ErrNoSecret
	}
	if _, err := c.codec(); err != nil {
		return err
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("invalid page size %d", c.PageSize)
	}
	return nil
}

// Options returns the registry options implied by c.
func (c *Config) Options() []Option {
	opts := []Option{WithHistoryLimit(c.HistoryLimit), WithPageSize(c.PageSize)}
	if c.Logger != nil {
		opts = append(opts, WithLogger(c.Logger))
	}
	return opts
}

func (c *Config) codec() (codec.Codec, error) {
	switch strings.ToLower(c.Format) {
	case "", FormatJSON:
		return models.JSONCodec{}, nil
	case FormatCBOR:
		return models.CBORCodec{}, nil
	}
	return nil, fmt.Errorf("unknown cache format %q", c.Format)
}

// Connect checks the credentials against the service and returns a
// gateway with change-feed support.
func (c *Config) Connect(ctx context.Context) (*gateway.Fauna, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	conf := connection.NewConfig(c.Endpoint, c.Secret)
	if c.Logger != nil {
		conf.Logger = c.Logger
	}
	conn := connection.NewHTTPConnection(conf)
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	return gateway.New(conn,
		gateway.WithPageSize(c.PageSize),
		gateway.WithStream(connection.NewStreamConnection(conf)),
		gateway.WithLogger(conf.Logger),
	), nil
}

// OpenPersistence returns file persistence in CacheDir, or memory
// persistence when CacheDir is empty.
func (c *Config) OpenPersistence() (Persistence, error) {
	if c.CacheDir == "" {
		return persistence.NewMemory(), nil
	}
	cd, err := c.codec()
	if err != nil {
		return nil, err
	}
	opts := []persistence.FileOption{persistence.WithCodec(cd)}
	if c.Logger != nil {
		opts = append(opts, persistence.WithFileLogger(c.Logger))
	}
	return persistence.NewFile(c.CacheDir, opts...)
}
