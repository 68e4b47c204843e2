package connection

import (
	"net/http"
	"strings"
	"time"

	"github.com/Etesie/fauna-typed/internal/codec"
	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/logger"
	"github.com/Etesie/fauna-typed/pkg/models"
)

// Config holds what a connection needs to reach the service.
// It is not absolutely necessary to create a Config using NewConfig, but
// NewConfig fills in working defaults for everything except the secret.
type Config struct {
	BaseURL     string
	Secret      string
	Marshaler   codec.Marshaler
	Unmarshaler codec.Unmarshaler
	Timeout     time.Duration
	Retryer     Retryer
	HTTPClient  *http.Client
	Logger      logger.Logger
}

func NewConfig(baseURL, secret string) *Config {
	if baseURL == "" {
		baseURL = constants.DefaultEndpoint
	}
	return &Config{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		Secret:      secret,
		Marshaler:   models.JSONCodec{},
		Unmarshaler: models.JSONCodec{},
		Timeout:     constants.DefaultRequestTimeout,
		Retryer:     NewExponentialBackoffRetryer(),
		Logger:      logger.Default(),
	}
}

func (c *Config) preConnectionChecks() error {
	if c.BaseURL == "" {
		return constants.ErrNoBaseURL
	}
	if c.Secret == "" {
		return constants.ErrNoSecret
	}
	if c.Marshaler == nil || c.Unmarshaler == nil {
		return constants.ErrNoCodec
	}
	return nil
}
