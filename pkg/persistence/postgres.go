package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/Etesie/fauna-typed/internal/codec"
	"github.com/Etesie/fauna-typed/pkg/logger"
	"github.com/Etesie/fauna-typed/pkg/models"
)

const (
	DefaultPostgresTable     = "fauna_cache"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Postgres stores one row per key in a key/value table, created on first
// use. Values are encoded with models.JSONCodec unless configured
// otherwise.
type Postgres struct {
	dsn       string
	tableName string
	codec     codec.Codec
	logger    logger.Logger
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

type PostgresOption func(p *Postgres)

func WithTable(name string) PostgresOption {
	return func(p *Postgres) { p.tableName = name }
}

func WithPostgresCodec(c codec.Codec) PostgresOption {
	return func(p *Postgres) { p.codec = c }
}

func WithPostgresLogger(l logger.Logger) PostgresOption {
	return func(p *Postgres) { p.logger = l }
}

// NewPostgres returns an adapter for dsn. The connection is opened lazily.
func NewPostgres(dsn string, opts ...PostgresOption) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("persistence: empty postgres dsn")
	}
	p := &Postgres{
		dsn:       dsn,
		tableName: DefaultPostgresTable,
		codec:     models.JSONCodec{},
		logger:    logger.Nop(),
		openDB:    sql.Open,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Postgres) Set(ctx context.Context, key string, docs []models.Document) error {
	if err := p.ensureReady(ctx); err != nil {
		return err
	}
	data, err := models.EncodeDocuments(p.codec, docs)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (cache_key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (cache_key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, pq.QuoteIdentifier(p.tableName))
	_, err = p.db.ExecContext(ctx, query, key, data)
	return err
}

func (p *Postgres) Get(ctx context.Context, key string) ([]models.Document, bool, error) {
	if err := p.ensureReady(ctx); err != nil {
		return nil, false, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT value FROM %s WHERE cache_key = $1", pq.QuoteIdentifier(p.tableName))
	var data []byte
	err := p.db.QueryRowContext(ctx, query, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	docs, err := decode(p.codec, data, key, p.logger)
	if err != nil {
		return nil, false, err
	}
	return docs, true, nil
}

func (p *Postgres) Remove(ctx context.Context, key string) error {
	if err := p.ensureReady(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE cache_key = $1", pq.QuoteIdentifier(p.tableName))
	_, err := p.db.ExecContext(ctx, query, key)
	return err
}

func (p *Postgres) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) ensureReady(ctx context.Context) error {
	p.initOnce.Do(func() {
		db, err := p.openDB("postgres", p.dsn)
		if err != nil {
			p.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				cache_key TEXT PRIMARY KEY,
				value BYTEA NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, pq.QuoteIdentifier(p.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			p.initErr = err
			return
		}
		p.db = db
	})
	return p.initErr
}
