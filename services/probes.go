package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/shopfront/stagerunner/registry"
)

// PostgresProbe reports the database ready once it accepts a connection
// and answers a ping.
type PostgresProbe struct {
	cfg registry.DatabaseConfig

	// connect is a test hook; defaults to a real pgx connection.
	connect func(ctx context.Context, dsn string) error
}

// NewPostgresProbe creates a readiness probe for the test database.
func NewPostgresProbe(cfg registry.DatabaseConfig) *PostgresProbe {
	return &PostgresProbe{
		cfg:     cfg,
		connect: pgxPing,
	}
}

func pgxPing(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(ctx) }()
	return conn.Ping(ctx)
}

func (p *PostgresProbe) Name() string { return p.cfg.Service }

func (p *PostgresProbe) Probe(ctx context.Context) error {
	if err := p.connect(ctx, p.cfg.DSN()); err != nil {
		return errors.Wrap(err, "error connecting to postgres")
	}
	return nil
}

func (p *PostgresProbe) Timeout() time.Duration      { return p.cfg.Timeout }
func (p *PostgresProbe) PollInterval() time.Duration { return p.cfg.PollInterval }

// RedisProbe reports the cache ready once it answers PING.
type RedisProbe struct {
	cfg registry.CacheConfig

	// newClient is a test hook; defaults to a client for the configured URL.
	newClient func() (redis.UniversalClient, error)
}

// NewRedisProbe creates a readiness probe for the test cache.
func NewRedisProbe(cfg registry.CacheConfig) *RedisProbe {
	return &RedisProbe{
		cfg: cfg,
		newClient: func() (redis.UniversalClient, error) {
			opts, err := redis.ParseURL(cfg.URL())
			if err != nil {
				return nil, err
			}
			return redis.NewClient(opts), nil
		},
	}
}

func (p *RedisProbe) Name() string { return p.cfg.Service }

func (p *RedisProbe) Probe(ctx context.Context) error {
	client, err := p.newClient()
	if err != nil {
		return errors.Wrap(err, "error building redis client")
	}
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "error connecting to redis")
	}
	return nil
}

func (p *RedisProbe) Timeout() time.Duration      { return p.cfg.Timeout }
func (p *RedisProbe) PollInterval() time.Duration { return p.cfg.PollInterval }
