package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"healthsync/internal/config"
	"healthsync/internal/domain/credential"
	"healthsync/internal/infrastructure/dynamo"
	"healthsync/internal/infrastructure/kafka"
	"healthsync/internal/infrastructure/memory"
	"healthsync/internal/infrastructure/postgres"
	"healthsync/internal/infrastructure/pubsub"
	"healthsync/internal/infrastructure/redis"
	"healthsync/internal/infrastructure/sqs"
	"healthsync/internal/queue"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"
)

// Factory builds infrastructure lazily from configuration and owns what it builds.
type Factory struct {
	cfg    *config.Config
	logger *slog.Logger

	pgPool   *pgxpool.Pool
	redisCli *go_redis.Client
	queue    queue.Client
	creds    credential.Store
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{cfg: cfg, logger: logger}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	// Retry connection up to 5 times
	for i := 0; i < 5; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
		})
		if err == nil {
			break
		}
		f.logger.Warn("failed to connect to postgres", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) Redis(ctx context.Context) (*go_redis.Client, error) {
	if f.redisCli != nil {
		return f.redisCli, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr:     f.cfg.Redis.Addr,
		Password: f.cfg.Redis.Password,
		DB:       f.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

// Queue returns the configured queue client. When the backend cannot be built, it falls back
// to the in-memory transport if allowed and otherwise returns a *queue.ConfigError.
func (f *Factory) Queue(ctx context.Context) (queue.Client, error) {
	if f.queue != nil {
		return f.queue, nil
	}

	backend := strings.ToLower(strings.TrimSpace(f.cfg.Queue.Backend))
	q, err := f.buildQueue(ctx, backend)
	if err != nil {
		var cfgErr *queue.ConfigError
		if !errors.As(err, &cfgErr) {
			cfgErr = &queue.ConfigError{Backend: backend, Reason: "construction failed", Err: err}
		}
		if !f.cfg.Queue.FallbackToMemory {
			return nil, cfgErr
		}
		f.logger.Warn("queue backend unavailable, falling back to memory", "backend", backend, "error", cfgErr)
		q = queue.NewMemory()
	}

	f.logger.Info("queue client ready", "backend", backend)
	f.queue = q
	return q, nil
}

func (f *Factory) buildQueue(ctx context.Context, backend string) (queue.Client, error) {
	qc := f.cfg.Queue
	w := f.cfg.Worker

	switch backend {
	case "", queue.BackendMemory:
		return queue.NewMemory(), nil

	case queue.BackendKafka:
		q, err := kafka.New(kafka.Config{
			Brokers:     qc.Kafka.Brokers,
			ClientID:    qc.Kafka.ClientID,
			GroupID:     qc.Kafka.GroupID,
			StartOffset: qc.Kafka.StartOffset,
		}, f.logger)
		if err != nil {
			return nil, &queue.ConfigError{Backend: backend, Reason: "invalid kafka settings", Err: err}
		}
		if qc.Kafka.EnsureTopics {
			if err := kafka.EnsureTopics(ctx, qc.Kafka.Brokers, qc.Kafka.Partitions, qc.Kafka.Replication,
				w.TopicRaw, w.TopicRetry, w.TopicDLQ); err != nil {
				_ = q.Close()
				return nil, &queue.ConfigError{Backend: backend, Reason: "ensure topics", Err: err}
			}
		}
		return q, nil

	case queue.BackendPubSub:
		if qc.GCP.ProjectID == "" {
			return nil, &queue.ConfigError{Backend: backend, Reason: "QUEUE_GCP_PROJECT_ID is required"}
		}
		subs, err := qc.GCP.SubscriptionMap()
		if err != nil {
			return nil, &queue.ConfigError{Backend: backend, Reason: "invalid subscription map", Err: err}
		}
		q, err := pubsub.New(ctx, pubsub.Config{
			ProjectID:     qc.GCP.ProjectID,
			TopicPrefix:   qc.GCP.TopicPrefix,
			Subscriptions: subs,
			AutoCreate:    qc.GCP.AutoCreate,
			AckDeadline:   time.Duration(qc.GCP.AckDeadline) * time.Second,
		}, f.logger)
		if err != nil {
			return nil, &queue.ConfigError{Backend: backend, Reason: "pubsub client", Err: err}
		}
		return q, nil

	case queue.BackendSQS:
		urls, err := qc.AWS.URLMap()
		if err != nil {
			return nil, &queue.ConfigError{Backend: backend, Reason: "invalid queue url map", Err: err}
		}
		if len(urls) == 0 {
			return nil, &queue.ConfigError{Backend: backend, Reason: "QUEUE_AWS_SQS_URL or QUEUE_AWS_SQS_TOPIC_URLS is required"}
		}
		q, err := sqs.New(ctx, sqs.Config{Region: qc.AWS.Region, Endpoint: qc.AWS.Endpoint, URLs: urls}, f.logger)
		if err != nil {
			return nil, &queue.ConfigError{Backend: backend, Reason: "sqs client", Err: err}
		}
		return q, nil

	default:
		return nil, &queue.ConfigError{Backend: backend, Reason: "unsupported backend"}
	}
}

// CredentialStore returns the configured token store, wrapped in the Redis read-through cache
// when enabled.
func (f *Factory) CredentialStore(ctx context.Context) (credential.Store, error) {
	if f.creds != nil {
		return f.creds, nil
	}

	var store credential.Store
	switch backend := strings.ToLower(f.cfg.Credentials.Backend); backend {
	case "", "memory":
		store = memory.NewCredentialStore()
	case "postgres":
		pool, err := f.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		repo := postgres.NewCredentialRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("credential schema: %w", err)
		}
		store = repo
	case "dynamodb":
		s, err := dynamo.NewCredentialStore(ctx, dynamo.Config{
			Region:   f.cfg.Dynamo.Region,
			Endpoint: f.cfg.Dynamo.Endpoint,
			Table:    f.cfg.Dynamo.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb credential store: %w", err)
		}
		store = s
	default:
		return nil, fmt.Errorf("unsupported credentials backend %q", backend)
	}

	if f.cfg.Credentials.CacheRedis {
		client, err := f.Redis(ctx)
		if err != nil {
			return nil, err
		}
		ttl := time.Duration(f.cfg.Credentials.CacheTTLSeconds) * time.Second
		store = redis.NewCachedCredentialStore(store, client, ttl, f.logger)
	}

	f.creds = store
	return store, nil
}

func (f *Factory) Close() {
	if f.queue != nil {
		if err := f.queue.Close(); err != nil {
			f.logger.Warn("failed to close queue client", "error", err)
		}
	}
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		f.redisCli.Close()
	}
}
