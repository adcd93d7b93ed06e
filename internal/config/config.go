package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	App         App         `yaml:"app"`
	HTTP        HTTP        `yaml:"http"`
	Log         Log         `yaml:"log"`
	Queue       Queue       `yaml:"queue"`
	Worker      Worker      `yaml:"worker"`
	Fitbit      Fitbit      `yaml:"fitbit"`
	Credentials Credentials `yaml:"credentials"`
	Postgres    Postgres    `yaml:"postgres"`
	Redis       Redis       `yaml:"redis"`
	Dynamo      Dynamo      `yaml:"dynamo"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"health-service"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Queue struct {
	Backend          string `yaml:"backend" env:"QUEUE_BACKEND" env-default:"memory"`
	FallbackToMemory bool   `yaml:"fallback_to_memory" env:"QUEUE_FALLBACK_TO_MEMORY" env-default:"true"`
	Kafka            Kafka  `yaml:"kafka"`
	GCP              GCP    `yaml:"gcp"`
	AWS              AWS    `yaml:"aws"`
}

type Kafka struct {
	Brokers      []string `yaml:"brokers" env:"QUEUE_KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	ClientID     string   `yaml:"client_id" env:"QUEUE_KAFKA_CLIENT_ID" env-default:"health-service"`
	GroupID      string   `yaml:"group_id" env:"QUEUE_KAFKA_GROUP_ID" env-default:"health-service-worker"`
	StartOffset  string   `yaml:"start_offset" env:"QUEUE_KAFKA_START_OFFSET" env-default:"earliest"`
	EnsureTopics bool     `yaml:"ensure_topics" env:"QUEUE_KAFKA_ENSURE_TOPICS" env-default:"false"`
	Partitions   int      `yaml:"partitions" env:"QUEUE_KAFKA_PARTITIONS" env-default:"1"`
	Replication  int      `yaml:"replication" env:"QUEUE_KAFKA_REPLICATION" env-default:"1"`
}

type GCP struct {
	ProjectID     string `yaml:"project_id" env:"QUEUE_GCP_PROJECT_ID"`
	TopicPrefix   string `yaml:"topic_prefix" env:"QUEUE_GCP_TOPIC_PREFIX"`
	Subscriptions string `yaml:"subscriptions" env:"QUEUE_GCP_SUBSCRIPTIONS"` // JSON object
	AutoCreate    bool   `yaml:"auto_create" env:"QUEUE_GCP_AUTO_CREATE" env-default:"false"`
	AckDeadline   int    `yaml:"ack_deadline_seconds" env:"QUEUE_GCP_ACK_DEADLINE_SECONDS" env-default:"60"`
}

type AWS struct {
	Region       string `yaml:"region" env:"QUEUE_AWS_REGION" env-default:"us-east-1"`
	Endpoint     string `yaml:"endpoint" env:"QUEUE_AWS_ENDPOINT"`
	SQSURL       string `yaml:"sqs_url" env:"QUEUE_AWS_SQS_URL"`
	SQSTopicURLs string `yaml:"sqs_topic_urls" env:"QUEUE_AWS_SQS_TOPIC_URLS"` // JSON object
}

type Worker struct {
	TopicRaw       string `yaml:"topic_raw" env:"WORKER_TOPIC_RAW" env-default:"fitbit.notifications.raw"`
	TopicRetry     string `yaml:"topic_retry" env:"WORKER_TOPIC_RETRY" env-default:"fitbit.notifications.retry"`
	TopicDLQ       string `yaml:"topic_dlq" env:"WORKER_TOPIC_DLQ" env-default:"fitbit.notifications.dlq"`
	MaxRetries     int    `yaml:"max_retries" env:"WORKER_MAX_RETRIES" env-default:"3"`
	BatchSize      int    `yaml:"batch_size" env:"WORKER_BATCH_SIZE" env-default:"25"`
	PollSeconds    int    `yaml:"poll_seconds" env:"WORKER_POLL_SECONDS" env-default:"2"`
	DedupeCapacity int    `yaml:"dedupe_capacity" env:"WORKER_DEDUPE_CAPACITY" env-default:"100000"`
	DefaultUserID  string `yaml:"default_user_id" env:"WORKER_DEFAULT_USER_ID" env-default:"me"`
	OutputFile     string `yaml:"output_file" env:"WORKER_OUTPUT_FILE" env-default:"worker_processed_events.jsonl"`
	MetricsPort    string `yaml:"metrics_port" env:"WORKER_METRICS_PORT" env-default:"9093"`
	TimingEnabled  bool   `yaml:"timing_enabled" env:"WORKER_TIMING_ENABLED" env-default:"true"`
	TimingLogLevel string `yaml:"timing_log_level" env:"WORKER_TIMING_LOG_LEVEL" env-default:"info"`
	TimingWarnMS   int    `yaml:"timing_warn_ms" env:"WORKER_TIMING_WARN_MS" env-default:"1000"`
}

func (w Worker) PollInterval() time.Duration {
	if w.PollSeconds <= 0 {
		return time.Second
	}
	return time.Duration(w.PollSeconds) * time.Second
}

type Fitbit struct {
	VerifyCodes        string `yaml:"verify_codes" env:"FITBIT_SUBSCRIPTION_VERIFY_CODE"` // comma-separated
	BaseURL            string `yaml:"base_url" env:"FITBIT_API_BASE_URL" env-default:"https://api.fitbit.com"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds" env:"FITBIT_HTTP_TIMEOUT_SECONDS" env-default:"30"`
}

func (f Fitbit) HTTPTimeout() time.Duration {
	if f.HTTPTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(f.HTTPTimeoutSeconds) * time.Second
}

type Credentials struct {
	Backend         string `yaml:"backend" env:"CREDENTIALS_BACKEND" env-default:"memory"`
	CacheRedis      bool   `yaml:"cache_redis" env:"CREDENTIALS_CACHE_REDIS" env-default:"false"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds" env:"CREDENTIALS_CACHE_TTL_SECONDS" env-default:"300"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"health_db"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Dynamo struct {
	Region   string `yaml:"region" env:"DYNAMO_REGION" env-default:"us-east-1"`
	Endpoint string `yaml:"endpoint" env:"DYNAMO_ENDPOINT"`
	Table    string `yaml:"table" env:"DYNAMO_TABLE" env-default:"oauth_tokens"`
}

func New() (*Config, error) {
	return Load("config.yaml")
}

// Load reads .env.local into the environment when present, then path, then env overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env.local: %w", err)
	}

	cfg := &Config{}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config env override: %w", err)
	}

	return cfg, nil
}

// VerifyCodeSet returns the accepted webhook verification codes.
func (f Fitbit) VerifyCodeSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, c := range strings.Split(f.VerifyCodes, ",") {
		if c = strings.TrimSpace(c); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

// URLMap returns the topic → queue URL map. QUEUE_AWS_SQS_URL, when set, is the "default" entry
// unless the JSON map names one.
func (a AWS) URLMap() (map[string]string, error) {
	urls, err := parseStringMap(a.SQSTopicURLs)
	if err != nil {
		return nil, fmt.Errorf("QUEUE_AWS_SQS_TOPIC_URLS: %w", err)
	}
	if a.SQSURL != "" {
		if _, ok := urls["default"]; !ok {
			urls["default"] = a.SQSURL
		}
	}
	return urls, nil
}

// SubscriptionMap returns the topic → subscription id map.
func (g GCP) SubscriptionMap() (map[string]string, error) {
	subs, err := parseStringMap(g.Subscriptions)
	if err != nil {
		return nil, fmt.Errorf("QUEUE_GCP_SUBSCRIPTIONS: %w", err)
	}
	return subs, nil
}

func parseStringMap(raw string) (map[string]string, error) {
	out := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("expected a JSON object of strings: %w", err)
	}
	return out, nil
}
