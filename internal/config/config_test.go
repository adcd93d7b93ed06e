package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("QUEUE_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("WORKER_MAX_RETRIES", "5")

	cfg, err := Load("missing.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Queue.Backend != "memory" || !cfg.Queue.FallbackToMemory {
		t.Fatalf("unexpected queue defaults %+v", cfg.Queue)
	}
	if len(cfg.Queue.Kafka.Brokers) != 2 || cfg.Queue.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Queue.Kafka.Brokers)
	}
	if cfg.Worker.MaxRetries != 5 || cfg.Worker.BatchSize != 25 || cfg.Worker.TopicDLQ != "fitbit.notifications.dlq" {
		t.Fatalf("unexpected worker config %+v", cfg.Worker)
	}
	if cfg.Worker.DefaultUserID != "me" || cfg.Worker.OutputFile != "worker_processed_events.jsonl" {
		t.Fatalf("unexpected worker defaults %+v", cfg.Worker)
	}
}

func TestLoadReadsEnvLocal(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env.local"), []byte("WORKER_BATCH_SIZE=7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("WORKER_BATCH_SIZE") })

	cfg, err := Load("missing.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Worker.BatchSize != 7 {
		t.Fatalf("expected .env.local value, got %d", cfg.Worker.BatchSize)
	}
}

func TestVerifyCodeSet(t *testing.T) {
	set := Fitbit{VerifyCodes: " abc, ,def,"}.VerifyCodeSet()
	if len(set) != 2 {
		t.Fatalf("expected 2 codes, got %v", set)
	}
	if _, ok := set["abc"]; !ok {
		t.Fatalf("expected trimmed code, got %v", set)
	}
}

func TestURLMap(t *testing.T) {
	urls, err := AWS{
		SQSURL:       "https://sqs/shared",
		SQSTopicURLs: `{"fitbit.notifications.dlq":"https://sqs/dlq"}`,
	}.URLMap()
	if err != nil {
		t.Fatalf("url map: %v", err)
	}
	if urls["default"] != "https://sqs/shared" || urls["fitbit.notifications.dlq"] != "https://sqs/dlq" {
		t.Fatalf("unexpected urls %v", urls)
	}

	if _, err := (AWS{SQSTopicURLs: `["not","a","map"]`}).URLMap(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSubscriptionMapEmpty(t *testing.T) {
	subs, err := GCP{}.SubscriptionMap()
	if err != nil || len(subs) != 0 {
		t.Fatalf("expected empty map, got %v %v", subs, err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
