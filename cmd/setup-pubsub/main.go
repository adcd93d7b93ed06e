// Command setup-pubsub creates the Pub/Sub topics and subscriptions the worker reads and writes.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"healthsync/internal/config"
	"healthsync/internal/infrastructure/pubsub"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	defaultTopics := strings.Join([]string{cfg.Worker.TopicRaw, cfg.Worker.TopicRetry, cfg.Worker.TopicDLQ}, ",")
	projectID := flag.String("project-id", cfg.Queue.GCP.ProjectID, "GCP project id")
	topicList := flag.String("topics", defaultTopics, "comma-separated logical topic names")
	prefix := flag.String("topic-prefix", cfg.Queue.GCP.TopicPrefix, "prefix added to every topic id")
	flag.Parse()

	if *projectID == "" {
		logger.Error("project id is required (-project-id or QUEUE_GCP_PROJECT_ID)")
		os.Exit(2)
	}
	subs, err := cfg.Queue.GCP.SubscriptionMap()
	if err != nil {
		logger.Error("invalid subscription map", "error", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	q, err := pubsub.New(ctx, pubsub.Config{
		ProjectID:     *projectID,
		TopicPrefix:   *prefix,
		Subscriptions: subs,
	}, logger)
	if err != nil {
		logger.Error("failed to create pubsub clients", "error", err)
		os.Exit(1)
	}
	defer q.Close()

	names := pubsub.Names{ProjectID: *projectID, TopicPrefix: *prefix, Subscriptions: subs}
	prov := q.Provisioner()
	failed := false
	for _, topic := range strings.Split(*topicList, ",") {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if err := prov.EnsureSubscription(ctx, topic); err != nil {
			logger.Error("failed to provision", "topic", topic, "error", err)
			failed = true
			continue
		}
		logger.Info("provisioned",
			"topic", names.TopicPath(topic),
			"subscription", names.SubscriptionPath(topic),
		)
	}
	if failed {
		os.Exit(1)
	}
}
