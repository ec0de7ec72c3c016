package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"github.com/sirupsen/logrus"
)

// Outbox dispatcher: polls estimate event records written inside business
// transactions and publishes them to Pub/Sub after commit. Safe to run as a
// single replica; rows are claimed (marked Processing) before publishing so a
// second replica skips them, and stuck claims are reverted on a slower cycle.

const (
	defaultPollInterval  = 5 * time.Second
	defaultBatchSize     = 50
	defaultStuckAfter    = 5 * time.Minute
	stuckRevertFrequency = 12 // revert pass every N polls
)

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func main() {
	logger := logrus.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ConnectDatabaseWithRetry()

	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Panic(err.Error())
	}
	topic, err := config.CreateTopicIfNotExists(client, config.EstimateEventTopicName())
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Panic(err.Error())
	}
	defer topic.Stop()

	pollInterval := envDuration("OUTBOX_POLL_INTERVAL", defaultPollInterval)
	batchSize := envInt("OUTBOX_BATCH_SIZE", defaultBatchSize)
	stuckAfter := envDuration("OUTBOX_STUCK_AFTER", defaultStuckAfter)

	logger.WithFields(logrus.Fields{
		"poll_interval": pollInterval.String(),
		"batch_size":    batchSize,
		"topic":         config.EstimateEventTopicName(),
	}).Info("outbox dispatcher started")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var polls int
	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox dispatcher shutting down")
			return
		case <-ticker.C:
		}

		polls++
		if polls%stuckRevertFrequency == 0 {
			reverted, err := models.RevertStuckEstimateEvents(ctx, stuckAfter)
			if err != nil {
				config.LogError(logger, "main.go", "main", "revert stuck events", nil, err)
			} else if reverted > 0 {
				logger.WithFields(logrus.Fields{"reverted": reverted}).Warn("reverted stuck outbox events to pending")
			}
		}

		records, err := models.FetchPendingEstimateEvents(ctx, batchSize)
		if err != nil {
			config.LogError(logger, "main.go", "main", "fetch pending events", nil, err)
			continue
		}

		for i := range records {
			record := &records[i]
			messageId, err := config.PublishEstimateEvent(ctx, topic, record.ToEvent())
			if err != nil {
				config.LogError(logger, "main.go", "main", "publish event", record.ID, err)
				if markErr := models.MarkEstimateEventFailed(ctx, record.ID, err); markErr != nil {
					config.LogError(logger, "main.go", "main", "mark event failed", record.ID, markErr)
				}
				continue
			}
			if err := models.MarkEstimateEventPublished(ctx, record.ID); err != nil {
				// Published but not marked: the revert pass will retry and the
				// consumer must dedupe on event id.
				config.LogError(logger, "main.go", "main", "mark event published", record.ID, err)
				continue
			}
			logger.WithFields(logrus.Fields{
				"record_id":      record.ID,
				"event_type":     record.EventType,
				"estimate_id":    record.EstimateId,
				"message_id":     messageId,
				"correlation_id": record.CorrelationId,
			}).Info("outbox event published")
		}
	}
}
