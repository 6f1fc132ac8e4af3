package worker

import (
	"context"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"todo-scheduler/internal/config"
	"todo-scheduler/internal/models"
	"todo-scheduler/internal/queue"
	"todo-scheduler/pkg/logger"
)

// EventStore persists consumed events.
type EventStore interface {
	Append(ctx context.Context, ev models.TodoEvent) error
}

// Invalidator drops cached todo lists.
type Invalidator interface {
	InvalidateTodos(ctx context.Context)
}

// Worker consumes the todo event topic, records each event in the history
// table and invalidates the list cache.
type Worker struct {
	cfg       config.KafkaConfig
	events    EventStore
	cache     Invalidator
	processed atomic.Int64
}

// New returns a worker; cache may be nil.
func New(cfg config.KafkaConfig, events EventStore, cache Invalidator) *Worker {
	return &Worker{cfg: cfg, events: events, cache: cache}
}

// Run blocks until ctx is cancelled. One consumer per process; replicas share
// partitions through the consumer group.
func (w *Worker) Run(ctx context.Context) {
	if len(w.cfg.Brokers) == 0 {
		logger.Info(ctx, "Worker disabled (no Kafka brokers)")
		return
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  w.cfg.Brokers,
		Topic:    w.cfg.Topic,
		GroupID:  w.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	logger.Info(ctx, "Kafka consumer started", "topic", w.cfg.Topic, "group", w.cfg.GroupID)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info(ctx, "Kafka consumer stopped", "processed", w.Processed())
				return
			}
			logger.Error(ctx, "Worker fetch failed", "error", err)
			continue
		}
		if err := w.handleMessage(ctx, msg.Value); err != nil {
			logger.Error(ctx, "Worker handle failed", "error", err, "payload", string(msg.Value))
			// Commit anyway to avoid poison pill blocking the partition
			_ = reader.CommitMessages(ctx, msg)
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "Worker commit failed", "error", err)
		}
	}
}

// Processed returns the number of events handled successfully.
func (w *Worker) Processed() int64 {
	return w.processed.Load()
}

func (w *Worker) handleMessage(ctx context.Context, payload []byte) error {
	ev, err := queue.DecodeEvent(payload)
	if err != nil {
		return err
	}
	if err := w.events.Append(ctx, ev); err != nil {
		return err
	}
	if w.cache != nil {
		w.cache.InvalidateTodos(ctx)
	}
	w.processed.Add(1)
	return nil
}
