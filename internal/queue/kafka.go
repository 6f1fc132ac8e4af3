package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"todo-scheduler/internal/config"
	"todo-scheduler/internal/models"
	"todo-scheduler/pkg/logger"
)

// EnsureTopic creates the events topic with configured partitions (idempotent).
// Call at startup; if it fails (e.g. no broker or topic exists), app still runs.
func EnsureTopic(ctx context.Context, cfg config.KafkaConfig) {
	if len(cfg.Brokers) == 0 {
		return
	}
	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		logger.Debug(ctx, "Kafka dial for topic creation failed", "error", err)
		return
	}
	defer conn.Close()
	controller, err := conn.Controller()
	if err != nil {
		logger.Debug(ctx, "Kafka controller lookup failed", "error", err)
		return
	}
	ctrlConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		logger.Debug(ctx, "Kafka controller dial failed", "error", err)
		return
	}
	defer ctrlConn.Close()
	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             cfg.Topic,
		NumPartitions:     cfg.Partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Debug(ctx, "Kafka create topic failed (topic may already exist)", "error", err)
		return
	}
	logger.Info(ctx, "Kafka topic ensured", "topic", cfg.Topic, "partitions", cfg.Partitions)
}

// Publisher writes todo change events to Kafka.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher returns an async producer. Messages are keyed by todo id so a
// todo's events stay ordered within one partition.
func NewPublisher(ctx context.Context, cfg config.KafkaConfig) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		RequiredAcks: kafka.RequireOne,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn(context.Background(), "Kafka event delivery failed", "error", err, "count", len(messages))
			}
		},
	}
	logger.Info(ctx, "Kafka producer initialized", "topic", cfg.Topic, "brokers", cfg.Brokers)
	return &Publisher{writer: w}
}

// Publish enqueues one event. With the async writer it returns before delivery.
func (p *Publisher) Publish(ctx context.Context, ev models.TodoEvent) error {
	msg, err := eventMessage(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func eventMessage(ev models.TodoEvent) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.TodoID, 10)),
		Value: payload,
		Time:  ev.OccurredAt,
	}, nil
}

// DecodeEvent parses a message value produced by Publish.
func DecodeEvent(payload []byte) (models.TodoEvent, error) {
	var ev models.TodoEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return models.TodoEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.EventID == "" || ev.Action == "" {
		return models.TodoEvent{}, fmt.Errorf("decode event: missing eventId or action")
	}
	return ev, nil
}
