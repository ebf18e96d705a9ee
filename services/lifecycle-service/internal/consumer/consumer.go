package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/carecycle/libs/kafkax"
	otelx "github.com/md-rashed-zaman/carecycle/libs/otel"
	"github.com/segmentio/kafka-go"
)

// Handler processes one event. A nil return means the event is done with,
// including events that are skipped on purpose; an error means retry.
type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox deduplicates events by id.
type Inbox interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader     messageReader
	logger     *slog.Logger
	inbox      Inbox
	handler    Handler
	retryDelay time.Duration
	maxDelay   time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, inboxRepo Inbox, cfg Config, handler Handler) *Consumer {
	c := &Consumer{
		logger:     logger,
		inbox:      inboxRepo,
		handler:    handler,
		retryDelay: time.Second,
		maxDelay:   30 * time.Second,
	}
	if brokers := kafkax.SplitBrokers(cfg.Brokers); len(brokers) > 0 {
		c.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.Topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
	}
	return c
}

// Run fetches, processes and then commits each message. Offsets are only
// committed once the handler has succeeded, so a failing message is retried
// with backoff and never skipped.
func (c *Consumer) Run(ctx context.Context) {
	if c.reader == nil {
		c.logger.Warn("event consumer disabled (no kafka brokers configured)")
		return
	}
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}
		if !c.processUntilDone(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		}
	}
}

// processUntilDone retries msg until it succeeds. It returns false when ctx
// ends first, leaving the offset uncommitted.
func (c *Consumer) processUntilDone(ctx context.Context, msg kafka.Message) bool {
	delay := c.retryDelay
	for {
		if err := c.process(ctx, msg); err == nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}

// process handles one message at most once per event id. When the handler
// fails, the id is forgotten again so the retry is not ignored.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) (err error) {
	ctx, span := kafkax.StartConsumeSpan(ctx, msg)
	defer func() { otelx.EndSpan(span, err) }()

	meta := kafkax.ExtractEventMeta(msg)
	id := dedupKey(msg, meta)
	ok, err := c.inbox.Record(ctx, id, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err, "event_id", id)
		return err
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", id, "event_type", meta.EventType)
		return nil
	}

	if err := c.handler(ctx, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", id)
		if ferr := c.inbox.Forget(ctx, id); ferr != nil {
			c.logger.Error("inbox forget failed", "err", ferr, "event_id", id)
		}
		return err
	}
	return nil
}

// dedupKey is the event id, or the message position for producers that send
// neither an event id header nor a key. The position is stable across
// redeliveries of the same message.
func dedupKey(msg kafka.Message, meta kafkax.EventMeta) string {
	if meta.EventID != "" {
		return meta.EventID
	}
	return fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
}
