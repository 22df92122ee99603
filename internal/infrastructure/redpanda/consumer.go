package redpanda

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ConsumerConfig holds configuration for a group consumer
type ConsumerConfig struct {
	Brokers           []string
	GroupID           string
	Topics            []string
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	PollRecords       int
	FetchMaxBytes     int32
	// FromLatest starts a new group at the end of the log instead of the start.
	FromLatest bool
	// MaxAttempts bounds handler calls per record. Zero retries until the
	// consumer stops.
	MaxAttempts  int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	// DeadLetterTopic receives records that used up their attempts. Empty
	// drops them after logging.
	DeadLetterTopic string
}

// DefaultConsumerConfig returns defaults for the summary worker
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:           []string{"localhost:9092"},
		GroupID:           "summary-worker",
		Topics:            []string{TopicSummaryRequests},
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		PollRecords:       50,
		FetchMaxBytes:     16 << 20,
		MaxAttempts:       5,
		RetryBackoff:      500 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		DeadLetterTopic:   TopicDeadLetter,
	}
}

// MessageHandler is called for each consumed message. A non-nil error asks
// for the record to be delivered again.
type MessageHandler func(ctx context.Context, msg *ConsumedMessage) error

// RecordPublisher sends records to a topic. *Producer implements it.
type RecordPublisher interface {
	PublishRecord(ctx context.Context, rec *Record) error
}

// ConsumedMessage is a record handed to a MessageHandler
type ConsumedMessage struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
	Attempt   int
}

// Consumer reads a consumer group and hands records to a handler one at a
// time. Offsets are committed only for records that were handled or
// dead-lettered.
type Consumer struct {
	client     *kgo.Client
	config     ConsumerConfig
	handler    MessageHandler
	deadLetter RecordPublisher
	logger     *zap.Logger
	tracer     trace.Tracer

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats ConsumerStats
}

// ConsumerStats holds consumer counters
type ConsumerStats struct {
	Handled            int64
	Retries            int64
	DeadLettered       int64
	DeadLetterFailures int64
	Dropped            int64
	FetchErrors        int64
	LastCommit         time.Time
}

// NewConsumer creates a consumer. Records that exhaust their attempts are
// dead-lettered once WithDeadLetter has been called.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("message handler is required")
	}
	if len(cfg.Topics) == 0 || cfg.GroupID == "" {
		return nil, errors.New("consumer group and topics are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	reset := kgo.NewOffset().AtStart()
	if cfg.FromLatest {
		reset = kgo.NewOffset().AtEnd()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.HeartbeatInterval(cfg.HeartbeatInterval),
		kgo.FetchMaxBytes(cfg.FetchMaxBytes),
		kgo.ConsumeResetOffset(reset),
		kgo.AutoCommitMarks(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			logger.Info("partitions assigned", zap.Any("partitions", assigned))
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, cl *kgo.Client, revoked map[string][]int32) {
			logger.Info("partitions revoked", zap.Any("partitions", revoked))
			if err := cl.CommitMarkedOffsets(ctx); err != nil {
				logger.Warn("commit on revoke failed", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return newConsumer(client, cfg, handler, logger), nil
}

func newConsumer(client *kgo.Client, cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) *Consumer {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConsumerConfig().RetryBackoff
	}
	if cfg.MaxBackoff < cfg.RetryBackoff {
		cfg.MaxBackoff = cfg.RetryBackoff
	}
	if cfg.PollRecords <= 0 {
		cfg.PollRecords = DefaultConsumerConfig().PollRecords
	}
	return &Consumer{
		client:  client,
		config:  cfg,
		handler: handler,
		logger:  logger,
		tracer:  otel.Tracer("redpanda-consumer"),
	}
}

// WithDeadLetter sets where exhausted records are sent
func (c *Consumer) WithDeadLetter(p RecordPublisher) *Consumer {
	c.deadLetter = p
	return c
}

// Start begins consuming in the background
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.consumeLoop(ctx)
}

// Stop waits for the record in flight, commits what was handled and closes
// the client.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.client.CommitMarkedOffsets(ctx); err != nil {
		c.logger.Warn("commit on stop failed", zap.Error(err))
	}
	c.client.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for ctx.Err() == nil {
		fetches := c.client.PollRecords(ctx, c.config.PollRecords)
		if fetches.IsClientClosed() {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error("fetch error",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Error(err))
			c.count(func(s *ConsumerStats) { s.FetchErrors++ })
		})

		for iter := fetches.RecordIter(); !iter.Done(); {
			record := iter.Next()
			if !c.handle(ctx, record) {
				return
			}
			c.client.MarkCommitRecords(record)
		}

		if err := c.client.CommitMarkedOffsets(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", zap.Error(err))
			continue
		}
		c.count(func(s *ConsumerStats) { s.LastCommit = time.Now() })
	}
}

// handle delivers a record until the handler accepts it, the record is
// dead-lettered or dropped, or ctx ends. It reports whether the record may
// be committed.
func (c *Consumer) handle(ctx context.Context, record *kgo.Record) bool {
	msg := toMessage(record)
	var lastErr error

	for attempt := 1; c.config.MaxAttempts <= 0 || attempt <= c.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.count(func(s *ConsumerStats) { s.Retries++ })
			select {
			case <-ctx.Done():
				return false
			case <-time.After(c.retryDelay(attempt - 1)):
			}
		}

		msg.Attempt = attempt
		if lastErr = c.deliver(ctx, record, msg); lastErr == nil {
			c.count(func(s *ConsumerStats) { s.Handled++ })
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.logger.Warn("message handler failed",
			zap.String("topic", record.Topic),
			zap.Int32("partition", record.Partition),
			zap.Int64("offset", record.Offset),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}

	if c.deadLetter == nil || c.config.DeadLetterTopic == "" {
		c.logger.Error("dropping message after retries",
			zap.String("topic", record.Topic),
			zap.Int64("offset", record.Offset),
			zap.Error(lastErr))
		c.count(func(s *ConsumerStats) { s.Dropped++ })
		return true
	}

	return c.sendDeadLetter(ctx, record, lastErr)
}

// sendDeadLetter publishes the dead-letter copy of record, retrying with the
// handler backoff until it succeeds or ctx ends. The partition does not move
// past a record that is neither handled nor dead-lettered.
func (c *Consumer) sendDeadLetter(ctx context.Context, record *kgo.Record, cause error) bool {
	dl := deadLetterRecord(c.config.DeadLetterTopic, record, cause, c.config.MaxAttempts)
	for attempt := 1; ; attempt++ {
		err := c.deadLetter.PublishRecord(ctx, dl)
		if err == nil {
			c.count(func(s *ConsumerStats) { s.DeadLettered++ })
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.logger.Error("dead-letter publish failed",
			zap.String("topic", record.Topic),
			zap.Int64("offset", record.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err))
		c.count(func(s *ConsumerStats) { s.DeadLetterFailures++ })

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryDelay(attempt)):
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, record *kgo.Record, msg *ConsumedMessage) error {
	ctx, span := c.tracer.Start(extractTraceContext(ctx, record), "consume "+record.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", record.Topic),
			attribute.Int64("messaging.partition", int64(record.Partition)),
			attribute.Int64("messaging.offset", record.Offset),
			attribute.Int("messaging.attempt", msg.Attempt),
		))
	defer span.End()

	err := c.handler(ctx, msg)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// retryDelay doubles the backoff per failed attempt up to MaxBackoff
func (c *Consumer) retryDelay(failed int) time.Duration {
	d := c.config.RetryBackoff
	for i := 1; i < failed && d < c.config.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, c.config.MaxBackoff)
}

func (c *Consumer) count(f func(*ConsumerStats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}

// Stats returns a snapshot of the consumer counters
func (c *Consumer) Stats() ConsumerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func toMessage(record *kgo.Record) *ConsumedMessage {
	msg := &ConsumedMessage{
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Key:       record.Key,
		Value:     record.Value,
		Headers:   make(map[string]string, len(record.Headers)),
		Timestamp: record.Timestamp,
	}
	for _, h := range record.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

// deadLetterRecord copies a record to the dead-letter topic, keeping its key
// and headers and recording where it came from.
func deadLetterRecord(topic string, record *kgo.Record, cause error, attempts int) *Record {
	headers := make(map[string]string, len(record.Headers)+5)
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	headers[HeaderOriginalTopic] = record.Topic
	headers[HeaderOriginalPartition] = strconv.Itoa(int(record.Partition))
	headers[HeaderOriginalOffset] = strconv.FormatInt(record.Offset, 10)
	headers[HeaderAttempts] = strconv.Itoa(attempts)
	if cause != nil {
		headers[HeaderError] = cause.Error()
	}
	return &Record{Topic: topic, Key: string(record.Key), Value: record.Value, Headers: headers}
}
