// Package redpanda moves summary requests, summary events and clinical
// documents through Redpanda with franz-go.
package redpanda

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ProducerConfig struct {
	Brokers []string
	// MaxRecordBytes must fit a rendered CDA document
	MaxRecordBytes int32
	Linger         time.Duration
	// Compression is one of none, gzip, snappy, lz4 or zstd
	Compression string
	// Acks is "all" or "leader". Leader acks turn off idempotent writes.
	Acks         string
	Retries      int
	RetryBackoff time.Duration
	CloseTimeout time.Duration
}

// DefaultProducerConfig favours durability over throughput; volumes are low.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:        []string{"localhost:9092"},
		MaxRecordBytes: 10 << 20,
		Linger:         10 * time.Millisecond,
		Compression:    "zstd",
		Acks:           "all",
		Retries:        5,
		RetryBackoff:   200 * time.Millisecond,
		CloseTimeout:   30 * time.Second,
	}
}

// options translates cfg into franz-go client options
func (cfg ProducerConfig) options() ([]kgo.Opt, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchMaxBytes(cfg.MaxRecordBytes),
		kgo.ProducerLinger(cfg.Linger),
		kgo.RecordRetries(cfg.Retries),
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			return cfg.RetryBackoff * time.Duration(tries+1)
		}),
	}

	switch cfg.Acks {
	case "", "all":
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	case "leader":
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	default:
		return nil, fmt.Errorf("redpanda: unknown acks %q", cfg.Acks)
	}

	codec, err := codecFor(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return append(opts, kgo.ProducerBatchCompression(codec)), nil
}

func codecFor(name string) (kgo.CompressionCodec, error) {
	switch name {
	case "", "none":
		return kgo.NoCompression(), nil
	case "gzip":
		return kgo.GzipCompression(), nil
	case "snappy":
		return kgo.SnappyCompression(), nil
	case "lz4":
		return kgo.Lz4Compression(), nil
	case "zstd":
		return kgo.ZstdCompression(), nil
	}
	return kgo.CompressionCodec{}, fmt.Errorf("redpanda: unknown compression %q", name)
}

// Producer publishes records synchronously
type Producer struct {
	client *kgo.Client
	config ProducerConfig
	logger *zap.Logger
	tracer trace.Tracer

	sent   atomic.Int64
	bytes  atomic.Int64
	failed atomic.Int64
}

func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultProducerConfig().CloseTimeout
	}
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("redpanda: producer client: %w", err)
	}
	return &Producer{
		client: client,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("redpanda-producer"),
	}, nil
}

// Publish sends value and waits for the broker ack. It satisfies
// postgres.Publisher.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	return p.PublishRecord(ctx, &Record{Topic: topic, Key: key, Value: value})
}

// PublishRecord sends rec with its headers plus the current trace context.
func (p *Producer) PublishRecord(ctx context.Context, rec *Record) error {
	ctx, span := p.tracer.Start(ctx, rec.Topic+" publish", trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination", rec.Topic),
			attribute.Int("messaging.message.body.size", len(rec.Value)),
		))
	defer span.End()

	kr := rec.toKgo()
	injectTraceHeaders(ctx, kr)

	if err := p.client.ProduceSync(ctx, kr).FirstErr(); err != nil {
		p.failed.Add(1)
		span.RecordError(err)
		p.logger.Error("publish failed", zap.String("topic", rec.Topic), zap.String("key", rec.Key), zap.Error(err))
		return fmt.Errorf("redpanda: publish to %s: %w", rec.Topic, err)
	}

	p.sent.Add(1)
	p.bytes.Add(int64(len(rec.Value)))
	p.logger.Debug("published",
		zap.String("topic", kr.Topic),
		zap.Int32("partition", kr.Partition),
		zap.Int64("offset", kr.Offset))
	return nil
}

// Close flushes buffered records within CloseTimeout and closes the client
func (p *Producer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.CloseTimeout)
	defer cancel()
	err := p.client.Flush(ctx)
	p.client.Close()
	if err != nil {
		return fmt.Errorf("redpanda: flush on close: %w", err)
	}
	return nil
}

type ProducerStats struct {
	Sent   int64
	Bytes  int64
	Failed int64
}

func (p *Producer) Stats() ProducerStats {
	return ProducerStats{Sent: p.sent.Load(), Bytes: p.bytes.Load(), Failed: p.failed.Load()}
}

// Record is an outgoing message
type Record struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

func (r *Record) toKgo() *kgo.Record {
	kr := kgo.KeySliceRecord([]byte(r.Key), r.Value)
	kr.Topic = r.Topic
	for k, v := range r.Headers {
		kr.Headers = append(kr.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return kr
}
