package redpanda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Topic names used by the summary pipeline
const (
	TopicSummaryRequests   = "summary.requests"
	TopicSummaryEvents     = "summary.events"
	TopicClinicalDocuments = "clinical.documents"
	TopicDeadLetter        = "clinical.dead-letter"
)

// TopicSpec describes a topic the pipeline needs
type TopicSpec struct {
	Name        string
	Partitions  int32
	Retention   time.Duration
	Compression string
	// MaxMessageBytes raises the broker default when set
	MaxMessageBytes int
}

// Topics is the layout of the summary pipeline. Requests, events and
// documents are keyed by patient id so a patient's work stays ordered.
var Topics = []TopicSpec{
	{Name: TopicSummaryRequests, Partitions: 6, Retention: 24 * time.Hour, Compression: "lz4"},
	{Name: TopicSummaryEvents, Partitions: 6, Retention: 7 * 24 * time.Hour, Compression: "lz4"},
	{Name: TopicClinicalDocuments, Partitions: 6, Retention: 30 * 24 * time.Hour, Compression: "zstd", MaxMessageBytes: 10 << 20},
	{Name: TopicDeadLetter, Partitions: 3, Retention: 14 * 24 * time.Hour, Compression: "lz4"},
}

// Configs returns the topic-level broker settings
func (s TopicSpec) Configs() map[string]*string {
	ptr := func(v string) *string { return &v }
	out := map[string]*string{
		"cleanup.policy": ptr("delete"),
		"retention.ms":   ptr(strconv.FormatInt(s.Retention.Milliseconds(), 10)),
	}
	if s.Compression != "" {
		out["compression.type"] = ptr(s.Compression)
	}
	if s.MaxMessageBytes > 0 {
		out["max.message.bytes"] = ptr(strconv.Itoa(s.MaxMessageBytes))
	}
	return out
}

// Admin wraps kadm for topic management
type Admin struct {
	client *kadm.Client
	logger *zap.Logger
}

// NewAdmin creates an admin client
func NewAdmin(brokers []string, logger *zap.Logger) (*Admin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Admin{client: kadm.NewClient(cl), logger: logger}, nil
}

// EnsureTopics creates missing topics and grows existing ones that have
// fewer partitions than their spec. Partitions are never removed.
func (a *Admin) EnsureTopics(ctx context.Context, specs []TopicSpec, replication int16) error {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	existing, err := a.client.ListTopics(ctx, names...)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	for _, s := range specs {
		td, ok := existing[s.Name]
		if ok && td.Err == nil {
			if have := int32(len(td.Partitions)); have < s.Partitions {
				if err := a.grow(ctx, s, have); err != nil {
					return err
				}
			}
			continue
		}

		resp, err := a.client.CreateTopic(ctx, s.Partitions, replication, s.Configs(), s.Name)
		if err == nil {
			err = resp.Err
		}
		if errors.Is(err, kerr.TopicAlreadyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("create topic %s: %w", s.Name, err)
		}
		a.logger.Info("topic created", zap.String("topic", s.Name), zap.Int32("partitions", s.Partitions))
	}
	return nil
}

func (a *Admin) grow(ctx context.Context, s TopicSpec, have int32) error {
	resp, err := a.client.UpdatePartitions(ctx, int(s.Partitions), s.Name)
	if err != nil {
		return fmt.Errorf("grow topic %s: %w", s.Name, err)
	}
	if r, ok := resp[s.Name]; ok && r.Err != nil {
		return fmt.Errorf("grow topic %s: %w", s.Name, r.Err)
	}
	a.logger.Info("topic partitions increased",
		zap.String("topic", s.Name),
		zap.Int32("from", have),
		zap.Int32("to", s.Partitions))
	return nil
}

// ListTopics returns the non-internal topic names, sorted
func (a *Admin) ListTopics(ctx context.Context) ([]string, error) {
	topics, err := a.client.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics.Names(), nil
}

// PartitionLag is the lag of one partition for a consumer group
type PartitionLag struct {
	Topic     string
	Partition int32
	Committed int64
	End       int64
	Lag       int64
}

// GroupLag returns the group's lag per partition, ordered by topic and
// partition.
func (a *Admin) GroupLag(ctx context.Context, group string) ([]PartitionLag, error) {
	described, err := a.client.Lag(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("group lag: %w", err)
	}
	l, ok := described[group]
	if !ok {
		return nil, fmt.Errorf("group %s not found", group)
	}
	if err := l.Error(); err != nil {
		return nil, fmt.Errorf("group %s: %w", group, err)
	}

	var out []PartitionLag
	for topic, partitions := range l.Lag {
		for p, ml := range partitions {
			out = append(out, PartitionLag{
				Topic:     topic,
				Partition: p,
				Committed: ml.Commit.At,
				End:       ml.End.Offset,
				Lag:       ml.Lag,
			})
		}
	}
	sortLag(out)
	return out, nil
}

func sortLag(rows []PartitionLag) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Topic != rows[j].Topic {
			return rows[i].Topic < rows[j].Topic
		}
		return rows[i].Partition < rows[j].Partition
	})
}

// Close closes the admin client
func (a *Admin) Close() {
	a.client.Close()
}

// Ping verifies the brokers are reachable
func Ping(ctx context.Context, brokers []string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cl, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer cl.Close()
	return cl.Ping(ctx)
}
