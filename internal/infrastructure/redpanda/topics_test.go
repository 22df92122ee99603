package redpanda

import (
	"testing"
	"time"
)

func TestTopicSpecConfigs(t *testing.T) {
	got := TopicSpec{
		Name:            TopicClinicalDocuments,
		Retention:       30 * 24 * time.Hour,
		Compression:     "zstd",
		MaxMessageBytes: 10 << 20,
	}.Configs()

	want := map[string]string{
		"cleanup.policy":    "delete",
		"retention.ms":      "2592000000",
		"compression.type":  "zstd",
		"max.message.bytes": "10485760",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d configs, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] == nil || *got[k] != v {
			t.Errorf("%s = %v, want %s", k, got[k], v)
		}
	}

	minimal := TopicSpec{Name: "x", Retention: time.Hour}.Configs()
	if _, ok := minimal["max.message.bytes"]; ok {
		t.Error("max.message.bytes should be omitted when unset")
	}
	if _, ok := minimal["compression.type"]; ok {
		t.Error("compression.type should be omitted when unset")
	}
}

func TestTopicsCoverPipeline(t *testing.T) {
	seen := make(map[string]bool)
	for _, s := range Topics {
		if s.Partitions <= 0 || s.Retention <= 0 {
			t.Errorf("topic %s has no partitions or retention", s.Name)
		}
		seen[s.Name] = true
	}
	for _, name := range []string{TopicSummaryRequests, TopicSummaryEvents, TopicClinicalDocuments, TopicDeadLetter} {
		if !seen[name] {
			t.Errorf("topic %s missing from layout", name)
		}
	}
}

func TestSortLag(t *testing.T) {
	rows := []PartitionLag{
		{Topic: "b", Partition: 0},
		{Topic: "a", Partition: 2},
		{Topic: "a", Partition: 0},
	}
	sortLag(rows)
	if rows[0].Topic != "a" || rows[0].Partition != 0 || rows[1].Partition != 2 || rows[2].Topic != "b" {
		t.Fatalf("rows = %+v", rows)
	}
}
