//go:build integration

// Package integration exercises the optional collaborators of a build
// against live services: the Postgres build registry, the Redis posting
// cache and the Kafka document source and completion producer. Connection
// settings come from the usual BSBI_* environment variables; a test is
// skipped when its service cannot be reached.
//
//	go test -tags integration ./test/integration/...
package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/manifest"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/redis"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestRegistryRoundTrip(t *testing.T) {
	cfg := loadConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer db.Close()

	reg := registry.New(db)
	if err := reg.Init(ctx); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	b := manifest.Build{
		ID:         manifest.NewBuildID(now),
		Status:     manifest.StatusRunning,
		Source:     "integration",
		ChunkSize:  10,
		BufferSize: 4,
		StartedAt:  now,
	}
	if err := reg.Started(ctx, b); err != nil {
		t.Fatal(err)
	}
	// A repeated start is a no-op.
	if err := reg.Started(ctx, b); err != nil {
		t.Fatalf("second Started: %v", err)
	}

	b.Status = manifest.StatusSucceeded
	b.Documents, b.Chunks, b.Rounds, b.Terms, b.Postings = 30, 3, 2, 17, 55
	b.FinalPath = "/tmp/final.idx"
	b.FinishedAt = now.Add(time.Second)
	if err := reg.Finished(ctx, b); err != nil {
		t.Fatal(err)
	}

	latest, err := reg.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ID != b.ID {
		t.Fatalf("latest = %+v, want build %s", latest, b.ID)
	}
	if latest.Terms != 17 || latest.Postings != 55 || latest.FinalPath != b.FinalPath {
		t.Errorf("latest = %+v", latest)
	}

	unknown := b
	unknown.ID = manifest.NewBuildID(now.Add(time.Hour))
	if err := reg.Finished(ctx, unknown); err == nil {
		t.Error("Finished on an unregistered build succeeded")
	}
}

func TestPostingCacheRoundTrip(t *testing.T) {
	cfg := loadConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer client.Close()

	path := filepath.Join(t.TempDir(), "final"+segment.Extension)
	err = segment.WriteEntries(path, []index.TermEntry{
		{Term: "alpha", Postings: index.PostingList{1, 4}},
		{Term: "beta", Postings: index.PostingList{2}},
	})
	if err != nil {
		t.Fatal(err)
	}

	cache := lookup.NewCache(client, time.Minute)
	if err := cache.Invalidate(ctx); err != nil {
		t.Fatal(err)
	}
	svc, err := lookup.Open(path, tokenizer.Whitespace, cache)
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	for i := 0; i < 2; i++ {
		hits, err := svc.Lookup(ctx, "alpha", "gamma")
		if err != nil {
			t.Fatal(err)
		}
		if !hits[0].Found || !hits[0].Postings.Equal(index.PostingList{1, 4}) {
			t.Errorf("alpha = %+v", hits[0])
		}
		if hits[1].Found {
			t.Errorf("gamma = %+v", hits[1])
		}
	}
	hits, misses := cache.Stats()
	if hits != 2 || misses != 2 {
		t.Errorf("cache stats = %d hits, %d misses, want 2, 2", hits, misses)
	}
	if err := cache.Invalidate(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestBuildFromKafka(t *testing.T) {
	cfg := loadConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := cfg.Source.Topic
	producer := kafka.NewProducer(cfg.Kafka.Brokers, topic)
	defer producer.Close()

	stamp := time.Now().UnixNano()
	docs := make([]source.Document, 12)
	for i := range docs {
		docs[i] = source.Document{
			ID:   uint64(stamp) + uint64(i),
			Body: fmt.Sprintf("run%d shared doc%d", stamp, i%3),
		}
		if err := producer.Publish(ctx, "integration", docs[i]); err != nil {
			t.Skipf("kafka unavailable: %v", err)
		}
	}

	src, err := source.NewKafkaSource(ctx, cfg.Kafka.Brokers, topic, cfg.Source.Partition)
	if err != nil {
		t.Skipf("kafka unavailable: %v", err)
	}
	defer src.Close()

	p, err := pipeline.New(pipeline.Options{
		DataDir:    t.TempDir(),
		ChunkSize:  5,
		BufferSize: 8,
		Tokenize:   tokenizer.Whitespace,
	}, metrics.Nop(), pipeline.Hooks{
		Notifier: kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.IndexComplete),
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Run(ctx, src, "kafka://"+topic)
	if err != nil {
		t.Fatal(err)
	}
	if res.Documents < len(docs) {
		t.Fatalf("built %d documents, published %d", res.Documents, len(docs))
	}

	r, err := segment.OpenReader(res.FinalPath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	postings, found, err := r.Lookup(fmt.Sprintf("run%d", stamp))
	if err != nil {
		t.Fatal(err)
	}
	if !found || len(postings) != len(docs) {
		t.Fatalf("run term postings = %v, want %d documents", postings, len(docs))
	}
	for i, id := range postings {
		if id != docs[i].ID {
			t.Errorf("posting %d = %d, want %d", i, id, docs[i].ID)
		}
	}
}
