package source

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/kafka"
	bsbierrors "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/errors"
)

// KafkaSource replays one topic partition as a finite document stream,
// decoding each message value as one document object.
type KafkaSource struct {
	reader *kafka.PartitionReader
}

func NewKafkaSource(ctx context.Context, brokers []string, topic string, partition int) (*KafkaSource, error) {
	reader, err := kafka.NewPartitionReader(ctx, brokers, topic, partition)
	if err != nil {
		return nil, err
	}
	return &KafkaSource{reader: reader}, nil
}

func (s *KafkaSource) Next(ctx context.Context) (Document, error) {
	offset, value, err := s.reader.Next(ctx)
	if err != nil {
		return Document{}, err
	}
	doc, err := kafka.DecodeJSON[Document](value)
	if err != nil {
		return Document{}, bsbierrors.Parse("message at offset %d: %v", offset, err)
	}
	return doc, nil
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
