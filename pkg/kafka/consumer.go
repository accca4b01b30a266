// Package kafka provides Kafka clients backed by segmentio/kafka-go: a
// bounded partition reader that replays a topic as a finite document stream,
// and a producer that publishes JSON build events.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// tailIdleTimeout bounds how long Next waits for a message below the recorded
// high-water mark. Control records and compaction can leave the offsets just
// below it empty, in which case no such message ever arrives.
const tailIdleTimeout = 5 * time.Second

// PartitionReader replays one partition from its first retained offset up
// to the high-water mark seen when it was opened. Messages produced after
// that are not part of the stream.
type PartitionReader struct {
	reader *kafka.Reader
	logger *slog.Logger
	next   int64
	end    int64
	idle   time.Duration
}

// NewPartitionReader resolves the partition's offset bounds through its
// leader and positions a reader at the first offset.
func NewPartitionReader(ctx context.Context, brokers []string, topic string, partition int) (*PartitionReader, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialLeader(ctx, "tcp", brokers[0], topic, partition)
	if err != nil {
		return nil, fmt.Errorf("dialing partition leader for %s/%d: %w", topic, partition, err)
	}
	first, last, err := conn.ReadOffsets()
	conn.Close()
	if err != nil {
		return nil, fmt.Errorf("reading offsets for %s/%d: %w", topic, partition, err)
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: partition,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	if err := r.SetOffset(first); err != nil {
		r.Close()
		return nil, fmt.Errorf("seeking to offset %d: %w", first, err)
	}
	logger := slog.Default().With("component", "kafka-reader", "topic", topic, "partition", partition)
	logger.Info("partition reader opened", "first_offset", first, "end_offset", last)
	return &PartitionReader{
		reader: r,
		logger: logger,
		next:   first,
		end:    last,
		idle:   tailIdleTimeout,
	}, nil
}

// Next returns the value of the next message, or io.EOF once the recorded
// high-water mark is reached. A message at or past the mark, or no message
// within the idle timeout, also ends the stream.
func (p *PartitionReader) Next(ctx context.Context) (offset int64, value []byte, err error) {
	if p.next >= p.end {
		return 0, nil, io.EOF
	}
	readCtx, cancel := context.WithTimeout(ctx, p.idle)
	defer cancel()
	msg, err := p.reader.ReadMessage(readCtx)
	if err != nil {
		if idledOut(ctx, err) {
			p.logger.Info("no message before end offset, ending stream",
				"next_offset", p.next,
				"end_offset", p.end,
				"idle", p.idle,
			)
			p.next = p.end
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("reading message at offset %d: %w", p.next, err)
	}
	if msg.Offset >= p.end {
		p.next = p.end
		return 0, nil, io.EOF
	}
	p.next = msg.Offset + 1
	p.logger.Debug("message received",
		"offset", msg.Offset,
		"key", string(msg.Key),
		"value_size", len(msg.Value),
	)
	return msg.Offset, msg.Value, nil
}

// idledOut reports whether err is the read deadline expiring while the
// caller's context is still live.
func idledOut(parent context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil
}

// Close closes the underlying Kafka reader.
func (p *PartitionReader) Close() error {
	return p.reader.Close()
}

// Ping dials the first reachable broker and reads cluster metadata.
func Ping(ctx context.Context, brokers []string) error {
	var lastErr error
	for _, b := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.Brokers()
		conn.Close()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return fmt.Errorf("no kafka brokers configured")
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
