package stream

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/relaydesk/backend/internal/types"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Publisher streams routing log entries to Kafka for downstream audit
// consumers. Publishing is fire-and-forget from the routing loop's point
// of view; entries are handed to a background goroutine through a bounded
// buffer so a slow broker never stalls an assignment.
type Publisher struct {
	writer  *kafka.Writer
	entries chan types.RoutingLogEntry
	done    chan struct{}
	logger  zerolog.Logger
}

// Config holds Kafka stream configuration
type Config struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// LoadConfig loads stream config from environment
func LoadConfig() Config {
	brokers := os.Getenv("KAFKA_BROKERS")
	return Config{
		Brokers: strings.Split(brokers, ","),
		Topic:   envOr("KAFKA_ROUTING_LOG_TOPIC", "routing-log"),
		Enabled: brokers != "",
	}
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// NewPublisher creates a Kafka publisher and starts its background sender
func NewPublisher(ctx context.Context, cfg Config, logger zerolog.Logger) *Publisher {
	p := &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		entries: make(chan types.RoutingLogEntry, 256),
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "stream").Logger(),
	}
	go p.run(ctx)
	return p
}

// Publish hands an entry to the background sender. Drops with an error log
// when the buffer is full rather than blocking the routing loop.
func (p *Publisher) Publish(entry types.RoutingLogEntry) {
	select {
	case p.entries <- entry:
	default:
		p.logger.Error().Str("entry_id", entry.EntryID).Msg("routing log stream buffer full, entry dropped")
	}
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case entry := <-p.entries:
			p.send(ctx, entry)
		}
	}
}

// flush drains whatever is still buffered at shutdown
func (p *Publisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case entry := <-p.entries:
			p.send(ctx, entry)
		default:
			return
		}
	}
}

func (p *Publisher) send(ctx context.Context, entry types.RoutingLogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		p.logger.Error().Err(err).Str("entry_id", entry.EntryID).Msg("failed to marshal routing entry")
		return
	}

	msg := kafka.Message{
		// Key by conversation so all decisions for one conversation land
		// in the same partition, in order
		Key:   []byte(entry.ConversationID),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().Err(err).Str("entry_id", entry.EntryID).Msg("failed to publish routing entry")
		return
	}
	p.logger.Debug().Str("entry_id", entry.EntryID).Msg("routing entry published")
}

// Close waits for the sender to stop and closes the writer
func (p *Publisher) Close() error {
	<-p.done
	return p.writer.Close()
}

// NoopPublisher is used when Kafka is not configured
type NoopPublisher struct{}

func (NoopPublisher) Publish(_ types.RoutingLogEntry) {}
func (NoopPublisher) Close() error                    { return nil }
