package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Topic names per audit category. Compliance events get their own topic so
// the long-retention consumer can subscribe independently.
const (
	TopicCompliance = "audit.compliance"
	TopicOperations = "audit.operations"
)

// Publisher relays committed audit_outbox rows to Kafka. It runs as a
// background loop: fetch a batch of unpublished rows, produce each keyed by
// event ID, mark them published. Kafka is the fan-out point for downstream
// audit consumers; the audit_entries table stays the queryable copy.
type Publisher struct {
	db       *sql.DB
	client   *kgo.Client
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewPublisher(db *sql.DB, brokers []string, logger *slog.Logger) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Publisher{
		db:       db,
		client:   client,
		logger:   logger,
		interval: time.Second,
		batch:    100,
	}, nil
}

// Run drains the outbox until the context is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.client.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.publishBatch(ctx); err != nil {
				p.logger.ErrorContext(ctx, "outbox publish batch failed", "error", err)
			}
		}
	}
}

type outboxRow struct {
	id       string
	eventID  string
	category string
	payload  []byte
}

func (p *Publisher) publishBatch(ctx context.Context) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, event_id, category, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, p.batch)
	if err != nil {
		return fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var pending []outboxRow
	for rows.Next() {
		var r outboxRow
		if err := rows.Scan(&r.id, &r.eventID, &r.category, &r.payload); err != nil {
			return fmt.Errorf("scan outbox row: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate outbox: %w", err)
	}

	var produced []string
	for _, r := range pending {
		topic := TopicOperations
		if r.category == string(CategoryCompliance) {
			topic = TopicCompliance
		}
		record := &kgo.Record{
			Topic: topic,
			Key:   []byte(r.eventID),
			Value: r.payload,
		}
		if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			// Mark what made it; the failed row and the rest retry next tick.
			if markErr := p.markPublished(ctx, produced); markErr != nil {
				return fmt.Errorf("mark outbox rows published: %w", markErr)
			}
			return fmt.Errorf("produce audit event %s: %w", r.eventID, err)
		}
		produced = append(produced, r.id)
	}
	return p.markPublished(ctx, produced)
}

func (p *Publisher) markPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE audit_outbox SET published_at = $1 WHERE id = ANY($2)`,
		time.Now(), pq.Array(ids),
	)
	return err
}
