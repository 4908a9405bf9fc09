// Package outbox delivers ledger activity events from the outbox table to Kafka.
package outbox

import (
	"cmp"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/PKL-SST-2025/be-tabungin/internal/events"
)

// Kafka record headers set on every delivered event.
const (
	HeaderEventType     = "event_type"
	HeaderUserID        = "user_id"
	HeaderSchemaSubject = "schema_subject"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Dispatcher drains the outbox table and delivers events to Kafka using Schema Registry metadata.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	registry         schemaRegistrar
	dlq              *DLQWriter
	logger           logrus.FieldLogger
	pollInterval     time.Duration
	batchSize        int
	claimLease       time.Duration
	schemaIDCache    sync.Map
	shutdownComplete chan struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger overrides the dispatcher logger.
func WithDispatcherLogger(logger logrus.FieldLogger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClaimLease sets how long a claimed but unpublished event stays invisible to other
// dispatchers.
func WithClaimLease(lease time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if lease > 0 {
			d.claimLease = lease
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int, opts ...DispatcherOption) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	d := &Dispatcher{
		pool:             pool,
		producer:         producer,
		registry:         registry,
		dlq:              NewDLQWriter(pool),
		logger:           logrus.StandardLogger(),
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		claimLease:       time.Minute,
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the polling loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.WithError(err).Error("outbox dispatcher error")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.fetchAndClaim(ctx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer batchDuration.Observe(time.Since(start).Seconds())

	if err := d.deliver(ctx, messages); err != nil {
		d.logger.WithError(err).WithField("batch_size", len(messages)).Warn("outbox delivery failed, routing batch to dlq")
		failedCounter.Add(float64(len(messages)))
		if dlqErr := d.moveToDLQ(ctx, messages, err.Error()); dlqErr != nil {
			return dlqErr
		}
		return d.markPublished(ctx, messages)
	}

	deliveredCounter.Add(float64(len(messages)))
	return d.markPublished(ctx, messages)
}

// fetchAndClaim leases up to batchSize unpublished events. Rows claimed by another
// dispatcher are skipped until their lease expires.
func (d *Dispatcher) fetchAndClaim(ctx context.Context) ([]Message, error) {
	rows, err := d.pool.Query(ctx, `WITH due AS (
            SELECT event_id FROM outbox
             WHERE published_at IS NULL
               AND (claimed_at IS NULL OR claimed_at < NOW() - $2::interval)
             ORDER BY event_id
             LIMIT $1
             FOR UPDATE SKIP LOCKED
        )
        UPDATE outbox o SET claimed_at = NOW()
          FROM due
         WHERE o.event_id = due.event_id
        RETURNING o.event_id, o.user_id::text AS user_id, o.aggregate_type, o.aggregate_id, o.event_type,
                  o.topic, o.schema_subject, o.partition_key, o.payload`,
		d.batchSize, d.claimLease)
	if err != nil {
		return nil, err
	}
	messages, err := pgx.CollectRows(rows, pgx.RowToStructByName[Message])
	if err != nil {
		return nil, err
	}
	slices.SortFunc(messages, func(a, b Message) int { return cmp.Compare(a.EventID, b.EventID) })
	return messages, nil
}

func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	batches := make(map[string][]kafka.Message)

	for _, msg := range messages {
		record, err := d.encode(ctx, msg)
		if err != nil {
			return err
		}
		batches[msg.Topic] = append(batches[msg.Topic], record)
	}

	for topic, batch := range batches {
		if err := d.producer.WriteMessages(ctx, topic, batch...); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) encode(ctx context.Context, msg Message) (kafka.Message, error) {
	meta, ok := schemaCatalog[msg.EventType]
	if !ok {
		return kafka.Message{}, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}

	schemaID, err := d.schemaID(ctx, msg.SchemaSubject, meta.Schema)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: encodeWireFormat(schemaID, msg.Payload),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(msg.EventType)},
			{Key: HeaderUserID, Value: []byte(msg.UserID)},
			{Key: HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
		},
	}, nil
}

func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	cacheKey := subject + "::" + schema
	if cached, found := d.schemaIDCache.Load(cacheKey); found {
		return cached.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

func (d *Dispatcher) markPublished(ctx context.Context, messages []Message) error {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
	return err
}

func (d *Dispatcher) moveToDLQ(ctx context.Context, messages []Message, reason string) error {
	if err := d.dlq.WriteBatch(ctx, messages, reason); err != nil {
		return err
	}
	for _, msg := range messages {
		dlqCounter.WithLabelValues(msg.Topic).Inc()
	}
	return nil
}

// Message represents a row fetched from outbox.
type Message struct {
	EventID       int64           `db:"event_id"`
	UserID        string          `db:"user_id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Topic         string          `db:"topic"`
	SchemaSubject string          `db:"schema_subject"`
	PartitionKey  string          `db:"partition_key"`
	Payload       json.RawMessage `db:"payload"`
}

// encodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.EventTypeActivityRecorded: {
		Schema: activityRecordedSchema,
	},
}
