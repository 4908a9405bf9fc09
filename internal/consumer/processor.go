// Package consumer reads ledger activity events back from Kafka for downstream processing.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a Kafka record emitted by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	UserID        string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// ErrMalformed marks records that can never be handled and are committed past.
var ErrMalformed = errors.New("malformed record")

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHandlerAttempts retries a failing handler up to attempts times, sleeping backoff
// between tries. A record whose handler never succeeds is left uncommitted.
func WithHandlerAttempts(attempts int, backoff time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		p.backoff = backoff
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader   Reader
	handler  Handler
	logger   logrus.FieldLogger
	attempts int
	backoff  time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:   reader,
		handler:  handler,
		logger:   logrus.StandardLogger().WithField("component", "consumer"),
		attempts: 1,
		backoff:  time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run fetches and handles records until ctx is cancelled or the reader reports
// cancellation. Fetch errors are logged and retried after a short pause.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := p.reader.FetchMessage(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			p.logger.WithError(err).Warn("kafka fetch failed")
			if !sleep(ctx, p.backoff) {
				return ctx.Err()
			}
			continue
		}
		p.process(ctx, record)
	}
}

func (p *Processor) process(ctx context.Context, record kafka.Message) {
	log := p.logger.WithFields(logrus.Fields{
		"topic":     record.Topic,
		"partition": record.Partition,
		"offset":    record.Offset,
	})

	msg, err := decodeMessage(record)
	if err != nil {
		recordDecodeError(record.Topic)
		log.WithError(err).Warn("skipping undecodable record")
		p.commit(ctx, log, record)
		return
	}
	log = log.WithFields(logrus.Fields{"event_type": msg.EventType, "user_id": msg.UserID})

	for attempt := 1; ; attempt++ {
		err = p.handler.Handle(ctx, msg)
		if err == nil {
			break
		}
		recordHandlerError(msg)
		if attempt >= p.attempts {
			log.WithError(err).WithField("attempts", attempt).Error("handler failed; record left uncommitted")
			return
		}
		log.WithError(err).WithField("attempt", attempt).Warn("handler failed; retrying")
		if !sleep(ctx, p.backoff) {
			return
		}
	}

	if p.commit(ctx, log, record) {
		recordProcessed(msg)
	}
}

func (p *Processor) commit(ctx context.Context, log logrus.FieldLogger, record kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, record); err != nil {
		log.WithError(err).Error("offset commit failed")
		return false
	}
	return true
}

// decodeMessage strips the Confluent frame (magic byte, 4-byte schema id) and reads the
// routing headers written by the outbox dispatcher.
func decodeMessage(record kafka.Message) (Message, error) {
	if len(record.Value) < 5 {
		return Message{}, fmt.Errorf("%w: frame of %d bytes", ErrMalformed, len(record.Value))
	}
	if magic := record.Value[0]; magic != 0 {
		return Message{}, fmt.Errorf("%w: magic byte %d", ErrMalformed, magic)
	}

	headers := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType := headers["event_type"]
	if eventType == "" {
		return Message{}, fmt.Errorf("%w: missing event_type header", ErrMalformed)
	}

	payload := json.RawMessage(append([]byte(nil), record.Value[5:]...))
	if !json.Valid(payload) {
		return Message{}, fmt.Errorf("%w: payload is not json", ErrMalformed)
	}

	return Message{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Timestamp:     record.Time,
		EventType:     eventType,
		UserID:        headers["user_id"],
		SchemaSubject: headers["schema_subject"],
		SchemaID:      int(binary.BigEndian.Uint32(record.Value[1:5])),
		Payload:       payload,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
