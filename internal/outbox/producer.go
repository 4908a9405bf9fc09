package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// KafkaProducer keeps one synchronous writer per topic. Messages are hashed on their key,
// which the dispatcher sets to the user id, so a user's activity stays ordered within a
// partition.
type KafkaProducer struct {
	brokers      []string
	batchTimeout time.Duration
	logger       logrus.FieldLogger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// ProducerOption configures a KafkaProducer.
type ProducerOption func(*KafkaProducer)

// WithBatchTimeout bounds how long a writer waits to fill a batch.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(p *KafkaProducer) {
		if d > 0 {
			p.batchTimeout = d
		}
	}
}

// WithProducerLogger routes kafka-go errors to logger.
func WithProducerLogger(logger logrus.FieldLogger) ProducerOption {
	return func(p *KafkaProducer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string, opts ...ProducerOption) *KafkaProducer {
	p := &KafkaProducer{
		brokers:      brokers,
		batchTimeout: 50 * time.Millisecond,
		logger:       logrus.StandardLogger(),
		writers:      make(map[string]*kafka.Writer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WriteMessages writes msgs to topic and blocks until every broker replica acknowledged.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	start := time.Now()
	err := p.writer(topic).WriteMessages(ctx, msgs...)
	writeDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	return err
}

func (p *KafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           p.batchTimeout,
		AllowAutoTopicCreation: true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			p.logger.WithField("topic", topic).Errorf(msg, args...)
		}),
	}
	p.writers[topic] = w
	return w
}

// Close flushes and releases all writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}
