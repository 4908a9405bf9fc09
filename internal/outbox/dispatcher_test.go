package outbox

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/PKL-SST-2025/be-tabungin/internal/events"
)

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(258, []byte(`{"a":1}`))
	require.Equal(t, byte(0), frame[0])
	require.Equal(t, uint32(258), binary.BigEndian.Uint32(frame[1:5]))
	require.Equal(t, `{"a":1}`, string(frame[5:]))
}

func TestDispatcherEncodeSetsHeadersAndCachesSchema(t *testing.T) {
	registry := &stubRegistry{id: 11}
	d := &Dispatcher{registry: registry}

	msg := Message{
		EventID:       1,
		UserID:        "user-1",
		EventType:     events.EventTypeActivityRecorded,
		Topic:         "savings_activity_events",
		SchemaSubject: "savings_activity_events-value",
		PartitionKey:  "user-1",
		Payload:       []byte(`{}`),
	}

	record, err := d.encode(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, []byte("user-1"), record.Key)

	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, events.EventTypeActivityRecorded, headers[HeaderEventType])
	require.Equal(t, "user-1", headers[HeaderUserID])
	require.Equal(t, "savings_activity_events-value", headers[HeaderSchemaSubject])

	_, err = d.encode(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, registry.calls, 1)
}

func TestDispatcherEncodeRejectsUnknownEvent(t *testing.T) {
	d := &Dispatcher{registry: &stubRegistry{id: 1}}
	_, err := d.encode(context.Background(), Message{EventType: "savings.unknown"})
	require.ErrorContains(t, err, "no schema metadata")
}

func TestDispatcherEncodePropagatesRegistryError(t *testing.T) {
	d := &Dispatcher{registry: &stubRegistry{err: errors.New("registry down")}}
	_, err := d.encode(context.Background(), Message{EventType: events.EventTypeActivityRecorded})
	require.ErrorContains(t, err, "registry down")
}

func TestRetryBackoff(t *testing.T) {
	require.Equal(t, time.Second, retryBackoff(time.Second, 0))
	require.Equal(t, time.Second, retryBackoff(time.Second, 1))
	require.Equal(t, 4*time.Second, retryBackoff(time.Second, 3))
	require.Equal(t, time.Hour, retryBackoff(time.Minute, 8))
	require.Equal(t, time.Hour, retryBackoff(time.Second, 40))
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}
