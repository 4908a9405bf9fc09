package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testTopic = "savings_activity_events"

func framed(schemaID int, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	value[0] = 0
	binary.BigEndian.PutUint32(value[1:5], uint32(schemaID))
	copy(value[5:], payload)
	return value
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := []byte(`{"activity_id":"abc","user_id":"user-1"}`)
	msg := kafka.Message{
		Topic:     testTopic,
		Partition: 0,
		Offset:    10,
		Time:      time.Now().UTC(),
		Value:     framed(42, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("savings.activity_recorded")},
			{Key: "user_id", Value: []byte("user-1")},
			{Key: "schema_subject", Value: []byte("savings_activity_events-value")},
		},
	}

	reader := &stubReader{messages: []kafka.Message{msg}, after: contextCanceled}
	handler := &stubHandler{}

	before := testutil.ToFloat64(messagesTotal.WithLabelValues(testTopic, "savings.activity_recorded", outcomeProcessed))

	processor := NewProcessor(reader, handler, WithLogger(quietLogger()))
	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "savings.activity_recorded", handler.last.EventType)
	require.Equal(t, "user-1", handler.last.UserID)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))

	after := testutil.ToFloat64(messagesTotal.WithLabelValues(testTopic, "savings.activity_recorded", outcomeProcessed))
	require.InDelta(t, before+1, after, 0.0001)
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := kafka.Message{
		Topic:  testTopic,
		Offset: 20,
		Time:   time.Now().UTC(),
		Value:  framed(99, []byte(`{"activity_id":"def"}`)),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("savings.activity_recorded")},
			{Key: "user_id", Value: []byte("user-2")},
		},
	}

	reader := &stubReader{messages: []kafka.Message{msg}, after: contextCanceled}
	handler := &stubHandler{err: errors.New("boom")}

	processor := NewProcessor(reader, handler, WithLogger(quietLogger()))
	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	missingHeader := kafka.Message{Topic: testTopic, Offset: 1, Value: framed(1, []byte(`{}`))}
	short := kafka.Message{Topic: testTopic, Offset: 2, Value: []byte{0, 1}}
	badJSON := kafka.Message{
		Topic:   testTopic,
		Offset:  3,
		Value:   framed(1, []byte(`{not json`)),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte("savings.activity_recorded")}},
	}

	before := testutil.ToFloat64(decodeErrorCounter.WithLabelValues(testTopic))

	reader := &stubReader{messages: []kafka.Message{missingHeader, short, badJSON}, after: contextCanceled}
	handler := &stubHandler{}
	processor := NewProcessor(reader, handler, WithLogger(quietLogger()))
	require.ErrorIs(t, processor.Run(ctx), context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, 3, reader.commitCalls)
	require.InDelta(t, before+3, testutil.ToFloat64(decodeErrorCounter.WithLabelValues(testTopic)), 0.0001)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}

type flakyHandler struct {
	failures int
	calls    int
}

func (h *flakyHandler) Handle(context.Context, Message) error {
	h.calls++
	if h.calls <= h.failures {
		return errors.New("database busy")
	}
	return nil
}

func TestProcessorRetriesHandler(t *testing.T) {
	msg := kafka.Message{
		Topic:   testTopic,
		Offset:  30,
		Value:   framed(1, []byte(`{"activity_id":"ghi"}`)),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte("savings.activity_recorded")}},
	}
	reader := &stubReader{messages: []kafka.Message{msg}, after: contextCanceled}
	handler := &flakyHandler{failures: 2}

	processor := NewProcessor(reader, handler, WithLogger(quietLogger()), WithHandlerAttempts(3, 0))
	require.ErrorIs(t, processor.Run(context.Background()), context.Canceled)

	require.Equal(t, 3, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
}

func TestDecodeMessageWrapsMalformed(t *testing.T) {
	_, err := decodeMessage(kafka.Message{Value: []byte{1, 0, 0, 0, 1, '{', '}'}})
	require.ErrorIs(t, err, ErrMalformed)
	require.ErrorContains(t, err, "magic byte 1")
}
