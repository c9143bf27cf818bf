package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{}, logging.NewNopLogger())
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestPublish_WritesEnvelopeWithHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := newProducerWithWriter(w, logging.NewNopLogger())

	env, err := NewEventEnvelope(EventTypeAnalysisCompleted, AnalysisCompletedPayload{
		AnalysisID: "a-1",
		SessionID:  "sess-1",
		RiskLevel:  patent.RiskMedium,
		RiskScore:  55,
	})
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), TopicAnalysisCompleted, []byte("sess-1"), env))

	msgs := w.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, TopicAnalysisCompleted, msgs[0].Topic)
	assert.Equal(t, "sess-1", string(msgs[0].Key))
	assert.Equal(t, EventTypeAnalysisCompleted, headerValue(msgs[0], "event_type"))
	assert.Equal(t, "v1", headerValue(msgs[0], "schema_version"))

	decoded, err := envelopeFromValue(msgs[0].Value)
	require.NoError(t, err)
	var payload AnalysisCompletedPayload
	require.NoError(t, decoded.DecodePayload(&payload))
	assert.Equal(t, patent.RiskMedium, payload.RiskLevel)
	assert.Equal(t, 55, payload.RiskScore)
}

func TestPublishPatentDocument_KeyedByPublicationNumber(t *testing.T) {
	w := &fakeWriter{}
	p := newProducerWithWriter(w, logging.NewNopLogger())

	err := p.PublishPatentDocument(context.Background(), PatentDocumentPayload{
		Document: patent.Document{
			PublicationNumber: "KR-102345678-B1",
			Title:             "접이식 디스플레이 장치",
		},
		Source:     "kipris",
		IngestedAt: time.Now(),
	})
	require.NoError(t, err)

	msgs := w.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, TopicPatentDocuments, msgs[0].Topic)
	assert.Equal(t, "KR-102345678-B1", string(msgs[0].Key))
	assert.Equal(t, EventTypePatentDocument, headerValue(msgs[0], "event_type"))
}

func TestPublish_WriteFailureWrapped(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unreachable")}
	p := newProducerWithWriter(w, logging.NewNopLogger())

	env, err := NewEventEnvelope(EventTypeAnalysisCompleted, AnalysisCompletedPayload{SessionID: "s"})
	require.NoError(t, err)

	err = p.Publish(context.Background(), TopicAnalysisCompleted, nil, env)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMessageQueueError, apperrors.GetCode(err))
}

func TestPublish_AfterClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducerWithWriter(w, logging.NewNopLogger())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)

	env, err := NewEventEnvelope(EventTypeAnalysisCompleted, AnalysisCompletedPayload{})
	require.NoError(t, err)
	assert.ErrorIs(t, p.Publish(context.Background(), TopicAnalysisCompleted, nil, env), ErrProducerClosed)
}

func TestPublish_Validation(t *testing.T) {
	p := newProducerWithWriter(&fakeWriter{}, logging.NewNopLogger())

	env, err := NewEventEnvelope(EventTypeAnalysisCompleted, AnalysisCompletedPayload{})
	require.NoError(t, err)

	assert.True(t, apperrors.IsValidation(p.Publish(context.Background(), "", nil, env)))
	assert.True(t, apperrors.IsValidation(p.Publish(context.Background(), TopicAnalysisCompleted, nil, nil)))
}
