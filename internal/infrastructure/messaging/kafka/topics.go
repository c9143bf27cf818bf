package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

// Topics used by the analysis service and the ingestion worker.
const (
	// TopicPatentDocuments feeds the ingestion worker with patent documents
	// to embed and index.
	TopicPatentDocuments = "patent.documents"
	// TopicAnalysisCompleted announces finished prior-art analyses to
	// downstream consumers.
	TopicAnalysisCompleted = "analysis.completed"
	// TopicDeadLetterDocuments receives documents the worker could not
	// process after retries.
	TopicDeadLetterDocuments = "dead_letter.patent_documents"
)

// Event types carried inside envelopes.
const (
	EventTypePatentDocument    = "patent.document.v1"
	EventTypeAnalysisCompleted = "analysis.completed.v1"
)

const envelopeSource = "shortcut-intelligence"

// EventEnvelope is the wire format for every message on our topics.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// PatentDocumentPayload is one corpus document bound for the search indexes.
type PatentDocumentPayload struct {
	Document   patent.Document `json:"document"`
	Source     string          `json:"source"`
	IngestedAt time.Time       `json:"ingested_at"`
}

// AnalysisCompletedPayload summarizes a finished analysis.  The full report
// lives in Postgres and object storage; this event carries only pointers and
// the headline numbers.
type AnalysisCompletedPayload struct {
	AnalysisID      string           `json:"analysis_id"`
	SessionID       string           `json:"session_id"`
	RiskLevel       patent.RiskLevel `json:"risk_level"`
	RiskScore       int              `json:"risk_score"`
	SimilarCount    int              `json:"similar_count"`
	ReportObjectKey string           `json:"report_object_key,omitempty"`
	CompletedAt     time.Time        `json:"completed_at"`
}

// NewEventEnvelope wraps a payload in a versioned envelope.
func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "marshal event payload failed")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        envelopeSource,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the envelope payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 {
		return errors.New(errors.ErrCodeValidation, "event payload is empty")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "unmarshal event payload failed")
	}
	return nil
}

func envelopeFromValue(value []byte) (*EventEnvelope, error) {
	if len(value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "unmarshal event envelope failed")
	}
	return &env, nil
}

// TopicSpec describes one topic to provision.
type TopicSpec struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// DefaultTopics lists every topic this deployment needs.
func DefaultTopics() []TopicSpec {
	const day = int64(24 * 3600 * 1000)
	return []TopicSpec{
		{Name: TopicPatentDocuments, NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 7 * day},
		{Name: TopicAnalysisCompleted, NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 30 * day},
		{Name: TopicDeadLetterDocuments, NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 30 * day},
	}
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager provisions topics at startup.
type TopicManager struct {
	conn ConnInterface
	log  logging.Logger
}

func NewTopicManager(brokers []string, log logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessageQueueError, "dial kafka broker failed")
	}
	return &TopicManager{conn: conn, log: log.Named("kafka_topics")}, nil
}

func newTopicManagerWithConn(conn ConnInterface, log logging.Logger) *TopicManager {
	return &TopicManager{conn: conn, log: log.Named("kafka_topics")}
}

// EnsureTopic creates one topic, tolerating the already-exists case.
func (m *TopicManager) EnsureTopic(ctx context.Context, spec TopicSpec) error {
	if spec.Name == "" {
		return errors.New(errors.ErrCodeValidation, "topic name required")
	}
	if spec.NumPartitions <= 0 || spec.ReplicationFactor <= 0 {
		return errors.New(errors.ErrCodeValidation, "partitions and replication factor must be positive")
	}

	cfg := kafka.TopicConfig{
		Topic:             spec.Name,
		NumPartitions:     spec.NumPartitions,
		ReplicationFactor: spec.ReplicationFactor,
	}
	if spec.RetentionMs > 0 {
		cfg.ConfigEntries = append(cfg.ConfigEntries, kafka.ConfigEntry{
			ConfigName:  "retention.ms",
			ConfigValue: fmt.Sprintf("%d", spec.RetentionMs),
		})
	}

	if err := m.conn.CreateTopics(cfg); err != nil {
		if exists, _ := m.TopicExists(ctx, spec.Name); exists {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeMessageQueueError, "create topic failed")
	}
	m.log.Info("topic created", logging.String("topic", spec.Name))
	return nil
}

// EnsureDefaultTopics provisions every topic in DefaultTopics.
func (m *TopicManager) EnsureDefaultTopics(ctx context.Context) error {
	for _, spec := range DefaultTopics() {
		if err := m.EnsureTopic(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

// TopicExists reports whether the broker knows the topic.
func (m *TopicManager) TopicExists(ctx context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, nil
	}
	return len(partitions) > 0, nil
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}
