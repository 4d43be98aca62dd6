package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ticketsla/sla-engine/internal/config"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	messages []kafka.Message
	calls    int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testProducer(w messageWriter, attempts int) *KafkaProducer {
	p := newKafkaProducer(w, KafkaProducerConfig{Topic: "sla-alerts", MaxAttempts: attempts})
	p.backoff = time.Millisecond
	return p
}

func TestNewKafkaProducerRequiresBrokersAndTopic(t *testing.T) {
	_, err := NewKafkaProducer(KafkaProducerConfig{Topic: "x"})
	assert.Error(t, err)
	_, err = NewKafkaProducer(KafkaProducerConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

func TestProduceRetriesTransientFailures(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := testProducer(w, 3)

	require.NoError(t, p.ProduceJSON(context.Background(), "t1", map[string]string{"a": "b"}))
	assert.Equal(t, 3, w.calls)
	require.Len(t, w.messages, 1)
	assert.Equal(t, []byte("t1"), w.messages[0].Key)
}

func TestProduceGivesUpAfterMaxAttempts(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := testProducer(w, 2)

	err := p.Produce(context.Background(), nil, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, w.calls)
}

type fakeProducer struct {
	mu    sync.Mutex
	err   error
	keys  []string
	sent  []any
	calls int
}

func (p *fakeProducer) ProduceJSON(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.sent = append(p.sent, v)
	return nil
}

func TestBrokerAlertPublisherSendsAlertKeyedByTicket(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewBrokerAlertPublisher(producer, DefaultBreakerSettings(), nil)

	alert := Alert{TicketID: "t-9", OldPriority: "LOW", NewPriority: "MEDIUM", Escalated: true, Severity: "warning"}
	require.NoError(t, pub.PublishAlert(context.Background(), alert))

	require.Len(t, producer.sent, 1)
	assert.Equal(t, []string{"t-9"}, producer.keys)
	raw, err := json.Marshal(producer.sent[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"severity":"warning"`)
}

func TestBrokerAlertPublisherOpensCircuitAfterFailures(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	pub := NewBrokerAlertPublisher(producer, BreakerSettings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute}, nil)

	require.NoError(t, pub.Check(context.Background()))
	for i := 0; i < 3; i++ {
		err := pub.PublishAlert(context.Background(), Alert{TicketID: "t"})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrCircuitOpen))
	}

	err := pub.PublishAlert(context.Background(), Alert{TicketID: "t"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, producer.calls)
	assert.ErrorIs(t, pub.Check(context.Background()), ErrCircuitOpen)
}

func TestBrokerSentimentAnalyzerKeysByComment(t *testing.T) {
	producer := &fakeProducer{}
	analyzer := NewBrokerSentimentAnalyzer(producer)

	require.NoError(t, analyzer.Analyze(context.Background(), SentimentRequest{CommentID: "c1", TicketID: "t1"}))
	assert.Equal(t, []string{"c1"}, producer.keys)
}

func TestLogFallbacksNeverFail(t *testing.T) {
	assert.NoError(t, NewLogAlertPublisher(nil).PublishAlert(context.Background(), Alert{TicketID: "t"}))
	assert.NoError(t, NewLogSentimentAnalyzer(nil).Analyze(context.Background(), SentimentRequest{CommentID: "c"}))
}

func TestPublishersFromConfig(t *testing.T) {
	logger := zap.NewNop()

	alerts, closeAlerts, err := NewAlertPublisherFromConfig(config.KafkaConfig{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &LogAlertPublisher{}, alerts)
	assert.NoError(t, closeAlerts())

	analyzer, closeAnalyzer, err := NewSentimentAnalyzerFromConfig(config.KafkaConfig{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &LogSentimentAnalyzer{}, analyzer)
	assert.NoError(t, closeAnalyzer())

	kafkaCfg := config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, AlertTopic: "alerts", SentimentTopic: "sentiment"}
	alerts, closeAlerts, err = NewAlertPublisherFromConfig(kafkaCfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &BrokerAlertPublisher{}, alerts)
	assert.NoError(t, closeAlerts())

	analyzer, closeAnalyzer, err = NewSentimentAnalyzerFromConfig(kafkaCfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &BrokerSentimentAnalyzer{}, analyzer)
	assert.NoError(t, closeAnalyzer())

	_, _, err = NewAlertPublisherFromConfig(config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}}, logger)
	assert.Error(t, err)
}
