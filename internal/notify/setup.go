package notify

import (
	"go.uber.org/zap"

	"github.com/ticketsla/sla-engine/internal/config"
)

// NewAlertPublisherFromConfig returns a Kafka-backed, breaker-guarded publisher when
// brokers are configured and a log-only publisher otherwise. The returned close
// func flushes the underlying producer.
func NewAlertPublisherFromConfig(cfg config.KafkaConfig, logger *zap.Logger) (AlertPublisher, func() error, error) {
	if len(cfg.Brokers) == 0 {
		logger.Info("no kafka brokers configured; escalation alerts are logged only")
		return NewLogAlertPublisher(logger), noopClose, nil
	}
	producer, err := NewKafkaProducer(KafkaProducerConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.AlertTopic,
		MaxAttempts: cfg.MaxAttempts,
	})
	if err != nil {
		return nil, nil, err
	}
	return NewBrokerAlertPublisher(producer, DefaultBreakerSettings(), logger), producer.Close, nil
}

// NewSentimentAnalyzerFromConfig mirrors NewAlertPublisherFromConfig for the sentiment topic.
func NewSentimentAnalyzerFromConfig(cfg config.KafkaConfig, logger *zap.Logger) (SentimentAnalyzer, func() error, error) {
	if len(cfg.Brokers) == 0 {
		return NewLogSentimentAnalyzer(logger), noopClose, nil
	}
	producer, err := NewKafkaProducer(KafkaProducerConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.SentimentTopic,
		MaxAttempts: cfg.MaxAttempts,
	})
	if err != nil {
		return nil, nil, err
	}
	return NewBrokerSentimentAnalyzer(producer), producer.Close, nil
}

func noopClose() error { return nil }
