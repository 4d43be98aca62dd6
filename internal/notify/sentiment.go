package notify

import (
	"context"

	"go.uber.org/zap"
)

// SentimentRequest asks the classifier to score one comment.
type SentimentRequest struct {
	CommentID string `json:"comment_id"`
	TicketID  string `json:"ticket_id"`
}

// SentimentAnalyzer is the sentiment-analysis collaborator.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, req SentimentRequest) error
}

// BrokerSentimentAnalyzer forwards requests to the classifier's topic.
type BrokerSentimentAnalyzer struct {
	producer JSONProducer
}

// NewBrokerSentimentAnalyzer builds an analyzer backed by producer.
func NewBrokerSentimentAnalyzer(producer JSONProducer) *BrokerSentimentAnalyzer {
	return &BrokerSentimentAnalyzer{producer: producer}
}

// Analyze publishes req keyed by comment id.
func (a *BrokerSentimentAnalyzer) Analyze(ctx context.Context, req SentimentRequest) error {
	return a.producer.ProduceJSON(ctx, req.CommentID, req)
}

// LogSentimentAnalyzer only logs requests.
type LogSentimentAnalyzer struct {
	logger *zap.Logger
}

// NewLogSentimentAnalyzer builds a log-only analyzer.
func NewLogSentimentAnalyzer(logger *zap.Logger) *LogSentimentAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSentimentAnalyzer{logger: logger}
}

// Analyze logs req at debug level.
func (a *LogSentimentAnalyzer) Analyze(_ context.Context, req SentimentRequest) error {
	a.logger.Debug("sentiment analysis requested",
		zap.String("comment_id", req.CommentID),
		zap.String("ticket_id", req.TicketID))
	return nil
}
