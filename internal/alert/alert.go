// Package alert delivers URL health alerts raised by the health monitor.
package alert

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/metrics"
)

// DefaultTopic is the Pub/Sub topic alerts are published to.
const DefaultTopic = "regcrawler-url-health"

// Publisher publishes a JSON payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// LogAlerter writes alerts as distinct warn-level log events.
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter builds a LogAlerter.
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAlerter{logger: logger.Named("alert")}
}

// Alert implements crawler.Alerter.
func (a *LogAlerter) Alert(_ context.Context, al crawler.HealthAlert) error {
	metrics.ObserveHealthAlert(al.URL)
	a.logger.Warn("url health alert",
		zap.String("source_id", al.SourceID),
		zap.String("url", al.URL),
		zap.Int("failure_count", al.FailureCount),
		zap.Int("status_code", al.StatusCode),
		zap.String("strategy", string(al.Strategy)),
		zap.String("last_error", al.LastError),
		zap.Time("raised_at", al.RaisedAt),
	)
	return nil
}

// PublishAlerter publishes alerts through a Publisher.
type PublishAlerter struct {
	pub   Publisher
	topic string
}

// NewPublishAlerter builds a PublishAlerter; an empty topic uses DefaultTopic.
func NewPublishAlerter(pub Publisher, topic string) *PublishAlerter {
	if topic == "" {
		topic = DefaultTopic
	}
	return &PublishAlerter{pub: pub, topic: topic}
}

// Alert implements crawler.Alerter.
func (a *PublishAlerter) Alert(ctx context.Context, al crawler.HealthAlert) error {
	if _, err := a.pub.Publish(ctx, a.topic, al); err != nil {
		return fmt.Errorf("publish alert for %s: %w", al.URL, err)
	}
	return nil
}

// Multi fans an alert out to every alerter and joins their errors.
type Multi []crawler.Alerter

// Alert implements crawler.Alerter.
func (m Multi) Alert(ctx context.Context, al crawler.HealthAlert) error {
	var errs []error
	for _, a := range m {
		if err := a.Alert(ctx, al); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
