package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/tik-regcrawler/internal/progress"
)

// LogSink writes one structured log line per event. Fetch events carry the
// URL, status, strategy, latency and error text.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("source_id", evt.SourceID),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageFetchDone:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.String("strategy", evt.Strategy),
				zap.String("status", evt.FetchStatus),
				zap.Int("status_code", evt.StatusCode),
				zap.Int64("bytes", evt.Bytes),
				zap.Duration("latency", evt.Dur),
			)
		case progress.StageDocument:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.String("outcome", evt.Outcome),
				zap.Int("score", evt.Score),
			)
		default:
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageRunError {
			s.logger.Error("run event", fields...)
			continue
		}
		s.logger.Info("run event", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
