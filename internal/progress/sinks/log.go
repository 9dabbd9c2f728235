// Package sinks provides progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/harvestkit/harvestkit/internal/progress"
)

// LogSink emits structured logs for the progress stream. Useful during
// development or when no metrics backend is available.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("domain", evt.Domain),
			zap.String("url", evt.URL),
			zap.Duration("dur", evt.Dur),
		}
		switch evt.Stage {
		case progress.StagePageFetch:
			fields = append(fields, zap.String("status_class", string(evt.StatusClass)))
		case progress.StagePageAccept:
			fields = append(fields, zap.Float64("quality", evt.Quality))
		case progress.StagePageReject:
			fields = append(fields,
				zap.String("reason", evt.Reason),
				zap.Float64("quality", evt.Quality))
		case progress.StageDomainDone:
			fields = append(fields, zap.Int64("pages", evt.Pages))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
