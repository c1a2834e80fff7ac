// Package events delivers asynchronous notifications about catalog changes.
package events

import (
	"context"
	"log/slog"
	"time"
)

// VideoUploaded announces a newly stored video so out-of-band workers can
// derive thumbnails or other renditions.
type VideoUploaded struct {
	VideoID     string    `json:"video_id"`
	Key         string    `json:"key"`
	OwnerID     string    `json:"owner_id"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Sink publishes upload events to a downstream system.
type Sink interface {
	Publish(ctx context.Context, event VideoUploaded) error
}

// LogSink writes events to the log. It stands in for a queue in development.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(_ context.Context, event VideoUploaded) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("video uploaded",
		slog.String("video_id", event.VideoID),
		slog.String("key", event.Key),
		slog.String("owner_id", event.OwnerID),
		slog.Int64("size_bytes", event.SizeBytes),
	)
	return nil
}
