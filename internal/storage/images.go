// Package storage moves photo messages from LINE into the image bucket.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/linephoto/core/line/gateway"
	"github.com/m3rciful/linephoto/core/logger"
	"github.com/m3rciful/linephoto/internal/metrics"
)

// ContentSource downloads message attachments.
type ContentSource interface {
	FetchContent(ctx context.Context, messageID string) (*gateway.Content, error)
}

// Blobs is the object store the images land in.
type Blobs interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Image is a stored photo.
type Image struct {
	Path string
	URL  string
}

// Images uploads photo messages and hands out signed links to them.
type Images struct {
	content ContentSource
	blobs   Blobs
	ttl     time.Duration
}

// NewImages builds Images whose links stay valid for ttl.
func NewImages(content ContentSource, blobs Blobs, ttl time.Duration) *Images {
	return &Images{content: content, blobs: blobs, ttl: ttl}
}

// ObjectPath is where the image of messageID sent by lineUserID is stored.
func ObjectPath(lineUserID, messageID, ext string) string {
	return lineUserID + "/" + messageID + "." + ext
}

// Upload fetches the content of messageID and stores it under the user's
// prefix, replacing an earlier upload of the same message.
func (i *Images) Upload(ctx context.Context, lineUserID, messageID string) (Image, error) {
	start := time.Now()
	img, size, err := i.upload(ctx, lineUserID, messageID)
	took := time.Since(start)

	if err != nil {
		metrics.UploadDuration.WithLabelValues("fail").Observe(took.Seconds())
		logger.LogEvent(ctx, logger.SVCStorage, slog.LevelError, "image.upload",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return Image{}, err
	}
	metrics.UploadDuration.WithLabelValues("ok").Observe(took.Seconds())
	logger.LogEvent(ctx, logger.SVCStorage, slog.LevelInfo, "image.upload",
		slog.String("status", "ok"),
		slog.String("path", img.Path),
		slog.Int("bytes", size),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return img, nil
}

func (i *Images) upload(ctx context.Context, lineUserID, messageID string) (Image, int, error) {
	content, err := i.content.FetchContent(ctx, messageID)
	if err != nil {
		return Image{}, 0, fmt.Errorf("image fetch: %w", err)
	}
	path := ObjectPath(lineUserID, messageID, content.Extension())
	if err := i.blobs.Put(ctx, path, content.Data, content.ContentType); err != nil {
		return Image{}, 0, fmt.Errorf("image store: %w", err)
	}
	url, err := i.blobs.SignedURL(ctx, path, i.ttl)
	if err != nil {
		return Image{}, 0, fmt.Errorf("image sign: %w", err)
	}
	return Image{Path: path, URL: url}, len(content.Data), nil
}
