package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/m3rciful/linephoto/core/line/netutil"
)

// MaxContentBytes caps a single downloaded message content.
const MaxContentBytes = 20 << 20

// DefaultContentType is assumed when LINE omits Content-Type.
const DefaultContentType = "image/jpeg"

var (
	// ErrNoContent means LINE no longer has the content, or it was empty.
	ErrNoContent = errors.New("gateway: no content")
	// ErrTooLarge means the content exceeded MaxContentBytes.
	ErrTooLarge = errors.New("gateway: content too large")
)

// Content is a downloaded message attachment.
type Content struct {
	Data        []byte
	ContentType string
}

// Extension returns the file extension for the content, the mime subtype or "jpg".
func (c Content) Extension() string {
	mediaType, _, err := mime.ParseMediaType(c.ContentType)
	if err != nil {
		mediaType = c.ContentType
	}
	_, sub, ok := strings.Cut(mediaType, "/")
	sub = strings.TrimSpace(sub)
	if !ok || sub == "" {
		return "jpg"
	}
	return sub
}

// FetchContent downloads the binary of an image/video/audio message.
func (c *Client) FetchContent(ctx context.Context, messageID string) (*Content, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, fmt.Errorf("gateway: content: empty message id")
	}
	raw, resp, err := c.scopedBlob(ctx).GetMessageContentWithHttpInfo(messageID)
	if err != nil {
		// The SDK hands back the raw response with the error on non-2xx.
		if raw == nil {
			return nil, fmt.Errorf("gateway: content: %w", err)
		}
		_ = raw.Body.Close()
		if raw.StatusCode == http.StatusNotFound {
			return nil, ErrNoContent
		}
		return nil, fmt.Errorf("gateway: content: %w", &netutil.StatusError{Code: raw.StatusCode, Op: "content"})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxContentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("gateway: content read: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoContent
	}
	if len(data) > MaxContentBytes {
		return nil, ErrTooLarge
	}

	ct := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if ct == "" {
		ct = DefaultContentType
	}
	return &Content{Data: data, ContentType: ct}, nil
}
