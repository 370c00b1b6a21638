// Package intake talks to the remote intake endpoint: one multipart POST per
// submitted form.
package intake

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/qmmcmx/problemtrack/internal/errors"
	"github.com/qmmcmx/problemtrack/internal/logging"
	"github.com/qmmcmx/problemtrack/internal/staging"
)

// Receipt describes an accepted submission.
type Receipt struct {
	Status   int           `json:"status"`
	Duration time.Duration `json:"duration"`
}

// Client posts form submissions to the intake URL.
type Client struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a Client. A zero timeout means no client-side limit.
func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logging.OrNop(logger),
	}
}

// URL returns the configured intake URL.
func (c *Client) URL() string {
	return c.url
}

// Send encodes snapshot and files and POSTs them once. Any transport error or
// non-2xx answer is an INTAKE_FAILED error. The response body is discarded.
func (c *Client) Send(ctx context.Context, snapshot Snapshot, files []staging.File) (*Receipt, error) {
	if c.url == "" {
		return nil, errors.NewIntakeNotConfigured()
	}

	payload, err := BuildPayload(snapshot, files)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, payload.Body)
	if err != nil {
		return nil, errors.NewInvalidRequest("invalid intake_url: " + err.Error())
	}
	req.Header.Set("Content-Type", payload.ContentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("intake request failed", zap.Error(err))
		return nil, errors.NewIntakeFailed(0, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	elapsed := time.Since(start)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("intake rejected submission",
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))
		return nil, errors.NewIntakeFailed(resp.StatusCode, nil)
	}

	c.logger.Debug("intake accepted submission",
		zap.Int("status", resp.StatusCode),
		zap.Int("fields", payload.Fields),
		zap.Int("files", payload.Files),
		zap.Duration("elapsed", elapsed))

	return &Receipt{Status: resp.StatusCode, Duration: elapsed}, nil
}
