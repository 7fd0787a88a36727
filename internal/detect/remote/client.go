// Package remote talks to an HTTP board-detection model.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/Cheese-boardpilot/internal/detect"
	"github.com/park285/Cheese-boardpilot/internal/obslog"
)

const (
	defaultInputSize  = 640
	defaultConfidence = 0.7
	jpegQuality       = 95
)

// HeaderProvider allows injecting per-request headers (API keys).
type HeaderProvider func() map[string]string

// Client posts letterboxed JPEG frames to a prediction endpoint.
type Client struct {
	endpoint string
	http     *fasthttp.Client
	headers  HeaderProvider
	logger   *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
	confidence     float64
	inputSize      int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithConfidence sets the minimum box confidence kept.
func WithConfidence(v float64) Option {
	return func(c *Client) {
		if v > 0 && v < 1 {
			c.confidence = v
		}
	}
}

// WithInputSize sets the square model input edge in pixels.
func WithInputSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.inputSize = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:       strings.TrimSpace(endpoint),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 4},
		logger:         obslog.Named("detector"),
		defaultTimeout: 8 * time.Second,
		retryMax:       3,
		confidence:     defaultConfidence,
		inputSize:      defaultInputSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ detect.Detector = (*Client)(nil)

// Detect sends img to the model and assembles the returned boxes into a grid.
func (c *Client) Detect(ctx context.Context, img image.Image) (detect.Grid, error) {
	frame, lb := letterbox(img, c.inputSize)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return detect.Grid{}, fmt.Errorf("encode frame: %w", err)
	}
	boxes, err := c.Predict(ctx, buf.Bytes())
	if err != nil {
		return detect.Grid{}, err
	}
	for i := range boxes {
		boxes[i] = lb.unmap(boxes[i], img.Bounds().Min)
	}
	grid, err := assemble(boxes, c.confidence)
	if err != nil {
		return detect.Grid{}, err
	}
	c.logger.Debug("detected", zap.Int("boxes", len(boxes)), zap.Stringer("bounds", grid.Bounds))
	return grid, nil
}

// Predict uploads an encoded frame and returns the raw boxes in model coordinates.
func (c *Client) Predict(ctx context.Context, frame []byte) ([]Box, error) {
	body, contentType, err := multipartFrame(frame)
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.endpoint)
	req.Header.SetContentType(contentType)
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	req.SetBody(body)

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return nil, lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = fmt.Errorf("detector error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
			if attempt == attempts || !shouldRetryStatus(status) {
				return nil, lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		var raw [][]float64
		if err := json.Unmarshal(resp.Body(), &raw); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return parseBoxes(raw)
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

func multipartFrame(frame []byte) ([]byte, string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	hdr.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(hdr)
	if err != nil {
		return nil, "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return nil, "", fmt.Errorf("write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return body.Bytes(), w.FormDataContentType(), nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
