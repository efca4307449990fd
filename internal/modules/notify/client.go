// README: Client for the external notification and thumbnail endpoints.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	pushPath      = "/api/send-notifications/send-push-notifications"
	thumbnailPath = "/api/thumbnails/generate"

	defaultTimeout = 10 * time.Second
)

var (
	ErrDisabled       = errors.New("notification service not configured")
	ErrInvalidRequest = errors.New("invalid thumbnail request")
)

// Recorder observes the outcome of each delivery attempt.
type Recorder interface {
	ObserveNotification(domain, channel, outcome string)
}

// Result is the endpoint's delivery report.
type Result struct {
	SuccessCount int    `json:"successCount"`
	ErrorCount   int    `json:"errorCount"`
	Error        string `json:"error,omitempty"`
}

type ThumbnailRequest struct {
	EstoreID string `json:"estoreId,omitempty"`
	WorkerID string `json:"workerId,omitempty"`
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	log        *zap.Logger
	recorder   Recorder
}

func NewClient(cfg Config, logger *zap.Logger, recorder Recorder) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.Named("notify"),
		recorder:   recorder,
	}
}

func emailPath(domain string) string {
	return fmt.Sprintf("/api/emails/send-%s-notification", domain)
}

// Notify sends the email and push notifications for one record. Both
// channels are attempted; the first error is returned.
func (c *Client) Notify(ctx context.Context, domain, id string, fields map[string]any) (Result, error) {
	if c == nil || c.baseURL == "" {
		return Result{}, ErrDisabled
	}
	body := map[string]any{"item": item(id, fields)}

	var (
		total    Result
		firstErr error
	)
	for _, ch := range []struct{ name, path string }{
		{"email", emailPath(domain)},
		{"push", pushPath},
	} {
		res, err := c.post(ctx, ch.path, body)
		c.observe(domain, ch.name, err)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s notification: %w", ch.name, err)
			}
			continue
		}
		total.SuccessCount += res.SuccessCount
		total.ErrorCount += res.ErrorCount
	}
	return total, firstErr
}

// Dispatch runs Notify on a detached context. The caller's state change is
// already committed and never depends on the outcome.
func (c *Client) Dispatch(domain, id string, fields map[string]any) {
	if c == nil || c.baseURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		res, err := c.Notify(ctx, domain, id, fields)
		if err != nil {
			c.log.Warn("notification failed", zap.String("domain", domain), zap.String("id", id), zap.Error(err))
			return
		}
		c.log.Info("notification sent",
			zap.String("domain", domain),
			zap.String("id", id),
			zap.Int("success", res.SuccessCount),
			zap.Int("errors", res.ErrorCount),
		)
	}()
}

// RequestThumbnail asks the thumbnail service to (re)generate an image for
// one estore or one worker. The result shows up later as thumbnailPresent.
func (c *Client) RequestThumbnail(ctx context.Context, req ThumbnailRequest) error {
	if c == nil || c.baseURL == "" {
		return ErrDisabled
	}
	req.EstoreID = strings.TrimSpace(req.EstoreID)
	req.WorkerID = strings.TrimSpace(req.WorkerID)
	if (req.EstoreID == "") == (req.WorkerID == "") {
		return fmt.Errorf("%w: exactly one of estoreId or workerId is required", ErrInvalidRequest)
	}
	_, err := c.post(ctx, thumbnailPath, req)
	c.observe("", "thumbnail", err)
	return err
}

func (c *Client) post(ctx context.Context, path string, body any) (Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, err
	}
	var res Result
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil && resp.StatusCode < http.StatusMultipleChoices {
			return Result{}, fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if res.Error != "" {
			return res, fmt.Errorf("%s returned %s: %s", path, resp.Status, res.Error)
		}
		return res, fmt.Errorf("%s returned %s", path, resp.Status)
	}
	if res.Error != "" {
		return res, errors.New(res.Error)
	}
	return res, nil
}

func (c *Client) observe(domain, channel string, err error) {
	if c.recorder == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.recorder.ObserveNotification(domain, channel, outcome)
}

// item is the request payload: the record fields with its id and the
// customer block exposed as userData.
func item(id string, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["id"] = id
	if _, ok := out["userData"]; !ok {
		for _, k := range []string{"customer", "sender", "createdBy"} {
			if v, ok := fields[k]; ok {
				out["userData"] = v
				break
			}
		}
	}
	return out
}
