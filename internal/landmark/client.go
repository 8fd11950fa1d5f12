package landmark

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vzahanych/gesture-guard/internal/logger"
)

// Client is an HTTP client for the hand-landmark sidecar
type Client struct {
	serviceURL string
	httpClient *http.Client
	logger     *logger.Logger
}

// ClientConfig contains configuration for the landmark client
type ClientConfig struct {
	ServiceURL string
	Timeout    time.Duration
}

// NewClient creates a new landmark sidecar client
func NewClient(config ClientConfig, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}

	return &Client{
		serviceURL: strings.TrimRight(config.ServiceURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log,
	}
}

// Detect sends one JPEG region to the sidecar. Only the first hand is
// ever used, so at most one is requested.
func (c *Client) Detect(ctx context.Context, jpeg []byte, minConfidence float64) ([]Hand, error) {
	req := DetectRequest{
		Image:         base64.StdEncoding.EncodeToString(jpeg),
		MinConfidence: minConfidence,
		MaxHands:      1,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.serviceURL + "/api/v1/hands"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("landmark service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var detectResp DetectResponse
	if err := json.Unmarshal(body, &detectResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	c.logger.Debug(
		"Landmark detection completed",
		"hand_count", len(detectResp.Hands),
		"inference_time_ms", detectResp.InferenceTimeMs,
		"request_duration_ms", time.Since(startTime).Milliseconds(),
	)

	if detectResp.Hands == nil {
		return []Hand{}, nil
	}
	return detectResp.Hands, nil
}

// Health checks if the landmark sidecar is reachable and ready
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("landmark service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
