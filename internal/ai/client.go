package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrTransient marks failures worth retrying (network trouble, provider
// overload, poll timeout). Anything else is a definitive answer from the
// provider.
var ErrTransient = errors.New("transient transform failure")

// Result is the narrow contract the workflows consume: where the output
// landed, who produced it and how long it took.
type Result struct {
	URL        string
	Provider   string
	DurationMS int64
}

type Client struct {
	apiKey     string
	baseURL    string
	provider   string
	httpClient *http.Client
	log        *slog.Logger
}

type Config struct {
	APIKey   string
	BaseURL  string
	Provider string
	Timeout  time.Duration
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		provider:   cfg.Provider,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Transform runs an image-to-image generation against the provider's async
// API: create a task, then poll until it settles.
func (c *Client) Transform(ctx context.Context, imageURL, prompt string) (*Result, error) {
	if prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	start := time.Now()

	payload := map[string]any{
		"model": c.provider,
		"input": map[string]any{
			"prompt":        prompt,
			"image_input":   []string{imageURL},
			"output_format": "png",
		},
	}

	taskID, err := c.createTask(ctx, payload)
	if err != nil {
		return nil, err
	}

	resultURL, err := c.pollTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	return &Result{
		URL:        resultURL,
		Provider:   c.provider,
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}

func (c *Client) createTask(ctx context.Context, payload map[string]any) (string, error) {
	fullURL, err := c.endpoint("/api/v1/jobs/createTask", nil)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: post create task: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response body: %v", ErrTransient, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("%w: create task status=%d body=%s", ErrTransient, resp.StatusCode, truncateBody(rawBody))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("create task failed: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var createResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			TaskID string `json:"taskId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &createResp); err != nil {
		return "", fmt.Errorf("decode create task response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if createResp.Code != http.StatusOK {
		return "", fmt.Errorf("create task failed: code=%d msg=%s", createResp.Code, createResp.Msg)
	}
	if createResp.Data.TaskID == "" {
		return "", fmt.Errorf("empty taskId in response")
	}

	c.log.Info("transform task created", "task_id", createResp.Data.TaskID, "provider", c.provider)
	return createResp.Data.TaskID, nil
}

func (c *Client) pollTask(ctx context.Context, taskID string) (string, error) {
	fullURL, err := c.endpoint("/api/v1/jobs/recordInfo", url.Values{"taskId": {taskID}})
	if err != nil {
		return "", err
	}

	const maxAttempts = 60
	const pollInterval = 2 * time.Second

	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return "", fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%w: get task status: %v", ErrTransient, err)
		}
		rawBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("%w: read response body: %v", ErrTransient, err)
		}
		if resp.StatusCode >= http.StatusMultipleChoices {
			return "", fmt.Errorf("%w: task status=%d body=%s", ErrTransient, resp.StatusCode, truncateBody(rawBody))
		}

		var statusResp struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
			Data struct {
				State      string `json:"state"`
				ResultJSON string `json:"resultJson"`
				FailCode   string `json:"failCode"`
				FailMsg    string `json:"failMsg"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rawBody, &statusResp); err != nil {
			return "", fmt.Errorf("decode status response: %w (body=%s)", err, truncateBody(rawBody))
		}
		if statusResp.Code != http.StatusOK {
			return "", fmt.Errorf("get task status failed: code=%d msg=%s", statusResp.Code, statusResp.Msg)
		}

		switch statusResp.Data.State {
		case "success":
			var result struct {
				ResultURLs []string `json:"resultUrls"`
			}
			if err := json.Unmarshal([]byte(statusResp.Data.ResultJSON), &result); err != nil {
				return "", fmt.Errorf("parse resultJson: %w", err)
			}
			if len(result.ResultURLs) == 0 {
				return "", fmt.Errorf("no resultUrls in result")
			}
			return result.ResultURLs[0], nil

		case "fail":
			failMsg := statusResp.Data.FailMsg
			if failMsg == "" {
				failMsg = "unknown error"
			}
			return "", fmt.Errorf("task failed: %s (code: %s)", failMsg, statusResp.Data.FailCode)

		case "waiting", "generating", "processing", "queued", "queueing":
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(pollInterval):
			}

		default:
			return "", fmt.Errorf("unknown task state: %s", statusResp.Data.State)
		}
	}

	return "", fmt.Errorf("%w: task timeout after %d attempts", ErrTransient, maxAttempts)
}

func (c *Client) endpoint(path string, params url.Values) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if params != nil {
		ref.RawQuery = params.Encode()
	}
	return base.ResolveReference(ref).String(), nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
