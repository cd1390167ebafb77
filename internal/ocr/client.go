package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/flexa/stylebot/internal/models"
)

var (
	amountRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:birr|etb)`)
	txnRe    = regexp.MustCompile(`(?i)(?:txn|transaction|ref(?:erence)?)\s*(?:id|no|number)?\s*[:\-]?\s*([A-Z0-9]{6,})`)
	senderRe = regexp.MustCompile(`(?i)(?:from|sender|by)\s*[:\-]?\s*([A-Za-z][\w ]{1,40})`)
)

// Client extracts payment details from receipt screenshots. The extraction is
// advisory: reviewers see the hints but always judge the screenshot itself, so
// every failure path returns a nil hint rather than an error.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Extract runs the screenshot through the OCR service and parses the
// recognized text. A nil result means no usable hint; callers proceed without
// one.
func (c *Client) Extract(ctx context.Context, imageURL string) *models.OCRData {
	if c.baseURL == "" {
		return nil
	}

	text, err := c.recognize(ctx, imageURL)
	if err != nil {
		c.log.Warn("ocr recognition failed", "err", err)
		return nil
	}
	return Parse(text)
}

func (c *Client) recognize(ctx context.Context, imageURL string) (string, error) {
	body, err := json.Marshal(map[string]string{"image_url": imageURL})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/recognize", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post recognize: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recognize failed: status=%d", resp.StatusCode)
	}

	var recognizeResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(rawBody, &recognizeResp); err != nil {
		return "", fmt.Errorf("decode recognize response: %w", err)
	}
	return recognizeResp.Text, nil
}

// Parse pulls amount, transaction id and sender hints out of recognized
// receipt text. Returns nil when the text is empty.
func Parse(text string) *models.OCRData {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	data := &models.OCRData{RawText: text}
	if m := amountRe.FindStringSubmatch(text); m != nil {
		data.Amount = m[1]
	}
	if m := txnRe.FindStringSubmatch(text); m != nil {
		data.TransactionID = m[1]
	}
	if m := senderRe.FindStringSubmatch(text); m != nil {
		data.Sender = strings.TrimSpace(m[1])
	}
	return data
}
