package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrPayloadTooLarge is returned when an audio file exceeds the service's
// upload limit. Callers split the audio into segments before retrying.
var ErrPayloadTooLarge = errors.New("audio payload exceeds transcription upload limit")

// Client talks to an OpenAI-compatible audio transcription endpoint.
type Client struct {
	apiKey   string
	model    string
	maxBytes int64
	client   *http.Client
	baseURL  string
}

func NewClient(baseURL, apiKey, model string, maxBytes int64) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		model:    model,
		maxBytes: maxBytes,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// MaxBytes is the service upload limit enforced locally before any request
// leaves the process.
func (c *Client) MaxBytes() int64 {
	return c.maxBytes
}

// Transcribe uploads the audio file at path and returns its transcript text.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if c.maxBytes > 0 && info.Size() >= c.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, info.Size())
	}

	f, err := os.Open(path) // #nosec G304 -- path comes from the ingestion scratch dir
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return "", err
	}
	if err := writer.WriteField("response_format", "text"); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return "", fmt.Errorf("%w: rejected by service", ErrPayloadTooLarge)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription api error: %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return strings.TrimSpace(string(raw)), nil
}
