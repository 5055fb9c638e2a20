package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dontdude/vedit/internal/domain"
)

// Client calls the transcription service's POST /transcribe endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ domain.Transcriber = (*Client)(nil)

// NewClient returns a client for the service at baseURL.
// timeout bounds a whole request; transcription of long media is slow.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type response struct {
	Status string           `json:"status"`
	SRT    []domain.Segment `json:"srt"`
	Error  string           `json:"error"`
}

// Transcribe sends the request and returns the segments as received.
// An empty list is not an error at this layer.
func (c *Client) Transcribe(ctx context.Context, req domain.TranscriptionRequest) ([]domain.Segment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode transcription request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read transcription response: %w", err)
	}

	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("transcription service returned %s", resp.Status)
		}
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		if out.Error != "" {
			return nil, fmt.Errorf("transcription service returned %s: %s", resp.Status, out.Error)
		}
		return nil, fmt.Errorf("transcription service returned %s", resp.Status)
	}
	return out.SRT, nil
}
