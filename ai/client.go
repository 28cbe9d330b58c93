/*
Package ai is the production image backend client.

PURPOSE:
  Implements generation.Generator against an OpenAI-compatible
  chat-completions endpoint that answers image requests with a URL to the
  produced picture. One Generate call is two HTTP round trips: the
  completion, then the download of the linked image.

CONTRACT:
  The orchestrator owns the timeout (via ctx) and the refund protocol; this
  client owns no retries and reports every failure plainly. A reply with no
  recognizable image URL is a failure like any other.
*/
package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// ErrNoImageInReply means the model answered without a downloadable image.
var ErrNoImageInReply = errors.New("backend reply contains no image url")

var urlPattern = regexp.MustCompile(`https?://[^\s)\]"']+`)

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewClient creates a backend client. baseURL is the API root (without the
// /chat/completions suffix).
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{}, // per-call deadlines come from ctx
	}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate asks the backend for an image and returns its bytes. sourceImage,
// when present, is attached as a base64 data URL.
func (c *Client) Generate(ctx context.Context, prompt string, sourceImage []byte) ([]byte, error) {
	parts := []contentPart{{Type: "text", Text: prompt}}
	if len(sourceImage) > 0 {
		parts = append(parts, contentPart{
			Type: "image_url",
			ImageURL: &imageURL{
				URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(sourceImage),
			},
		})
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: parts}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("backend response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("backend error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, ErrNoImageInReply
	}

	resultURL := urlPattern.FindString(parsed.Choices[0].Message.Content)
	if resultURL == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoImageInReply, truncate(parsed.Choices[0].Message.Content, 120))
	}
	return c.download(ctx, resultURL)
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
