package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// Ollama talks to an Ollama server's /api/chat endpoint.
type Ollama struct {
	Host        string
	Model       string
	Temperature float64

	client *http.Client
}

// NewOllama constructs a client. host may omit the scheme.
func NewOllama(host, model string, client *http.Client) *Ollama {
	if client == nil {
		client = http.DefaultClient
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return &Ollama{Host: strings.TrimRight(host, "/"), Model: model, client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// Complete sends one non-streaming chat request.
func (o *Ollama) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = o.Model
	}
	body := chatRequest{Model: model, Stream: false}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		body.Format = "json"
	}
	temp := req.Temperature
	if temp == 0 {
		temp = o.Temperature
	}
	if temp != 0 {
		body.Options = map[string]any{"temperature": temp}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return Response{}, research.Permanent(fmt.Errorf("ollama: encode request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Host+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return Response{}, research.Permanent(fmt.Errorf("ollama: build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("ollama: %w", ctx.Err())
		}
		return Response{}, fmt.Errorf("ollama: %w: %v", research.ErrLLMUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("ollama: read response: %w: %v", research.ErrLLMUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Response{}, fmt.Errorf("ollama: %s: %w", resp.Status, research.ErrLLMUnavailable)
	case resp.StatusCode != http.StatusOK:
		return Response{}, research.Permanent(fmt.Errorf("ollama: %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Response{}, fmt.Errorf("ollama: decode response: %w: %v", research.ErrMalformedOutput, err)
	}
	if out.Error != "" {
		return Response{}, research.Permanent(fmt.Errorf("ollama: %s", out.Error))
	}
	text := strings.TrimSpace(out.Message.Content)
	if text == "" {
		return Response{}, fmt.Errorf("ollama: %w: empty completion", research.ErrMalformedOutput)
	}
	return Response{Text: text, Model: out.Model}, nil
}
