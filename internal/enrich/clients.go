package enrich

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
)

// TextGenerator is the text-completion capability used for summaries, tags,
// prompt optimization, and translation.
type TextGenerator interface {
	Complete(ctx context.Context, systemPrompt, userContent string) (string, error)
}

// ImageGenerator is the image-generation capability.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, negativePrompt, aspectRatio string) ([]byte, error)
}

// SpeechSynthesizer submits asynchronous narration tasks; completion arrives
// later via callback, out of this package's scope.
type SpeechSynthesizer interface {
	Submit(ctx context.Context, text, voice, callbackURL string) (string, error)
}

// ObjectStore persists generated artifacts under a key and returns a public URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

const clientTimeout = 90 * time.Second

// statusError converts a non-2xx response into an error, marking
// client-side (validation-shaped) statuses as permanent so the shared retry
// policy does not retry them. 429 stays retryable.
func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err := fmt.Errorf("%s: %s: %s", op, resp.Status, strings.TrimSpace(string(body)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return err
	}
	return Permanent(err)
}

// LLMClient implements TextGenerator against an OpenAI-compatible
// chat-completions endpoint.
type LLMClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

func NewLLMClient(endpoint, model, apiKey string) *LLMClient {
	return &LLMClient{
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

func (c *LLMClient) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userContent},
		},
	})
	if err != nil {
		return "", Permanent(fmt.Errorf("marshal completion payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", statusError("completion", resp)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// ImageClient implements ImageGenerator against a generic HTTP image API
// that returns the image as base64.
type ImageClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewImageClient(endpoint, apiKey string) *ImageClient {
	return &ImageClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

func (c *ImageClient) Generate(ctx context.Context, prompt, negativePrompt, aspectRatio string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{
		"prompt":          prompt,
		"negative_prompt": negativePrompt,
		"aspect_ratio":    aspectRatio,
	})
	if err != nil {
		return nil, Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError("image generation", resp)
	}

	var out struct {
		ImageB64 string `json:"image_b64"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode image response: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(out.ImageB64)
	if err != nil {
		return nil, fmt.Errorf("decode image bytes: %w", err)
	}
	return data, nil
}

// SpeechClient implements SpeechSynthesizer against an async TTS API.
type SpeechClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewSpeechClient(endpoint, apiKey string) *SpeechClient {
	return &SpeechClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

func (c *SpeechClient) Submit(ctx context.Context, text, voice, callbackURL string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"text":         text,
		"voice":        voice,
		"callback_url": callbackURL,
	})
	if err != nil {
		return "", Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", statusError("speech synthesis", resp)
	}

	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode synthesis response: %w", err)
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("synthesis returned empty task id")
	}
	return out.TaskID, nil
}
