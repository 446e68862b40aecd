package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vinolens/vinolens-analyzer/config"
)

// ErrSommelierNotConfigured is returned by every call on a client whose
// endpoint was never configured. Construction succeeds regardless so the
// dependency can be injected unconditionally; the guard fires at call time.
var ErrSommelierNotConfigured = errors.New("sommelier endpoint is not configured")

// SommelierClient talks to an OpenAI-compatible chat-completions endpoint for
// both visual extraction and text generation.
type SommelierClient struct {
	baseURL         string
	apiKey          string
	visionModel     string
	generationModel string
	httpClient      *http.Client
}

func InitSommelierClient(cfg *config.EnvConfig) *SommelierClient {
	return &SommelierClient{
		baseURL:         cfg.Sommelier.BaseURL,
		apiKey:          cfg.Sommelier.APIKey,
		visionModel:     cfg.Sommelier.VisionModel,
		generationModel: cfg.Sommelier.GenerationModel,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Sommelier.TimeoutSeconds) * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Vision sends a prompt together with an image reference and returns the raw
// model text. Callers are responsible for defensive decoding of the output.
func (s *SommelierClient) Vision(ctx context.Context, prompt string, imageURL string) (string, error) {
	content := []chatContent{
		{Type: "text", Text: prompt},
		{Type: "image_url", ImageURL: &chatImageURL{URL: imageURL}},
	}
	return s.complete(ctx, s.visionModel, content)
}

// Generate sends a text-only prompt and returns the raw model text.
func (s *SommelierClient) Generate(ctx context.Context, prompt string) (string, error) {
	content := []chatContent{{Type: "text", Text: prompt}}
	return s.complete(ctx, s.generationModel, content)
}

func (s *SommelierClient) complete(ctx context.Context, model string, content []chatContent) (string, error) {
	if s == nil || s.baseURL == "" {
		return "", ErrSommelierNotConfigured
	}

	payload := chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: content}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode sommelier request: %w", err)
	}

	url := s.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create sommelier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sommelier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("sommelier returned %d: %s", resp.StatusCode, raw)
	}

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode sommelier response: %w", err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("sommelier error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("sommelier response contained no choices")
	}

	return response.Choices[0].Message.Content, nil
}
