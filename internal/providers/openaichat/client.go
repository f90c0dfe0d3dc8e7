package openaichat

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/biodoia/vettriage/internal/providers"
	"github.com/biodoia/vettriage/pkg/models"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	OpenRouterBaseURL = "https://openrouter.ai/api"
	MistralBaseURL    = "https://api.mistral.ai"
)

// Client è un client per API chat compatibili OpenAI (OpenRouter, Mistral).
// Implementa sia VisionProvider che TextProvider: i modelli multimodali
// accettano immagini come image_url nel messaggio.
type Client struct {
	config     providers.ProviderConfig
	httpClient *resty.Client
}

// NewClient crea un nuovo client per il provider configurato
func NewClient(cfg providers.ProviderConfig) *Client {
	c := &Client{
		config:     cfg,
		httpClient: resty.New(),
	}
	c.configureHTTPClient()
	return c
}

// NewOpenRouterClient crea un client per OpenRouter con gli header richiesti
func NewOpenRouterClient(cfg providers.ProviderConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	c := NewClient(cfg)
	c.httpClient.
		SetHeader("HTTP-Referer", "https://github.com/biodoia/vettriage").
		SetHeader("X-Title", "VetTriage")
	return c
}

// NewMistralClient crea un client per Mistral
func NewMistralClient(cfg providers.ProviderConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = MistralBaseURL
	}
	return NewClient(cfg)
}

// configureHTTPClient configura il client HTTP.
// Nessun retry interno: la disciplina di fallback è del chiamante,
// ogni candidato riceve esattamente una chiamata bounded.
func (c *Client) configureHTTPClient() {
	c.httpClient.
		SetBaseURL(c.config.BaseURL).
		SetTimeout(c.config.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if c.config.APIKey != "" {
		c.httpClient.SetHeader("Authorization", "Bearer "+c.config.APIKey)
	}

	c.httpClient.OnAfterResponse(func(client *resty.Client, resp *resty.Response) error {
		log.Debug().
			Str("provider", c.Name()).
			Int("status", resp.StatusCode()).
			Dur("duration", resp.Time()).
			Msg("Chat API response")
		return nil
	})
}

// Name restituisce l'identificatore del provider
func (c *Client) Name() string {
	return c.config.ID
}

// Analyze invia l'immagine al modello multimodale e interpreta le osservazioni
func (c *Client) Analyze(ctx context.Context, image providers.ImageInput, promptHint string) ([]models.Finding, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s",
		image.MimeType, base64.StdEncoding.EncodeToString(image.Data))

	req := &ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []ChatMessage{{
			Role: "user",
			Content: []ContentPart{
				{Type: "image_url", ImageURL: &ImageURL{URL: dataURL}},
				{Type: "text", Text: providers.BuildVisionPrompt(promptHint)},
			},
		}},
		MaxTokens:   intPtr(1500),
		Temperature: floatPtr(0.2),
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return providers.ParseFindings(content)
}

// Generate invia il prompt diagnostico e interpreta la diagnosi differenziale
func (c *Client) Generate(ctx context.Context, prompt string) ([]models.DiagnosisCandidate, error) {
	req := &ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: "You are a veterinary diagnostic specialist."},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   intPtr(4000),
		Temperature: floatPtr(0.2),
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return providers.ParseDiagnosisCandidates(content)
}

// complete esegue la chiamata chat completions e restituisce il contenuto testuale
func (c *Client) complete(ctx context.Context, req *ChatCompletionRequest) (string, error) {
	var chatResp ChatCompletionResponse
	var errResp ErrorResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&chatResp).
		SetError(&errResp).
		Post("/v1/chat/completions")

	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	if resp.IsError() {
		return "", c.handleErrorResponse(resp.StatusCode(), &errResp)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: no choices in response", providers.ErrEmptyResponse)
	}

	return chatResp.Choices[0].Message.Content, nil
}

// handleErrorResponse mappa gli status HTTP sulla tassonomia dei fallimenti
func (c *Client) handleErrorResponse(status int, errResp *ErrorResponse) error {
	msg := errResp.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", status)
	}

	switch status {
	case 429:
		return fmt.Errorf("%w: %s", providers.ErrRateLimited, msg)
	case 401, 403:
		return fmt.Errorf("authentication failed: %s", msg)
	default:
		return fmt.Errorf("provider error (HTTP %d): %s", status, msg)
	}
}

func intPtr(v int) *int             { return &v }
func floatPtr(v float64) *float64   { return &v }
