package gemini

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/biodoia/vettriage/internal/providers"
	"github.com/biodoia/vettriage/pkg/models"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Client è un client per l'API Gemini generateContent.
// Implementa sia VisionProvider che TextProvider.
type Client struct {
	config     providers.ProviderConfig
	httpClient *resty.Client
}

// NewClient crea un nuovo client Gemini
func NewClient(cfg providers.ProviderConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	c := &Client{
		config:     cfg,
		httpClient: resty.New(),
	}

	c.httpClient.
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")

	c.httpClient.OnAfterResponse(func(client *resty.Client, resp *resty.Response) error {
		log.Debug().
			Str("provider", c.Name()).
			Int("status", resp.StatusCode()).
			Dur("duration", resp.Time()).
			Msg("Gemini API response")
		return nil
	})

	return c
}

// Name restituisce l'identificatore del provider
func (c *Client) Name() string {
	return c.config.ID
}

// generateRequest è il payload generateContent
type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

// generateResponse è la risposta generateContent
type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Analyze invia l'immagine a Gemini e interpreta le osservazioni
func (c *Client) Analyze(ctx context.Context, image providers.ImageInput, promptHint string) ([]models.Finding, error) {
	req := &generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: providers.BuildVisionPrompt(promptHint)},
				{InlineData: &inlineData{
					MimeType: image.MimeType,
					Data:     base64.StdEncoding.EncodeToString(image.Data),
				}},
			},
		}},
		GenerationConfig: &generationConfig{MaxOutputTokens: 2048, Temperature: 0.3},
	}

	text, err := c.generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return providers.ParseFindings(text)
}

// Generate invia il prompt diagnostico a Gemini
func (c *Client) Generate(ctx context.Context, prompt string) ([]models.DiagnosisCandidate, error) {
	req := &generateRequest{
		Contents: []content{{
			Parts: []part{{Text: prompt}},
		}},
		GenerationConfig: &generationConfig{MaxOutputTokens: 4096, Temperature: 0.2},
	}

	text, err := c.generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return providers.ParseDiagnosisCandidates(text)
}

// generate esegue la chiamata generateContent e restituisce il testo prodotto
func (c *Client) generate(ctx context.Context, req *generateRequest) (string, error) {
	var genResp generateResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&genResp).
		SetError(&genResp).
		SetQueryParam("key", c.config.APIKey).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", c.config.Model))

	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	if resp.IsError() {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode())
		if genResp.Error != nil {
			msg = genResp.Error.Message
		}
		if resp.StatusCode() == 429 {
			return "", fmt.Errorf("%w: %s", providers.ErrRateLimited, msg)
		}
		return "", fmt.Errorf("provider error: %s", msg)
	}

	if genResp.Error != nil {
		return "", fmt.Errorf("provider error: %s", genResp.Error.Message)
	}

	if len(genResp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", providers.ErrEmptyResponse)
	}

	candidate := genResp.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return "", fmt.Errorf("response blocked by safety filters")
	}
	if len(candidate.Content.Parts) == 0 || candidate.Content.Parts[0].Text == "" {
		return "", fmt.Errorf("%w: empty candidate content", providers.ErrEmptyResponse)
	}

	return candidate.Content.Parts[0].Text, nil
}
