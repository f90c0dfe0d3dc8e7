package openaichat

// Wire types per le API chat compatibili OpenAI (OpenRouter, Mistral)

// ChatCompletionRequest rappresenta una richiesta chat completions
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// ChatMessage rappresenta un messaggio; Content è string per testo puro,
// []ContentPart per messaggi multimodali
type ChatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ContentPart rappresenta una parte di un messaggio multimodale
type ContentPart struct {
	Type     string    `json:"type"` // "text" o "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL incapsula un'immagine come data URL base64
type ImageURL struct {
	URL string `json:"url"`
}

// ChatCompletionResponse rappresenta una risposta chat completions
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Choice rappresenta una scelta nella risposta
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage è il messaggio dell'assistente nella risposta
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrorResponse rappresenta un errore dell'API
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}
