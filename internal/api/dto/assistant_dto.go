package dto

// GenerateRequest payload for POST /assistant/generate.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateResponse returns the generated text and how many attempts it took.
type GenerateResponse struct {
	Text     string `json:"text"`
	Attempts int    `json:"attempts"`
}
