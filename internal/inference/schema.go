package inference

import (
	"encoding/json"
	"errors"
	"strings"
)

// Part is a single text fragment.
type Part struct {
	Text string `json:"text"`
}

// Content groups parts under an optional role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerateRequest is the outbound content-generation payload.
type GenerateRequest struct {
	Contents []Content `json:"contents"`
}

// NewTextRequest builds a single-turn request for prompt.
func NewTextRequest(prompt string) GenerateRequest {
	return GenerateRequest{Contents: []Content{{Role: "user", Parts: []Part{{Text: prompt}}}}}
}

// Candidate is one generated alternative.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// GenerateResponse is the expected response shape: {candidates:[{content:{parts:[{text}]}}]}.
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// Text returns the concatenated parts of the first candidate.
func (r GenerateResponse) Text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

var errMissingCandidateText = errors.New("response has no candidates[0].content.parts[0].text")

// parseGenerateResponse decodes and validates body.
func parseGenerateResponse(body []byte) (GenerateResponse, error) {
	var resp GenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return GenerateResponse{}, err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return GenerateResponse{}, errMissingCandidateText
	}
	return resp, nil
}
