package gemini

import (
	"strings"

	"github.com/davidbz/studygate/internal/domain"
)

type generateContentRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	Thought    bool        `json:"thought,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
	FileData   *fileData   `json:"fileData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type fileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type generationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type generateContentResponse struct {
	Candidates     []candidate     `json:"candidates,omitempty"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *usageMetadata  `json:"usageMetadata,omitempty"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
}

type candidate struct {
	Content      *content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func toRequest(messages []domain.ChatMessage, opts domain.CompletionOptions) generateContentRequest {
	var req generateContentRequest
	var system []part

	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleSystem:
			if text := msg.Text(); text != "" {
				system = append(system, part{Text: text})
			}
		case domain.RoleAssistant:
			req.Contents = append(req.Contents, content{Role: "model", Parts: []part{{Text: msg.Text()}}})
		default:
			req.Contents = append(req.Contents, content{Role: "user", Parts: toParts(msg)})
		}
	}

	if len(system) > 0 {
		req.SystemInstruction = &content{Parts: system}
	}

	cfg := generationConfig{Temperature: opts.Temperature}
	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		cfg.MaxOutputTokens = &maxTokens
	}
	if opts.ResponseFormat == domain.ResponseFormatJSON {
		cfg.ResponseMimeType = "application/json"
	}
	if cfg != (generationConfig{}) {
		req.GenerationConfig = &cfg
	}

	return req
}

func toParts(msg domain.ChatMessage) []part {
	parts := make([]part, 0, len(msg.Parts)+1)

	if msg.Content != "" {
		parts = append(parts, part{Text: msg.Content})
	}

	for _, p := range msg.Parts {
		switch {
		case p.Type == domain.PartImage && p.Data != "":
			parts = append(parts, part{InlineData: &inlineData{MimeType: p.MimeType, Data: p.Data}})
		case p.Type == domain.PartImage && p.URL != "":
			parts = append(parts, part{FileData: &fileData{MimeType: p.MimeType, FileURI: p.URL}})
		case p.Text != "":
			parts = append(parts, part{Text: p.Text})
		}
	}

	if len(parts) == 0 {
		parts = append(parts, part{Text: ""})
	}

	return parts
}

// text returns the answer text of the first candidate, skipping thoughts.
func (r generateContentResponse) text() string {
	if len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		if p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func (r generateContentResponse) usage() *domain.Usage {
	if r.UsageMetadata == nil {
		return nil
	}

	return &domain.Usage{
		PromptTokens:     r.UsageMetadata.PromptTokenCount,
		CompletionTokens: r.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      r.UsageMetadata.TotalTokenCount,
	}
}
