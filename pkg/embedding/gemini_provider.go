package embedding

import (
	"context"
	"fmt"
)

const geminiEmbeddingModel = "text-embedding-004"

type geminiRequestPart struct {
	Text string `json:"text"`
}

type geminiRequestContent struct {
	Parts []geminiRequestPart `json:"parts"`
}

type geminiEmbeddingRequest struct {
	Model    string               `json:"model"`
	Content  geminiRequestContent `json:"content"`
	TaskType string               `json:"task_type,omitempty"`
}

type GeminiProvider struct {
	ApiKey  string
	BaseURL string
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		ApiKey:  apiKey,
		BaseURL: "https://generativelanguage.googleapis.com/v1",
	}
}

func (p *GeminiProvider) Model() string { return "gemini/" + geminiEmbeddingModel }

func (p *GeminiProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	geminiReq := geminiEmbeddingRequest{
		Model: geminiEmbeddingModel,
		Content: geminiRequestContent{
			Parts: []geminiRequestPart{{Text: text}},
		},
		TaskType: taskType,
	}

	endpoint := fmt.Sprintf("%s/models/%s:embedContent", p.BaseURL, geminiEmbeddingModel)

	var res EmbeddingResponse
	if err := postJSON(ctx, endpoint, map[string]string{"x-goog-api-key": p.ApiKey}, geminiReq, &res); err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}
	if len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embedding: empty vector")
	}
	return &res, nil
}
