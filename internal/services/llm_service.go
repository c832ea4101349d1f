package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/traindiag/traindiag/internal/config"
	"github.com/traindiag/traindiag/internal/logger"
)

// LLMService talks to a local Ollama instance. It is the whole language-model
// boundary: one completion call and one embedding call, both with bounded
// timeouts. Transport and status failures come back as TransientError.
type LLMService struct {
	baseURL    string
	llmModel   string
	embedModel string
	client     *http.Client
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

type ollamaModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func NewLLMService(cfg *config.Config) *LLMService {
	timeout := time.Duration(cfg.LLMTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &LLMService{
		baseURL:    cfg.OllamaURL,
		llmModel:   cfg.LLMModel,
		embedModel: cfg.EmbedModel,
		client:     &http.Client{Timeout: timeout},
	}
}

// Complete sends one prompt and returns the raw completion text.
func (ls *LLMService) Complete(ctx context.Context, prompt string) (string, error) {
	request := ollamaGenerateRequest{
		Model:  ls.llmModel,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": 0.2,
			"top_p":       0.8,
		},
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate", ls.baseURL)
	start := time.Now()
	logger.WithComponent("llm_service").Debugf("Making LLM request to %s (prompt length %d)", url, len(prompt))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ls.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		logger.WithComponent("llm_service").Warnf("LLM request failed after %v: %v", elapsed, err)
		return "", &TransientError{Op: "completion", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &TransientError{Op: "completion", Err: fmt.Errorf("ollama returned status %d, body: %s", resp.StatusCode, string(body))}
	}

	var ollamaResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", &TransientError{Op: "completion", Err: fmt.Errorf("failed to decode ollama response: %w", err)}
	}

	logger.WithComponent("llm_service").Debugf("LLM request completed in %v", elapsed)
	return ollamaResp.Response, nil
}

// Embed returns the embedding vector for the given text.
func (ls *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	request := ollamaEmbeddingRequest{
		Model:  ls.embedModel,
		Prompt: text,
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embeddings", ls.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ls.client.Do(req)
	if err != nil {
		return nil, &TransientError{Op: "embedding", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransientError{Op: "embedding", Err: fmt.Errorf("embedding API returned status %d", resp.StatusCode)}
	}

	var embeddingResp ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, &TransientError{Op: "embedding", Err: err}
	}
	return embeddingResp.Embedding, nil
}

// CheckHealth verifies the Ollama endpoint is reachable.
func (ls *LLMService) CheckHealth(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/tags", ls.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := ls.client.Do(req)
	if err != nil {
		return fmt.Errorf("LLM service not available: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("LLM service returned status %d", resp.StatusCode)
	}
	return nil
}

// AvailableModels lists the models the Ollama instance can serve.
func (ls *LLMService) AvailableModels(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/api/tags", ls.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := ls.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get models: status %d", resp.StatusCode)
	}

	var modelsResp ollamaModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, err
	}

	var names []string
	for _, model := range modelsResp.Models {
		names = append(names, model.Name)
	}
	return names, nil
}
