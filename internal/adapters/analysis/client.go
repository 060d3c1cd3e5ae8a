// Package analysis implementa o provedor de análise sobre uma API de chat compatível com OpenAI.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
	"github.com/keenbingwood-bot/redflag2601/internal/core/ports"
)

const (
	DefaultBaseURL = "https://api.deepseek.com"
	DefaultModel   = "deepseek-chat"

	StageRequest  = "request"
	StageResponse = "response"
	StageDecode   = "decode"
)

const systemPrompt = `Role: You are analyzing job descriptions for potential risks.
Objective: Analyze the Job Description to identify potential risks (Red Flags) regarding work-life balance, toxicity, stability, or compensation.
Tone: Professional, objective, and clear. NOT humorous, NOT mocking.

Output: Return ONLY a valid JSON object with this structure:
{
  "company_name": "Name found in text or null",
  "job_title": "Job title found in text or null",
  "overall_score": (Integer 0-100, where 100 is perfectly safe, 0 is a scam),
  "summary": "A one-sentence punchy warning or summary of the vibe.",
  "red_flags": [
    {
      "severity": "High" | "Medium" | "Low",
      "category": "Culture" | "Workload" | "Compensation" | "Management" | "Stability",
      "quote": "Exact phrase from JD triggering this flag",
      "reality": "Brief explanation of the hidden meaning/risk"
    }
  ],
  "share_copy": "A short, witty first-person sentence for social media sharing (e.g., 'I scanned this JD and found...')."
}`

var ErrMissingAPIKey = errors.New("analysis: api key is not set")

// ProviderError descreve uma falha ao falar com o provedor, com a etapa onde ocorreu.
type ProviderError struct {
	Stage      string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis provider failed during %q stage (status %d): %v", e.Stage, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("analysis provider failed during %q stage (status %d): %s", e.Stage, e.StatusCode, string(e.Body))
}

func (e *ProviderError) Unwrap() error { return e.Err }

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// RPS limita as chamadas de saída. <= 0 desliga o limite.
	RPS float64
}

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	validate   *validator.Validate
}

var _ ports.AnalysisProvider = (*Client)(nil)

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      model,
		httpClient: httpClient,
		limiter:    limiter,
		validate:   validator.New(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) Analyze(ctx context.Context, jobDescription string) (domain.Analysis, error) {
	if c.apiKey == "" {
		return domain.Analysis{}, ErrMissingAPIKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Analysis{}, &ProviderError{Stage: StageRequest, Err: err}
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Input Text: " + jobDescription},
		},
		Temperature:    0.3,
		MaxTokens:      2000,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return domain.Analysis{}, &ProviderError{Stage: StageRequest, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return domain.Analysis{}, &ProviderError{Stage: StageRequest, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Analysis{}, &ProviderError{Stage: StageRequest, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Analysis{}, &ProviderError{Stage: StageResponse, StatusCode: resp.StatusCode, Err: err}
	}
	log.WithFields(log.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(started),
	}).Debug("analysis: provider responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Analysis{}, &ProviderError{Stage: StageResponse, StatusCode: resp.StatusCode, Body: body}
	}

	return c.decode(body, resp.StatusCode)
}

func (c *Client) decode(body []byte, status int) (domain.Analysis, error) {
	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return domain.Analysis{}, &ProviderError{Stage: StageDecode, StatusCode: status, Err: err}
	}
	if len(chat.Choices) == 0 || strings.TrimSpace(chat.Choices[0].Message.Content) == "" {
		return domain.Analysis{}, &ProviderError{Stage: StageDecode, StatusCode: status, Err: errors.New("no response from AI")}
	}

	var out domain.Analysis
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &out); err != nil {
		return domain.Analysis{}, &ProviderError{Stage: StageDecode, StatusCode: status, Err: err}
	}
	if err := c.validate.Struct(out); err != nil {
		return domain.Analysis{}, &ProviderError{Stage: StageDecode, StatusCode: status, Err: err}
	}
	if out.RedFlags == nil {
		out.RedFlags = []domain.RedFlag{}
	}
	return out, nil
}
