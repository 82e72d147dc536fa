package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/digkill/web3analysis/internal/config"
	"github.com/digkill/web3analysis/internal/models"
)

// ErrInvalidContent marks a completion that parsed but lacks required fields.
var ErrInvalidContent = errors.New("analysis response is missing required fields")

// NotAnalyzableError is returned when the model classifies the project as
// something it cannot analyze.
type NotAnalyzableError struct {
	Reason string
}

func (e *NotAnalyzableError) Error() string {
	return "project is not analyzable: " + e.Reason
}

// APIError carries a non-2xx response from the API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai error: status=%d body=%s", e.Status, e.Body)
}

const defaultNotAnalyzableReason = "The project cannot be analyzed at this time, possibly due to its recent launch or insufficient information"

type Client struct {
	apiKey     string
	baseURL    string
	model      string
	imageModel string
	httpClient *http.Client
	log        *slog.Logger
}

type Verdict struct {
	Analyzable bool   `json:"analyzable"`
	Reason     string `json:"reason"`
}

type Image struct {
	URL           string
	RevisedPrompt string
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		apiKey:     cfg.OpenAIAPIKey,
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		model:      cfg.OpenAIModel,
		imageModel: cfg.OpenAIImageModel,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// CheckAnalyzable asks the model whether projectName is a Web3 project it can analyze.
func (c *Client) CheckAnalyzable(ctx context.Context, projectName string) (*Verdict, error) {
	req := chatRequest{
		Model:       c.model,
		Temperature: 0.5,
		Messages: []chatMessage{
			{Role: "system", Content: analyzabilitySystemPrompt},
			{Role: "user", Content: fmt.Sprintf(analyzabilityUserPrompt, projectName)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	content, err := c.chat(ctx, req)
	if err != nil {
		return nil, err
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return nil, fmt.Errorf("decode analyzability verdict: %w (body=%s)", err, truncateBody([]byte(content)))
	}
	if !verdict.Analyzable && strings.TrimSpace(verdict.Reason) == "" {
		verdict.Reason = defaultNotAnalyzableReason
	}
	return &verdict, nil
}

// GenerateAnalysis requests the structured report body for projectName.
func (c *Client) GenerateAnalysis(ctx context.Context, projectName string) (*models.ReportContent, error) {
	req := chatRequest{
		Model:       c.model,
		Temperature: 0.7,
		MaxTokens:   4000,
		Messages: []chatMessage{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(analysisUserPrompt, projectName)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	content, err := c.chat(ctx, req)
	if err != nil {
		return nil, err
	}

	var peek struct {
		Analyzable *bool  `json:"analyzable"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(content), &peek); err == nil && peek.Analyzable != nil && !*peek.Analyzable {
		reason := peek.Reason
		if reason == "" {
			reason = defaultNotAnalyzableReason
		}
		return nil, &NotAnalyzableError{Reason: reason}
	}

	var report models.ReportContent
	if err := json.Unmarshal([]byte(content), &report); err != nil {
		return nil, fmt.Errorf("decode analysis: %w (body=%s)", err, truncateBody([]byte(content)))
	}
	if strings.TrimSpace(report.Summary.Description) == "" {
		return nil, ErrInvalidContent
	}
	return &report, nil
}

// GenerateImage renders a single 1024x1024 illustration and returns its temporary URL.
func (c *Client) GenerateImage(ctx context.Context, description string) (*Image, error) {
	payload := map[string]any{
		"model":  c.imageModel,
		"prompt": strings.TrimSpace(description) + " in a professional business style, abstract, safe for work",
		"n":      1,
		"size":   "1024x1024",
	}
	raw, err := c.post(ctx, "/images/generations", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			URL           string `json:"url"`
			RevisedPrompt string `json:"revised_prompt"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode image response: %w (body=%s)", err, truncateBody(raw))
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, fmt.Errorf("no image url in response")
	}
	return &Image{URL: resp.Data[0].URL, RevisedPrompt: resp.Data[0].RevisedPrompt}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

func (c *Client) chat(ctx context.Context, req chatRequest) (string, error) {
	raw, err := c.post(ctx, "/chat/completions", req)
	if err != nil {
		return "", err
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode chat response: %w (body=%s)", err, truncateBody(raw))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("empty chat completion")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	fullURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post openai: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("openai request failed", "status", resp.StatusCode, "path", path, "body", truncateBody(rawBody))
		}
		return nil, &APIError{Status: resp.StatusCode, Body: truncateBody(rawBody)}
	}
	if c.log != nil {
		c.log.Debug("openai request completed", "path", path, "duration_ms", time.Since(start).Milliseconds())
	}
	return rawBody, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
