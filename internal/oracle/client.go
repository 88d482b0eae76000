package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sghr/warden/internal/model"
)

const (
	anthropicAPIURL = "https://api.anthropic.com/v1/messages"
	openaiAPIURL    = "https://api.openai.com/v1/chat/completions"

	defaultRequestTimeout = 120 * time.Second
	maxDecisionTokens     = 1024
)

// Provider names accepted by NewClient.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// DefaultModelFor returns the default model for a provider.
func DefaultModelFor(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4.1-mini"
	default:
		return "claude-3-5-sonnet-latest"
	}
}

// Client talks to a hosted model API over HTTP.
type Client struct {
	provider   string
	modelName  string
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint; used by tests.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a client for the given provider and model. The API key is
// read from ANTHROPIC_API_KEY or OPENAI_API_KEY according to provider.
func NewClient(provider, modelName string, opts ...ClientOption) (*Client, error) {
	var apiKey, baseURL string
	switch provider {
	case ProviderAnthropic:
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		baseURL = anthropicAPIURL
	case ProviderOpenAI:
		apiKey = os.Getenv("OPENAI_API_KEY")
		baseURL = openaiAPIURL
	default:
		return nil, fmt.Errorf("unsupported provider: %q", provider)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key for provider %s is not set", provider)
	}
	if modelName == "" {
		modelName = DefaultModelFor(provider)
	}

	c := &Client{
		provider:   provider,
		modelName:  modelName,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		baseURL:    baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Decide queries the model for one decision. It never fails: transport and
// parse errors come back as final decisions with a diagnostic message.
func (c *Client) Decide(goal, contextJSON string, teamMode bool) (model.AgentDecision, map[string]any) {
	start := time.Now()

	text, inputTokens, outputTokens, err := c.complete(buildUserPrompt(goal, contextJSON, teamMode))

	metrics := map[string]any{
		"latency_ms":    time.Since(start).Milliseconds(),
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
		"model":         c.modelName,
		"provider":      c.provider,
	}

	if err != nil {
		return model.FinalDecision(fmt.Sprintf("Model request failed: %v", err)), metrics
	}

	decision, err := ParseDecision(text)
	if err != nil {
		return model.FinalDecision(fmt.Sprintf("Model returned an unparseable decision: %v", err)), metrics
	}
	return decision, metrics
}

func (c *Client) complete(prompt string) (text string, inputTokens, outputTokens int, err error) {
	switch c.provider {
	case ProviderOpenAI:
		return c.completeOpenAI(prompt)
	default:
		return c.completeAnthropic(prompt)
	}
}

type anthropicRequest struct {
	Model     string            `json:"model"`
	MaxTokens int               `json:"max_tokens"`
	System    string            `json:"system"`
	Messages  []providerMessage `json:"messages"`
}

type providerMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) completeAnthropic(prompt string) (string, int, int, error) {
	reqBody, err := json.Marshal(anthropicRequest{
		Model:     c.modelName,
		MaxTokens: maxDecisionTokens,
		System:    systemPrompt,
		Messages:  []providerMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	body, err := c.send(req)
	if err != nil {
		return "", 0, 0, err
	}

	var respData anthropicResponse
	if err := json.Unmarshal(body, &respData); err != nil {
		return "", 0, 0, fmt.Errorf("unmarshal response: %w", err)
	}
	if respData.Error != nil {
		return "", 0, 0, fmt.Errorf("API error: %s", respData.Error.Message)
	}
	if len(respData.Content) == 0 {
		return "", 0, 0, fmt.Errorf("empty response from API")
	}
	return respData.Content[0].Text, respData.Usage.InputTokens, respData.Usage.OutputTokens, nil
}

type openaiRequest struct {
	Model       string            `json:"model"`
	Messages    []providerMessage `json:"messages"`
	Temperature float64           `json:"temperature"`
}

type openaiResponse struct {
	Choices []struct {
		Message providerMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) completeOpenAI(prompt string) (string, int, int, error) {
	reqBody, err := json.Marshal(openaiRequest{
		Model: c.modelName,
		Messages: []providerMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	body, err := c.send(req)
	if err != nil {
		return "", 0, 0, err
	}

	var respData openaiResponse
	if err := json.Unmarshal(body, &respData); err != nil {
		return "", 0, 0, fmt.Errorf("unmarshal response: %w", err)
	}
	if respData.Error != nil {
		return "", 0, 0, fmt.Errorf("API error: %s", respData.Error.Message)
	}
	if len(respData.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("empty response from API")
	}
	return respData.Choices[0].Message.Content, respData.Usage.PromptTokens, respData.Usage.CompletionTokens, nil
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, body)
	}
	return body, nil
}

// ParseDecision extracts an AgentDecision from raw model output, tolerating
// a fenced code block around the JSON.
func ParseDecision(text string) (model.AgentDecision, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var decision model.AgentDecision
	if err := json.Unmarshal([]byte(cleaned), &decision); err != nil {
		return model.AgentDecision{}, fmt.Errorf("decode decision: %w", err)
	}

	switch decision.Kind {
	case model.DecisionFinal:
		if decision.FinalResponse == "" {
			decision.FinalResponse = "No final response."
		}
	case model.DecisionAction:
		if decision.Action != nil {
			if err := decision.Action.Validate(); err != nil {
				return model.AgentDecision{}, fmt.Errorf("invalid proposal: %w", err)
			}
		}
	default:
		return model.AgentDecision{}, fmt.Errorf("unknown decision kind: %q", decision.Kind)
	}
	return decision, nil
}
