package llm

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

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"

	"github.com/TobiSchelling/refresher/internal/config"
	"github.com/TobiSchelling/refresher/internal/errs"
	"github.com/TobiSchelling/refresher/internal/logger"
)

// ErrEmptyCompletion is wrapped in an LLMError when a backend answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Provider is the interface for generation backends. Every failure it
// returns is an *errs.LLMError.
type Provider interface {
	Generate(ctx context.Context, system, user string) (string, error)
	Name() string
}

// Options are shared by all providers.
type Options struct {
	Model       string
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

func (o *Options) setDefaults() {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 500
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
}

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
// (OpenAI itself, Groq, vLLM and friends).
type OpenAIProvider struct {
	opts   Options
	client *openai.Client
}

// NewOpenAIProvider fails fast when the credential or model is missing.
func NewOpenAIProvider(opts Options) (*OpenAIProvider, error) {
	opts.setDefaults()
	if opts.APIKey == "" {
		return nil, &errs.LLMError{Provider: "openai", Err: errors.New("API key not configured")}
	}
	if opts.Model == "" {
		return nil, &errs.LLMError{Provider: "openai", Err: errors.New("model not configured")}
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}

	return &OpenAIProvider{opts: opts, client: openai.NewClientWithConfig(cfg)}, nil
}

func (o *OpenAIProvider) Name() string { return "openai:" + o.opts.Model }

// Generate sends one chat completion request.
func (o *OpenAIProvider) Generate(ctx context.Context, system, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.opts.Model,
		Messages:    messages,
		MaxTokens:   o.opts.MaxTokens,
		Temperature: float32(o.opts.Temperature),
	})
	if err != nil {
		return "", &errs.LLMError{Provider: o.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &errs.LLMError{Provider: o.Name(), Err: ErrEmptyCompletion}
	}
	return nonEmpty(o.Name(), resp.Choices[0].Message.Content)
}

// AnthropicProvider uses the Anthropic Messages API.
type AnthropicProvider struct {
	opts   Options
	client anthropic.Client
}

// NewAnthropicProvider fails fast when the credential or model is missing.
func NewAnthropicProvider(opts Options) (*AnthropicProvider, error) {
	opts.setDefaults()
	if opts.APIKey == "" {
		return nil, &errs.LLMError{Provider: "anthropic", Err: errors.New("API key not configured")}
	}
	if opts.Model == "" {
		return nil, &errs.LLMError{Provider: "anthropic", Err: errors.New("model not configured")}
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &AnthropicProvider{opts: opts, client: anthropic.NewClient(reqOpts...)}, nil
}

func (a *AnthropicProvider) Name() string { return "anthropic:" + a.opts.Model }

// Generate sends one Messages request and concatenates the text blocks.
func (a *AnthropicProvider) Generate(ctx context.Context, system, user string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.opts.Model),
		MaxTokens:   int64(a.opts.MaxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
		Temperature: anthropic.Float(a.opts.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", &errs.LLMError{Provider: a.Name(), Err: err}
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return nonEmpty(a.Name(), sb.String())
}

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	opts   Options
	client *http.Client
}

// NewOllamaProvider creates a new Ollama provider. No credential is needed.
func NewOllamaProvider(opts Options) (*OllamaProvider, error) {
	opts.setDefaults()
	if opts.Model == "" {
		return nil, &errs.LLMError{Provider: "ollama", Err: errors.New("model not configured")}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &OllamaProvider{opts: opts, client: &http.Client{Timeout: opts.Timeout}}, nil
}

func (o *OllamaProvider) Name() string { return "ollama:" + o.opts.Model }

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.opts.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}
	modelBase := strings.SplitN(o.opts.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	return false
}

// Generate sends a prompt to Ollama and returns the response.
func (o *OllamaProvider) Generate(ctx context.Context, system, user string) (string, error) {
	messages := []map[string]string{}
	if system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": user})

	data, err := json.Marshal(map[string]any{
		"model":    o.opts.Model,
		"messages": messages,
		"stream":   false,
		"options": map[string]any{
			"num_predict": o.opts.MaxTokens,
			"temperature": o.opts.Temperature,
		},
	})
	if err != nil {
		return "", &errs.LLMError{Provider: o.Name(), Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.opts.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", &errs.LLMError{Provider: o.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", &errs.LLMError{Provider: o.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &errs.LLMError{Provider: o.Name(), Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &errs.LLMError{Provider: o.Name(), Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nonEmpty(o.Name(), result.Message.Content)
}

// CreateProvider builds the provider named in config. Construction fails
// when the provider is unknown, its credential or model is absent, or a
// local Ollama server is unreachable or lacks the model.
func CreateProvider(ctx context.Context, cfg config.LLM, log logger.Logger) (Provider, error) {
	opts := Options{
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey(),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}

	var (
		p   Provider
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "openai", "groq", "":
		p, err = NewOpenAIProvider(opts)
	case "anthropic":
		p, err = NewAnthropicProvider(opts)
	case "ollama":
		var op *OllamaProvider
		op, err = NewOllamaProvider(opts)
		if err == nil && !op.IsConfigured(ctx) {
			err = &errs.LLMError{Provider: op.Name(), Err: errors.New("ollama not reachable or model not pulled")}
		}
		p = op
	default:
		return nil, &errs.LLMError{Provider: cfg.Provider, Err: errors.New("unknown provider")}
	}
	if err != nil {
		return nil, err
	}
	log.Info("using generation backend", logger.String("provider", p.Name()))
	return p, nil
}

func nonEmpty(provider, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &errs.LLMError{Provider: provider, Err: ErrEmptyCompletion}
	}
	return text, nil
}
