package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"codegen-app/internal/domain/apperr"

	openai "github.com/sashabaranov/go-openai"
)

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

type Message struct {
	Role    string
	Content string
}

type Request struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

type Result struct {
	Content string
	Model   string
	Tokens  int
}

// Completer is an OpenAI-compatible chat completion backend.
type Completer interface {
	Complete(ctx context.Context, req Request) (Result, error)
	// Stream calls onDelta for every content chunk. It stops early when
	// onDelta returns an error or ctx is cancelled.
	Stream(ctx context.Context, req Request, onDelta func(string) error) (Result, error)
}

type Client struct {
	api *openai.Client
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	c := &Client{cfg: cfg}
	if cfg.APIKey == "" {
		return c
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	c.api = openai.NewClientWithConfig(oc)
	return c
}

func (c *Client) DefaultModel() string { return c.cfg.Model }

func (c *Client) chatRequest(req Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > c.cfg.MaxTokens {
		maxTokens = c.cfg.MaxTokens
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: c.cfg.Temperature,
	}
}

func (c *Client) Complete(ctx context.Context, req Request) (Result, error) {
	if c.api == nil {
		return Result{}, apperr.New(apperr.KindNotConfigured, "LLM provider is not configured")
	}
	cr := c.chatRequest(req)
	resp, err := c.api.CreateChatCompletion(ctx, cr)
	if err != nil {
		return Result{}, upstream(err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, apperr.New(apperr.KindUpstream, "LLM returned no choices")
	}
	return Result{
		Content: resp.Choices[0].Message.Content,
		Model:   firstNonEmpty(resp.Model, cr.Model),
		Tokens:  resp.Usage.TotalTokens,
	}, nil
}

func (c *Client) Stream(ctx context.Context, req Request, onDelta func(string) error) (Result, error) {
	if c.api == nil {
		return Result{}, apperr.New(apperr.KindNotConfigured, "LLM provider is not configured")
	}
	cr := c.chatRequest(req)
	cr.Stream = true
	cr.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := c.api.CreateChatCompletionStream(ctx, cr)
	if err != nil {
		return Result{}, upstream(err)
	}
	defer stream.Close()

	res := Result{Model: cr.Model}
	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Content = sb.String()
			return res, upstream(err)
		}
		if chunk.Model != "" {
			res.Model = chunk.Model
		}
		if chunk.Usage != nil {
			res.Tokens = chunk.Usage.TotalTokens
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		sb.WriteString(delta)
		if err := onDelta(delta); err != nil {
			res.Content = sb.String()
			return res, err
		}
	}
	res.Content = sb.String()
	return res, nil
}

func upstream(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperr.Wrap(apperr.KindUpstream, "LLM request failed", fmt.Errorf("status %d: %w", apiErr.HTTPStatusCode, err))
	}
	return apperr.Wrap(apperr.KindUpstream, "LLM request failed", err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
