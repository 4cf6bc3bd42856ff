package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"genesis-ai/internal/domain"
	"genesis-ai/internal/infra/config"
	"genesis-ai/internal/infra/tracer"
)

// OpenAIProvider implements domain.ReasoningProvider against any
// OpenAI-compatible chat completion API.
type OpenAIProvider struct {
	name         string
	model        string
	summaryModel string
	apiKey       string
	baseURL      string
	temperature  float64
	maxTokens    int
	client       *http.Client
	logger       *slog.Logger
}

// NewOpenAIProvider creates a provider with configured timeouts.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	summaryModel := cfg.SummaryModel
	if summaryModel == "" {
		summaryModel = cfg.Model
	}

	return &OpenAIProvider{
		name:         cfg.Name,
		model:        cfg.Model,
		summaryModel: summaryModel,
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		client:       NewHTTPClient(cfg),
		logger:       logger,
	}
}

// Decide implements domain.ReasoningProvider. The full tool catalogue is
// offered with tool_choice "auto"; the model picks tools or answers directly.
func (p *OpenAIProvider) Decide(ctx context.Context, messages []domain.Message, tools []domain.ToolSchema) (*domain.Decision, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.decide",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", p.model),
			tracer.IntAttr("llm.tools", len(tools)),
		),
	)
	defer span.End()

	req := openaiRequest{
		Model:    p.model,
		Messages: toWireMessages(messages),
		Tools:    toWireTools(tools),
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}
	p.applyTuning(&req)

	resp, err := p.complete(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	msg, usage := fromWireResponse(resp)
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
	)
	tracer.SetOK(span)

	p.logger.Debug("llm decision completed",
		"provider", p.name,
		"model", resp.Model,
		"tool_calls", len(msg.ToolCalls),
		"tokens", usage.TotalTokens,
	)

	return &domain.Decision{Message: msg, Model: resp.Model, Usage: usage}, nil
}

// Summarize implements domain.ReasoningProvider. No tools are offered; the
// model turns the tool results already in the context into prose.
func (p *OpenAIProvider) Summarize(ctx context.Context, messages []domain.Message) (string, domain.Usage, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.summarize",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", p.summaryModel),
		),
	)
	defer span.End()

	req := openaiRequest{
		Model:    p.summaryModel,
		Messages: toWireMessages(messages),
	}
	p.applyTuning(&req)

	resp, err := p.complete(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return "", domain.Usage{}, err
	}

	msg, usage := fromWireResponse(resp)
	tracer.SetOK(span)

	p.logger.Debug("llm summary completed",
		"provider", p.name,
		"model", resp.Model,
		"tokens", usage.TotalTokens,
	)

	return msg.Content, usage, nil
}

// Name implements domain.ReasoningProvider.
func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) applyTuning(req *openaiRequest) {
	if p.maxTokens > 0 {
		req.MaxTokens = p.maxTokens
	}
	if p.temperature > 0 {
		t := p.temperature
		req.Temperature = &t
	}
}

func (p *OpenAIProvider) complete(ctx context.Context, req openaiRequest) (*openaiResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	respBody, err := doJSONRequest(ctx, p.client, p.baseURL+"/chat/completions", body, headers)
	if err != nil {
		return nil, err
	}

	var resp openaiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response carries no choices", domain.ErrProviderError)
	}
	return &resp, nil
}

// --- OpenAI API wire types ---

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Tools       []openaiTool    `json:"tools,omitempty"`
	ToolChoice  string          `json:"tool_choice,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiTool struct {
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type openaiToolCall struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Function openaiToolCallFunction `json:"function"`
}

type openaiToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func toWireMessages(messages []domain.Message) []openaiMessage {
	out := make([]openaiMessage, 0, len(messages))
	for _, m := range messages {
		wire := openaiMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		if m.Role == domain.RoleTool {
			wire.ToolCallID = m.ToolCallID
			wire.Name = m.ToolName
		}
		if m.Role == domain.RoleAssistant && len(m.ToolCalls) > 0 {
			wire.ToolCalls = make([]openaiToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				wire.ToolCalls[i] = openaiToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openaiToolCallFunction{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
		}
		out = append(out, wire)
	}
	return out
}

func toWireTools(tools []domain.ToolSchema) []openaiTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openaiTool, len(tools))
	for i, t := range tools {
		out[i] = openaiTool{
			Type: "function",
			Function: openaiToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

func fromWireResponse(resp *openaiResponse) (domain.Message, domain.Usage) {
	choice := resp.Choices[0].Message
	msg := domain.Message{
		Role:    domain.RoleAssistant,
		Content: choice.Content,
	}
	for _, tc := range choice.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	usage := domain.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return msg, usage
}
