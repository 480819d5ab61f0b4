// Package llmhttp implements the capability contracts over an
// OpenAI-compatible /v1/chat/completions endpoint. Prompt construction is
// deliberately thin; the workflow owns the semantics, this package owns the
// wire format.
package llmhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/queryloom/queryloom/capability"
	"github.com/queryloom/queryloom/core/protocol"
	"github.com/queryloom/queryloom/workflow/state"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	defaultTimeout      = 3 * time.Minute
)

// Config holds provider connection parameters.
type Config struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Model    string `json:"model" yaml:"model"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// Provider talks to one chat-completions backend. It implements Classifier,
// ContextRetriever, Generator, Summarizer and ReformatDecider; construct one
// per role when the roles need different models or prompts.
type Provider struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	client       *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithSystemPrompt prepends a system message to every generation call.
func WithSystemPrompt(prompt string) Option {
	return func(p *Provider) {
		p.systemPrompt = prompt
	}
}

// New creates a Provider from configuration.
func New(cfg Config, opts ...Option) *Provider {
	p := &Provider{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type toolDef struct {
	Type     string        `json:"type"`
	Function protocol.Tool `json:"function"`
}

type chatRequest struct {
	Model    string             `json:"model"`
	Messages []protocol.Message `json:"messages"`
	Tools    []toolDef          `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string              `json:"content"`
			ToolCalls []protocol.ToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate implements capability.Generator.
func (p *Provider) Generate(ctx context.Context, req capability.GenerateRequest) (capability.Completion, error) {
	messages := make([]protocol.Message, 0, len(req.Messages)+2)
	if p.systemPrompt != "" {
		messages = append(messages, protocol.NewMessage(protocol.RoleSystem, p.systemPrompt))
	}
	if len(req.SchemaContext) > 0 {
		fragment := "Schema context:\n" + strings.Join(req.SchemaContext, "\n")
		messages = append(messages, protocol.NewMessage(protocol.RoleSystem, fragment))
	}
	messages = append(messages, req.Messages...)

	tools := make([]toolDef, 0, len(req.Tools))
	for _, tool := range req.Tools {
		tools = append(tools, toolDef{Type: "function", Function: tool})
	}

	return p.chat(ctx, chatRequest{Model: p.model, Messages: messages, Tools: tools})
}

// Classify implements capability.Classifier. The model answers with one of
// the route names; anything else is a classification error and the caller's
// fallback applies.
func (p *Provider) Classify(ctx context.Context, query string) (state.Route, error) {
	prompt := "Classify the user query as exactly one of: data_query, code_generate, code_execute. " +
		"Answer with the label only."

	completion, err := p.chat(ctx, chatRequest{
		Model: p.model,
		Messages: []protocol.Message{
			protocol.NewMessage(protocol.RoleSystem, prompt),
			protocol.NewMessage(protocol.RoleUser, query),
		},
	})
	if err != nil {
		return state.RouteUnset, err
	}

	label := strings.ToLower(strings.TrimSpace(completion.Content))
	switch {
	case strings.Contains(label, string(state.RouteDataQuery)):
		return state.RouteDataQuery, nil
	case strings.Contains(label, string(state.RouteCodeExecute)):
		return state.RouteCodeExecute, nil
	case strings.Contains(label, string(state.RouteCodeGenerate)):
		return state.RouteCodeGenerate, nil
	}
	return state.RouteUnset, fmt.Errorf("unrecognized classification %q", completion.Content)
}

// Retrieve implements capability.ContextRetriever with a single generation
// call that describes the schema relevant to the query.
func (p *Provider) Retrieve(ctx context.Context, req capability.ContextRequest) ([]string, error) {
	prompt := "Describe the data schema and context relevant to the user query, concisely."

	completion, err := p.chat(ctx, chatRequest{
		Model: p.model,
		Messages: []protocol.Message{
			protocol.NewMessage(protocol.RoleSystem, prompt),
			protocol.NewMessage(protocol.RoleUser, req.Query),
		},
	})
	if err != nil {
		return nil, err
	}
	if completion.Content == "" {
		return nil, nil
	}
	return []string{completion.Content}, nil
}

// Summarize implements capability.Summarizer.
func (p *Provider) Summarize(ctx context.Context, req capability.SummarizeRequest) (string, error) {
	prompt := "Explain what the following code does in answer to the user's question. Do not execute it."

	completion, err := p.chat(ctx, chatRequest{
		Model: p.model,
		Messages: []protocol.Message{
			protocol.NewMessage(protocol.RoleSystem, prompt),
			protocol.NewMessage(protocol.RoleUser, req.Query),
			protocol.NewMessage(protocol.RoleAssistant, req.Code),
		},
	})
	if err != nil {
		return "", err
	}
	return completion.Content, nil
}

// Decide implements capability.ReformatDecider. The model answers reformat
// or no_reformat; an unrecognized answer is an error and the caller's
// default applies.
func (p *Provider) Decide(ctx context.Context, req capability.ReformatRequest) (state.ReformatDecision, error) {
	prompt := "Given the code and the output of its last run, answer no_reformat if the code can be " +
		"retried as is, or reformat if it must be rewritten. Answer with the label only."

	var body strings.Builder
	if req.Query != "" {
		body.WriteString("Question:\n" + req.Query + "\n\n")
	}
	body.WriteString("Code:\n" + req.Code + "\n\nLast run output:\n" + req.LastResponse)

	completion, err := p.chat(ctx, chatRequest{
		Model: p.model,
		Messages: []protocol.Message{
			protocol.NewMessage(protocol.RoleSystem, prompt),
			protocol.NewMessage(protocol.RoleUser, body.String()),
		},
	})
	if err != nil {
		return state.ReformatUnset, err
	}

	label := strings.ToLower(strings.TrimSpace(completion.Content))
	switch {
	case strings.Contains(label, string(state.NoReformat)):
		return state.NoReformat, nil
	case strings.Contains(label, string(state.Reformat)):
		return state.Reformat, nil
	}
	return state.ReformatUnset, fmt.Errorf("unrecognized reformat decision %q", completion.Content)
}

func (p *Provider) chat(ctx context.Context, payload chatRequest) (capability.Completion, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return capability.Completion{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return capability.Completion{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return capability.Completion{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := strings.TrimSpace(string(msg))
		if isInputTooLarge(resp.StatusCode, detail) {
			return capability.Completion{}, fmt.Errorf("%w: %s", capability.ErrInputTooLarge, resp.Status)
		}
		if detail != "" {
			return capability.Completion{}, fmt.Errorf("chat completion error: %s: %s", resp.Status, detail)
		}
		return capability.Completion{}, fmt.Errorf("chat completion error: %s", resp.Status)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return capability.Completion{}, fmt.Errorf("failed to decode chat completion: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return capability.Completion{}, fmt.Errorf("chat completion returned no choices")
	}

	choice := decoded.Choices[0].Message
	return capability.Completion{
		Content:   choice.Content,
		ToolCalls: choice.ToolCalls,
	}, nil
}

// isInputTooLarge matches the provider error shapes that signal a context
// window overflow.
func isInputTooLarge(status int, detail string) bool {
	if status != http.StatusBadRequest && status != http.StatusRequestEntityTooLarge {
		return false
	}
	lowered := strings.ToLower(detail)
	for _, marker := range []string{"too long", "too large", "context length", "maximum context"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return status == http.StatusRequestEntityTooLarge
}
