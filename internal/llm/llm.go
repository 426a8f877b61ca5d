// Package llm sends a converted document and a user request to an
// OpenAI-compatible chat-completion API.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"docanalyzer/internal/apperr"
	"docanalyzer/internal/extractor"

	"github.com/phuslu/log"
	"github.com/sashabaranov/go-openai"
)

const (
	temperature = 0.1
	maxTokens   = 4000

	// Rough context ceilings in estimated tokens (chars / 4).
	gpt4Ceiling    = 12000
	defaultCeiling = 3000

	defaultModel = "gpt-4.1"
)

// Usage reports token counters for one completion.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ModelUsed        string `json:"model_used"`
}

// Result is a successful analysis. Response is never empty.
type Result struct {
	Response     string `json:"response"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason"`
}

// Option customises an Analyzer.
type Option func(*openai.ClientConfig)

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *openai.ClientConfig) {
		if url != "" {
			c.BaseURL = strings.TrimRight(url, "/")
		}
	}
}

// Analyzer wraps a chat-completion client bound to one model.
type Analyzer struct {
	client *openai.Client
	model  string
}

// NewAnalyzer fails when apiKey is empty so a missing credential is caught
// at startup rather than on the first request.
func NewAnalyzer(apiKey, model string, opts ...Option) (*Analyzer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, apperr.Analysis("OpenAI API key is not configured")
	}
	if model == "" {
		model = defaultModel
	}

	cfg := openai.DefaultConfig(apiKey)
	for _, opt := range opts {
		opt(&cfg)
	}

	log.Info().Str("model", model).Msg("OpenAI analyzer initialized")
	return &Analyzer{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// CheckLength reports whether content plus prompt fit the model's context.
// The estimate is one token per four characters; reaching the ceiling fails.
func (a *Analyzer) CheckLength(content, prompt string) bool {
	return estimateTokens(content, prompt) < ceilingFor(a.model)
}

func estimateTokens(content, prompt string) int {
	return (utf8.RuneCountInString(content) + utf8.RuneCountInString(prompt)) / 4
}

func ceilingFor(model string) int {
	if strings.HasPrefix(model, "gpt-4") {
		return gpt4Ceiling
	}
	return defaultCeiling
}

// Analyze runs one completion. meta may be nil. There are no retries.
func (a *Analyzer) Analyze(ctx context.Context, content, prompt string, meta *extractor.Metadata) (*Result, error) {
	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(meta)},
			{Role: openai.ChatMessageRoleUser, Content: buildUserMessage(content, prompt)},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		log.Error().Err(err).Str("model", a.model).Msg("OpenAI request failed")
		return nil, apperr.WrapAnalysis(err, "OpenAI request failed")
	}

	if len(resp.Choices) == 0 {
		return nil, apperr.Analysis("No response received from OpenAI")
	}
	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return nil, apperr.Analysis("No response received from OpenAI")
	}

	res := &Result{
		Response: text,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			ModelUsed:        a.model,
		},
		FinishReason: string(choice.FinishReason),
	}

	log.Info().
		Str("model", a.model).
		Str("provider_model", resp.Model).
		Int("prompt_tokens", res.Usage.PromptTokens).
		Int("completion_tokens", res.Usage.CompletionTokens).
		Str("finish_reason", res.FinishReason).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis complete")
	return res, nil
}

// ==========================================
// Prompts
// ==========================================

const systemPrompt = `You are an expert document analyst. Your role is to provide accurate, insightful analysis of documents based on their content and the user's specific questions or requests.

Guidelines:
- Provide clear, concise, and well-structured responses
- Base your analysis strictly on the document content provided
- If the document doesn't contain information to answer a question, clearly state this
- Use bullet points or numbered lists when appropriate for clarity
- Cite specific sections or information from the document when possible`

func buildSystemPrompt(meta *extractor.Metadata) string {
	if meta == nil {
		return systemPrompt
	}

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nDocument Information:\n")
	fmt.Fprintf(&sb, "- File type: %s\n", orUnknown(meta.FileType))
	fmt.Fprintf(&sb, "- Title: %s\n", orUnknown(meta.Title))
	if meta.PageCount > 0 {
		fmt.Fprintf(&sb, "- Pages: %d\n", meta.PageCount)
	}
	if meta.TablesCount > 0 {
		fmt.Fprintf(&sb, "- Tables: %d\n", meta.TablesCount)
	}
	if meta.ImagesCount > 0 {
		fmt.Fprintf(&sb, "- Images: %d\n", meta.ImagesCount)
	}
	return sb.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func buildUserMessage(content, prompt string) string {
	return fmt.Sprintf("User Request: %s\n\nDocument Content:\n%s\n\nPlease analyze the document and respond to the user's request based on the content above.", prompt, content)
}
