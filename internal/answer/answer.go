// Package answer synthesizes a short natural-language answer from the top
// fused results with a chat model.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/prompts"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/fusion"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/resilience"
)

const (
	// ResultsUsed is how many fused results feed the context.
	ResultsUsed    = 3
	snippetRunes   = 100
	answerName     = "AI Response"
	NoAnswerPhrase = "I don't have enough information to answer that question."
)

const promptTemplate = `
You are an AI assistant tasked with answering questions based on the provided context.
The context consists of relevant chunks from different documents, sorted by relevance score.
Use this information to answer the user's query comprehensively but concisely.

If you cannot find the answer in the context, say "{{.no_answer}}"

Context:
{{.context}}

User Query: {{.query}}

Please provide a clear and focused answer, synthesizing information from the most relevant chunks.

AI Response:
`

// Source is one document the answer drew on, with its best used score.
type Source struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// Response is the answer record returned next to the search results.
type Response struct {
	Path               *string     `json:"path"`
	Name               string      `json:"name"`
	ContentSnippet     string      `json:"content_snippet"`
	ContentLength      int         `json:"content_length"`
	FullContent        string      `json:"full_content"`
	HighlightedContent string      `json:"highlighted_content"`
	SourcesUsed        []Source    `json:"sources_used"`
	UsedChunks         []UsedChunk `json:"used_chunks"`
}

type Options struct {
	Temperature  float64
	MaxTokens    int
	ContextChars int
	Timeout      time.Duration
	Breaker      resilience.CircuitBreakerConfig
}

type Generator struct {
	model   llms.Model
	prompt  prompts.PromptTemplate
	opts    Options
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewOpenAIModel returns a chat model for an OpenAI-compatible endpoint.
func NewOpenAIModel(cfg config.LLMConfig) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.Token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating chat model: %w", err)
	}
	return model, nil
}

func OptionsFromConfig(cfg config.LLMConfig) Options {
	return Options{
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		ContextChars: cfg.ContextChars,
		Timeout:      cfg.Timeout,
	}
}

func NewGenerator(model llms.Model, opts Options) *Generator {
	return &Generator{
		model:   model,
		prompt:  prompts.NewPromptTemplate(promptTemplate, []string{"no_answer", "context", "query"}),
		opts:    opts,
		breaker: resilience.NewCircuitBreaker("llm", opts.Breaker),
		logger:  slog.Default().With("component", "answer"),
	}
}

// Generate answers query from the first ResultsUsed results.
func (g *Generator) Generate(ctx context.Context, query string, results []fusion.Output) (*Response, error) {
	if len(results) > ResultsUsed {
		results = results[:ResultsUsed]
	}
	contextText, used := PrepareContext(results, g.opts.ContextChars)
	prompt, err := g.prompt.Format(map[string]any{
		"no_answer": NoAnswerPhrase,
		"context":   contextText,
		"query":     query,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	var text string
	err = g.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, g.opts.Timeout, "llm", func(ctx context.Context) error {
			var err error
			text, err = llms.GenerateFromSinglePrompt(ctx, g.model, prompt,
				llms.WithTemperature(g.opts.Temperature),
				llms.WithMaxTokens(g.opts.MaxTokens),
			)
			return err
		})
	})
	if err != nil {
		g.logger.Error("answer generation failed", "query", query, "error", err)
		return nil, fmt.Errorf("%w: llm: %w", apperrors.ErrProviderFailed, err)
	}
	return format(strings.TrimSpace(text), used), nil
}

func format(text string, used []UsedChunk) *Response {
	seen := make(map[string]bool)
	sources := make([]Source, 0)
	for _, c := range used {
		if seen[c.DocPath] {
			continue
		}
		seen[c.DocPath] = true
		sources = append(sources, Source{Path: c.DocPath, Score: c.Score})
	}
	if used == nil {
		used = []UsedChunk{}
	}
	runes := []rune(text)
	snip := text
	if len(runes) > snippetRunes {
		snip = string(runes[:snippetRunes])
	}
	return &Response{
		Name:               answerName,
		ContentSnippet:     snip + "...",
		ContentLength:      len(runes),
		FullContent:        text,
		HighlightedContent: text,
		SourcesUsed:        sources,
		UsedChunks:         used,
	}
}
