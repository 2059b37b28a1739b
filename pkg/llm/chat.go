package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/ragcore/internal/models"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	SystemTemplate string
	BaseURL        string // Ollama server URL
}

// ChatEngine is an engine that uses an LLM to generate grounded answers.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine backed by Ollama.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	llm, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(llm, config)
}

// NewWithModel creates a ChatEngine around an already constructed model.
func NewWithModel(llm llms.Model, config ChatConfig) (*ChatEngine, error) {
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "You are an assistant that answers questions using the provided documents. " +
			"Base your answer on the document content and say so when the documents do not cover the question."
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// BuildContext concatenates titled excerpts of the retrieved chunks.
func BuildContext(results []models.SearchResult) string {
	if len(results) == 0 {
		return "No related documents were found."
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[Document %d]\nTitle: %s\nContent: %s\n", i+1, r.Title, r.Content)
	}
	return b.String()
}

func BuildPrompt(query, context string) string {
	return fmt.Sprintf("Answer the question using the documents below.\n\nDocuments:\n%s\nQuestion: %s\n\nAnswer:", context, query)
}

func (ce *ChatEngine) messages(prompt string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}
}

func (ce *ChatEngine) options() []llms.CallOption {
	return []llms.CallOption{
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
	}
}

// Generate calls the model once without streaming.
func (ce *ChatEngine) Generate(ctx context.Context, prompt string) (string, models.Usage, error) {
	resp, err := ce.llm.GenerateContent(ctx, ce.messages(prompt), ce.options()...)
	if err != nil {
		return "", models.Usage{}, fmt.Errorf("%w: %v", models.ErrLLMProvider, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", models.Usage{}, fmt.Errorf("%w: empty response", models.ErrLLMProvider)
	}

	choice := resp.Choices[0]
	return choice.Content, usageFromInfo(choice.GenerationInfo), nil
}

// Stream invokes the model in streaming mode and hands each delta to onDelta
// in emission order. An error from onDelta stops consumption of the
// provider stream and is returned as is.
func (ce *ChatEngine) Stream(ctx context.Context, prompt string, onDelta func(string) error) error {
	var sinkErr error
	opts := append(ce.options(), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		if err := onDelta(string(chunk)); err != nil {
			sinkErr = err
			return err
		}
		return nil
	}))

	_, err := ce.llm.GenerateContent(ctx, ce.messages(prompt), opts...)
	switch {
	case sinkErr != nil:
		return sinkErr
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("%w: %v", models.ErrLLMProvider, err)
	}
}

func usageFromInfo(info map[string]any) models.Usage {
	usage := models.Usage{
		PromptTokens:     intFromInfo(info, "PromptTokens"),
		CompletionTokens: intFromInfo(info, "CompletionTokens"),
		TotalTokens:      intFromInfo(info, "TotalTokens"),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func intFromInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
