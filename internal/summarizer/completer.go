package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"bird_whisperer/internal/config"
)

const maxTokens = 1024

// NewCompleter returns the Completer for provider.
func NewCompleter(ctx context.Context, provider, modelName, apiKey string) (Completer, error) {
	switch provider {
	case config.ProviderAnthropic:
		return NewAnthropic(apiKey, modelName), nil
	case config.ProviderOpenAI:
		return NewOpenAI(apiKey, modelName), nil
	case config.ProviderGoogle:
		return NewGoogle(ctx, apiKey, modelName)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// Anthropic completes prompts with the Claude Messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic completer.
func NewAnthropic(apiKey, modelName string) *Anthropic {
	client := anthropic.NewClient(anthropicoption.WithAPIKey(apiKey))
	return &Anthropic{client: &client, model: modelName}
}

// Complete implements Completer.
func (a *Anthropic) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no response from anthropic")
	}
	return b.String(), nil
}

// OpenAI completes prompts with the Chat Completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI completer.
func NewOpenAI(apiKey, modelName string) *OpenAI {
	client := openai.NewClient(openaioption.WithAPIKey(apiKey))
	return &OpenAI{client: &client, model: modelName}
}

// Complete implements Completer.
func (o *OpenAI) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

// Google completes prompts with the Gemini API.
type Google struct {
	client *genai.Client
	model  string
}

// NewGoogle creates a Gemini completer.
func NewGoogle(ctx context.Context, apiKey, modelName string) (*Google, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Google{client: client, model: modelName}, nil
}

// Complete implements Completer.
func (g *Google) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("no response from gemini")
	}
	return text, nil
}
