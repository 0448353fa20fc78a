package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/huddlehq/huddle/backend/internal/config"
	"github.com/huddlehq/huddle/backend/pkg/logger"
)

// systemInstruction frames every assistant reply sent into a project room.
const systemInstruction = "You are a highly skilled software engineer embedded in a project chat. " +
	"Answer questions precisely and concisely, with code examples where they help."

// Generator produces assistant replies for @ai mentions. The room hub treats
// failures as soft: they are logged and nothing reaches the clients.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AIService dispatches prompts to the configured language model provider.
type AIService struct {
	config *config.AIConfig
}

func NewAIService(cfg *config.AIConfig) *AIService {
	return &AIService{config: cfg}
}

// Generate sends the prompt to the configured provider and returns the
// generated text.
func (s *AIService) Generate(ctx context.Context, prompt string) (string, error) {
	switch s.config.Provider {
	case "anthropic":
		return s.callAnthropic(ctx, prompt)
	case "ollama":
		return s.callOllama(ctx, prompt)
	case "gemini":
		return s.callGemini(ctx, prompt)
	default:
		// openai and OpenAI-compatible endpoints
		return s.callOpenAI(ctx, prompt)
	}
}

// callGemini handles Google Gemini using the native SDK.
func (s *AIService) callGemini(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: s.config.APIKey,
	})
	if err != nil {
		return "", fmt.Errorf("gemini client error: %w", err)
	}

	model := s.config.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	content := resp.Text()
	if content == "" {
		return "", errors.New("gemini returned no text")
	}
	return content, nil
}

// callOpenAI handles OpenAI and OpenAI-compatible APIs.
func (s *AIService) callOpenAI(ctx context.Context, prompt string) (string, error) {
	clientConfig := openai.DefaultConfig(s.config.APIKey)
	if s.config.BaseURL != "" {
		clientConfig.BaseURL = s.config.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	model := s.config.Model
	if model == "" {
		model = openai.GPT4o
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// callAnthropic handles the Anthropic API using the native SDK.
func (s *AIService) callAnthropic(ctx context.Context, prompt string) (string, error) {
	opts := []option.RequestOption{option.WithAPIKey(s.config.APIKey)}
	if s.config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.config.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	model := s.config.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemInstruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	if content == "" {
		return "", errors.New("anthropic returned no text")
	}
	return content, nil
}

// callOllama handles a local Ollama endpoint using the native SDK.
func (s *AIService) callOllama(ctx context.Context, prompt string) (string, error) {
	baseURL := s.config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := s.config.Model
	if model == "" {
		model = "llama3"
	}

	var content strings.Builder
	err = client.Chat(ctx, &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: prompt},
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama API error: %w", err)
	}

	result := content.String()
	if result == "" {
		return "", errors.New("ollama returned no text")
	}

	logger.Debug().Int("chars", len(result)).Msg("ollama reply")
	return result, nil
}
