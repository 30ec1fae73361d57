package googleai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"outcall-server/internal/observability"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiModel = "gemini-1.5-flash"

// Client generates replies and summaries using Gemini.
type Client struct {
	apiKey string
	logger *observability.Logger
}

func NewClient(apiKey string, logger *observability.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Google AI API key is required")
	}
	return &Client{apiKey: apiKey, logger: logger}, nil
}

// ChatMessage is one prior exchange handed to GenerateChat.
type ChatMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

// SummaryResult is the structured call summary returned by SummarizeConversation.
type SummaryResult struct {
	Summary   string `json:"summary"`
	NextSteps string `json:"next_steps"`
	Sentiment string `json:"sentiment"`
}

// GenerateChat produces the next assistant reply for the given history.
func (c *Client) GenerateChat(ctx context.Context, systemPrompt string, history []ChatMessage) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(geminiModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	chat := model.StartChat()
	var prompt genai.Part = genai.Text("Hello")
	if len(history) > 0 {
		for _, m := range history[:len(history)-1] {
			role := "user"
			if m.Role == "assistant" {
				role = "model" // Gemini SDK expects "model"
			}
			chat.History = append(chat.History, &genai.Content{
				Role:  role,
				Parts: []genai.Part{genai.Text(m.Content)},
			})
		}
		prompt = genai.Text(history[len(history)-1].Content)
	}

	resp, err := chat.SendMessage(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no reply returned from Gemini")
	}

	part, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response format")
	}
	return strings.TrimSpace(string(part)), nil
}

const summarizePrompt = `Summarize this phone call between a roofing company agent and a homeowner.
Respond with JSON only, in the shape:
{"summary": "...", "next_steps": "...", "sentiment": "positive|neutral|negative"}

Call transcript:
%s`

// SummarizeConversation produces a structured summary of a finished call.
func (c *Client) SummarizeConversation(ctx context.Context, transcript string) (SummaryResult, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return SummaryResult{}, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(geminiModel)
	resp, err := model.GenerateContent(ctx, genai.Text(fmt.Sprintf(summarizePrompt, transcript)))
	if err != nil {
		return SummaryResult{}, fmt.Errorf("failed to generate summary: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return SummaryResult{}, fmt.Errorf("no summary returned from Gemini")
	}

	part, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return SummaryResult{}, fmt.Errorf("unexpected response format")
	}

	content := strings.TrimSpace(string(part))
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var result SummaryResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &result); err != nil {
		return SummaryResult{}, fmt.Errorf("failed to parse summary JSON: %w", err)
	}
	return result, nil
}
