package providers

import (
	"context"

	"outcall-server/internal/clients/googleai"
	"outcall-server/internal/voicecall/conversation"
)

// googleAIResponder generates replies and summaries with Gemini.
type googleAIResponder struct {
	client *googleai.Client
}

func (p *googleAIResponder) GenerateReply(ctx context.Context, systemPrompt string, history []conversation.Turn) (string, error) {
	msgs := make([]googleai.ChatMessage, 0, len(history))
	for _, t := range history {
		role := "user"
		if t.Role == conversation.RoleAgent {
			role = "assistant"
		}
		msgs = append(msgs, googleai.ChatMessage{Role: role, Content: t.Text})
	}

	reply, err := p.client.GenerateChat(ctx, systemPrompt, msgs)
	if err != nil {
		return "", NewProviderError("llm", "generate", err)
	}
	return reply, nil
}

func (p *googleAIResponder) Summarize(ctx context.Context, history []conversation.Turn) (conversation.Summary, error) {
	result, err := p.client.SummarizeConversation(ctx, transcriptText(history))
	if err != nil {
		return conversation.Summary{}, NewProviderError("llm", "summarize", err)
	}
	return conversation.Summary{
		Text:      result.Summary,
		NextSteps: result.NextSteps,
		Sentiment: result.Sentiment,
	}, nil
}
