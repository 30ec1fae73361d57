package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"outcall-server/internal/observability"

	"github.com/gorilla/websocket"
	openaisdk "github.com/openai/openai-go"
	openaiOption "github.com/openai/openai-go/option"
)

const openAIRealtimeURL = "wss://api.openai.com/v1/realtime?intent=transcription"

// RealtimeTranscriptionConfig holds configuration for a transcription session.
type RealtimeTranscriptionConfig struct {
	Model    string // e.g. "gpt-4o-transcribe", "whisper-1"
	Language string // ISO-639-1 code, e.g. "en"
	Prompt   string
	VAD      bool // Enable server VAD
}

// TranscriptionResult represents a partial or final transcription from OpenAI.
type TranscriptionResult struct {
	Text       string
	Confidence float64
	IsFinal    bool
	Err        error
}

// SummaryResult is the structured call summary returned by SummarizeConversation.
type SummaryResult struct {
	Summary   string `json:"summary"`
	NextSteps string `json:"next_steps"`
	Sentiment string `json:"sentiment"`
}

// ChatMessage is one prior exchange handed to GenerateChat.
type ChatMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

type Client struct {
	apiKey string
	logger *observability.Logger
}

func NewClient(apiKey string, logger *observability.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return &Client{apiKey: apiKey, logger: logger}, nil
}

// StartRealtimeTranscription opens a websocket, creates a transcription
// session, streams audio from audioStream, and returns a channel of results.
// The returned channel closes when audioStream closes or the context is done.
func (c *Client) StartRealtimeTranscription(ctx context.Context, audioStream <-chan []byte, cfg RealtimeTranscriptionConfig) (<-chan TranscriptionResult, error) {
	dialer := websocket.Dialer{}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.apiKey)

	conn, _, err := dialer.DialContext(ctx, openAIRealtimeURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to OpenAI realtime endpoint: %w", err)
	}

	sessionReq := map[string]interface{}{
		"type": "transcription_session.update",
		"session": map[string]interface{}{
			"input_audio_format": "pcm16",
			"input_audio_transcription": map[string]string{
				"model":    cfg.Model,
				"prompt":   cfg.Prompt,
				"language": cfg.Language,
			},
		},
	}
	if cfg.VAD {
		sessionReq["session"].(map[string]interface{})["turn_detection"] = map[string]interface{}{
			"type":                "server_vad",
			"threshold":           0.5,
			"prefix_padding_ms":   300,
			"silence_duration_ms": 500,
		}
	}
	if err := conn.WriteJSON(sessionReq); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send session update: %w", err)
	}

	results := make(chan TranscriptionResult, 100)

	// Reader: translate realtime events into results.
	go func() {
		defer close(results)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					results <- TranscriptionResult{Err: fmt.Errorf("realtime read failed: %w", err)}
				}
				return
			}
			var event map[string]interface{}
			if err := json.Unmarshal(msg, &event); err != nil {
				continue
			}
			typeStr, _ := event["type"].(string)
			switch typeStr {
			case "conversation.item.input_audio_transcription.delta":
				delta, _ := event["delta"].(string)
				results <- TranscriptionResult{Text: delta, IsFinal: false}
			case "conversation.item.input_audio_transcription.completed":
				transcript, _ := event["transcript"].(string)
				confidence := 1.0
				if logprobs, ok := event["confidence"].(float64); ok {
					confidence = logprobs
				}
				results <- TranscriptionResult{Text: transcript, Confidence: confidence, IsFinal: true}
			}
		}
	}()

	// Writer: forward audio chunks until the stream or context ends.
	go func() {
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-audioStream:
				if !ok {
					return
				}
				appendEvent := map[string]interface{}{
					"type":  "input_audio_buffer.append",
					"audio": base64.StdEncoding.EncodeToString(chunk),
				}
				if err := conn.WriteJSON(appendEvent); err != nil {
					c.logger.Error(ctx, "Failed to send audio chunk", err)
					return
				}
			}
		}
	}()

	return results, nil
}

// SynthesizeSpeech uses OpenAI's TTS API to synthesize speech from text.
func (c *Client) SynthesizeSpeech(ctx context.Context, text string, voice string) ([]byte, error) {
	url := "https://api.openai.com/v1/audio/speech"
	jsonBody := map[string]interface{}{
		"model":           "tts-1",
		"voice":           voice, // e.g., "alloy", "echo", "fable", "onyx", "nova", "shimmer"
		"input":           text,
		"response_format": "pcm",
	}
	bodyBytes, err := json.Marshal(jsonBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI TTS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OpenAI TTS error: %s", string(respBody))
	}

	return io.ReadAll(resp.Body)
}

// GenerateChat produces the next assistant reply for the given history.
func (c *Client) GenerateChat(ctx context.Context, systemPrompt string, history []ChatMessage) (string, error) {
	client := openaisdk.NewClient(openaiOption.WithAPIKey(c.apiKey))

	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openaisdk.SystemMessage(systemPrompt))
	for _, m := range history {
		if m.Role == "assistant" {
			messages = append(messages, openaisdk.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openaisdk.UserMessage(m.Content))
		}
	}

	resp, err := client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Messages: messages,
		Model:    openaisdk.ChatModelGPT4oMini,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

const summarizePrompt = `Summarize this phone call between a roofing company agent and a homeowner.
Respond with JSON only, in the shape:
{"summary": "...", "next_steps": "...", "sentiment": "positive|neutral|negative"}`

// SummarizeConversation produces a structured summary of a finished call.
func (c *Client) SummarizeConversation(ctx context.Context, transcript string) (SummaryResult, error) {
	client := openaisdk.NewClient(openaiOption.WithAPIKey(c.apiKey))

	resp, err := client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(summarizePrompt),
			openaisdk.UserMessage(transcript),
		},
		Model: openaisdk.ChatModelGPT4oMini,
	})
	if err != nil {
		return SummaryResult{}, fmt.Errorf("summary completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return SummaryResult{}, fmt.Errorf("summary completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	// The model occasionally wraps JSON in a code fence.
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var result SummaryResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &result); err != nil {
		return SummaryResult{}, fmt.Errorf("failed to parse summary JSON: %w", err)
	}
	return result, nil
}
