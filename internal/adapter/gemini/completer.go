package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"podrag/internal/retrieval"
)

// Completer produces chat completions with a Gemini generative model.
type Completer struct {
	client *genai.Client
	model  string
}

func NewCompleter(ctx context.Context, apiKey, model string) (*Completer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Completer{client: client, model: model}, nil
}

// normalizeRole maps history roles onto the two roles Gemini accepts.
// MCP clients commonly send OpenAI-style "assistant" for model turns.
func normalizeRole(role string) string {
	switch role {
	case "model", "assistant":
		return "model"
	default:
		return "user"
	}
}

// Complete sends one chat request built from the system prompt, prior turns
// and the final user message, and returns the model's text response. A fresh
// chat session is created per call; nothing is retained between requests.
func (c *Completer) Complete(ctx context.Context, system string, history []retrieval.Turn, message string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	session := model.StartChat()
	for _, turn := range history {
		session.History = append(session.History, &genai.Content{
			Role:  normalizeRole(turn.Role),
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("completion returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}
