package gpt

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"habit-bot/internal/models"
)

type Client struct {
	client *openai.Client
	model  string
}

func NewClient(apiKey string) *Client {
	return &Client{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
	}
}

// NewClientWithConfig is used to point the client at another endpoint.
func NewClientWithConfig(cfg openai.ClientConfig) *Client {
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.GPT4oMini,
	}
}

func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// CoachingNote asks the model for two or three encouraging sentences about the week.
func (c *Client) CoachingNote(ctx context.Context, ws models.WeeklyStats) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a friendly habit coach. Reply with two or three short sentences of plain text, no lists and no markdown.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(ws),
			},
		},
		MaxTokens:   200,
		Temperature: 0.7,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from GPT API")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildPrompt(ws models.WeeklyStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "My habit results for %s to %s:\n",
		ws.WeekStart.Format("2006-01-02"), ws.WeekEnd.Format("2006-01-02"))
	for _, h := range ws.Habits {
		fmt.Fprintf(&b, "- %s: done %d of %d days (%.1f%%), current streak %d days\n",
			h.Name, h.CompletedDays, h.TotalDays, h.CompletionRate, h.Streak)
	}
	fmt.Fprintf(&b, "Overall: %.1f%% (%s).\n", ws.CompletionRate, ws.Tier)
	b.WriteString("Point out what went well and suggest one small thing to focus on next week.")
	return b.String()
}
