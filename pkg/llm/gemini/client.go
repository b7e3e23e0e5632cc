package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"studychat/pkg/llm"
)

// Client is a Gemini API adapter built on the official GenAI SDK.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini client for a single model and API key.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Client{
		client: client,
		model:  model,
	}, nil
}

func (c *Client) Provider() string {
	return "gemini"
}

// Generate implements llm.Client. Transport and provider errors are
// propagated unchanged; extraction of the answer never fails.
func (c *Client) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	contents, systemInstruction := c.convertMessages(messages)

	res, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	return extractText(res), nil
}

// extractText searches the known response-envelope shapes in descending
// order: structured candidate/content/parts text first, then the flat
// top-level text accessor. An empty envelope degrades to the fixed
// fallback literal rather than an error.
func extractText(res *genai.GenerateContentResponse) string {
	for _, cand := range res.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.Text != "" {
				return part.Text
			}
		}
	}
	if text := res.Text(); text != "" {
		return text
	}
	return llm.NoResponseText
}

// convertMessages converts the assembled message list to GenAI format.
// The system message, if present, becomes the SystemInstruction and is
// removed from the content list.
func (c *Client) convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			var parts []*genai.Part
			for _, block := range msg.Content {
				if block.Type == llm.BlockTypeText && block.Text != "" {
					parts = append(parts, &genai.Part{Text: block.Text})
				}
			}
			if len(parts) > 0 {
				systemInstruction = &genai.Content{Parts: parts}
			}
			continue
		}

		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		for _, block := range msg.Content {
			switch block.Type {
			case llm.BlockTypeText:
				if block.Text == "" {
					continue
				}
				parts = append(parts, &genai.Part{Text: block.Text})

			case llm.BlockTypeMedia:
				if part := convertMedia(block.Media); part != nil {
					parts = append(parts, part)
				}
			}
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{
				Role:  string(role),
				Parts: parts,
			})
		}
	}

	return contents, systemInstruction
}

// convertMedia maps a media source to a GenAI part: inline payloads
// become blobs, remote URLs become file references.
func convertMedia(media *llm.MediaSource) *genai.Part {
	if media == nil {
		return nil
	}

	if !media.Inline() {
		return &genai.Part{
			FileData: &genai.FileData{
				FileURI:  media.URI,
				MIMEType: media.MIMEType,
			},
		}
	}

	payload, ok := media.Payload()
	if !ok {
		slog.Warn("Skipping malformed inline media", "mime", media.MIMEType)
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		slog.Warn("Skipping undecodable inline media", "mime", media.MIMEType, "error", err)
		return nil
	}

	return &genai.Part{
		InlineData: &genai.Blob{
			MIMEType: media.MIMEType,
			Data:     data,
		},
	}
}
