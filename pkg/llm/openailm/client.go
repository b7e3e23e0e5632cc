package openailm

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"

	"studychat/pkg/llm"
)

// Client is an adapter for OpenAI-compatible endpoints built on the
// official OpenAI Go SDK. It serves as the alternate provider behind
// the deep profile or as a drop-in replacement for the fast one.
type Client struct {
	client   *openai.Client
	provider string
	model    string
}

// NewClient creates a new OpenAI-compatible client.
func NewClient(provider, apiKey, model, baseURL string) (*Client, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

// Generate implements llm.Client using the Responses API.
func (c *Client) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: c.convertMessages(messages),
		},
	}

	res, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}

	if text := res.OutputText(); text != "" {
		return text, nil
	}
	return llm.NoResponseText, nil
}

func (c *Client) convertMessages(messages []llm.Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.TextContent(),
				responses.EasyInputMessageRoleSystem,
			))
		case llm.RoleUser:
			if m.HasMedia() {
				var contentParts responses.ResponseInputMessageContentListParam
				for _, block := range m.Content {
					switch block.Type {
					case llm.BlockTypeText:
						contentParts = append(contentParts, responses.ResponseInputContentUnionParam{
							OfInputText: &responses.ResponseInputTextParam{
								Text: block.Text,
							},
						})
					case llm.BlockTypeMedia:
						if block.Media == nil {
							continue
						}
						if block.Media.MIMEType == "application/pdf" {
							contentParts = append(contentParts, responses.ResponseInputContentUnionParam{
								OfInputFile: &responses.ResponseInputFileParam{
									FileURL: param.NewOpt(block.Media.URI),
								},
							})
							continue
						}
						contentParts = append(contentParts, responses.ResponseInputContentUnionParam{
							OfInputImage: &responses.ResponseInputImageParam{
								Detail:   responses.ResponseInputImageDetailAuto,
								ImageURL: param.NewOpt(block.Media.URI),
							},
						})
					}
				}
				items = append(items, responses.ResponseInputItemParamOfMessage(
					contentParts,
					responses.EasyInputMessageRoleUser,
				))
			} else {
				items = append(items, responses.ResponseInputItemParamOfMessage(
					m.TextContent(),
					responses.EasyInputMessageRoleUser,
				))
			}
		case llm.RoleAssistant:
			if text := m.TextContent(); text != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(
					text,
					responses.EasyInputMessageRoleAssistant,
				))
			}
		}
	}

	return items
}
