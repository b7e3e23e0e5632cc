package llm

import (
	"errors"
	"strings"
)

// Role constants for the provider-neutral message vocabulary.
// Providers map "assistant" to their own model-side role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentBlock Type constants define the supported content block formats
// used throughout the dispatch pipeline.
const (
	BlockTypeText  = "text"  // Plain text content
	BlockTypeMedia = "media" // Image or document attachment
)

// ErrEmptyBlock is returned when a content block would carry no payload.
// Rejecting these at construction removes emptiness checks downstream.
var ErrEmptyBlock = errors.New("empty content block")

//----------------------------------------------------------------
// Message
//----------------------------------------------------------------

// Message represents one role-tagged entry of an assembled request.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a closed tagged variant: either a text block or a
// media block. Construct through NewTextBlock / NewMediaBlock only.
type ContentBlock struct {
	Type string `json:"type"`

	// Text payload (type: "text")
	Text string `json:"text,omitempty"`

	// Media payload (type: "media")
	Media *MediaSource `json:"media,omitempty"`
}

// MediaSource carries a transport-ready media reference: either a
// data: URI with embedded base64 payload or a fetchable http(s) URL.
// MIMEType is always resolved to a concrete value.
type MediaSource struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type"`
}

// Inline reports whether the media travels as embedded data rather
// than a fetchable address.
func (m *MediaSource) Inline() bool {
	return !strings.HasPrefix(m.URI, "http://") && !strings.HasPrefix(m.URI, "https://")
}

// Payload returns the base64 payload of an inline data: URI.
// The second return value is false for URL media or a malformed URI.
func (m *MediaSource) Payload() (string, bool) {
	if !m.Inline() {
		return "", false
	}
	if !strings.HasPrefix(m.URI, "data:") {
		// Bare base64 with no prefix
		return m.URI, true
	}
	idx := strings.Index(m.URI, ",")
	if idx < 0 {
		return "", false
	}
	return m.URI[idx+1:], true
}

// NewTextBlock builds a text block. Whitespace-only text is rejected.
func NewTextBlock(text string) (ContentBlock, error) {
	if strings.TrimSpace(text) == "" {
		return ContentBlock{}, ErrEmptyBlock
	}
	return ContentBlock{Type: BlockTypeText, Text: text}, nil
}

// NewMediaBlock builds a media block from a transport URI and a
// resolved MIME type. Both must be non-empty.
func NewMediaBlock(uri, mimeType string) (ContentBlock, error) {
	if uri == "" || mimeType == "" {
		return ContentBlock{}, ErrEmptyBlock
	}
	return ContentBlock{Type: BlockTypeMedia, Media: &MediaSource{URI: uri, MIMEType: mimeType}}, nil
}

// Append adds a block to the message.
func (m *Message) Append(block ContentBlock) {
	m.Content = append(m.Content, block)
}

// TextContent concatenates all text blocks of the message.
func (m *Message) TextContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// HasMedia reports whether the message carries any media block.
func (m *Message) HasMedia() bool {
	for _, block := range m.Content {
		if block.Type == BlockTypeMedia {
			return true
		}
	}
	return false
}
