// Package store defines the conversation persistence contract: an
// append-only, order-preserving turn log keyed by owner and
// conversation id, with live subscriptions driven by store change
// notifications.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// TurnRecord is one persisted turn of a conversation.
type TurnRecord struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"` // "user" | "assistant"
	Content    string    `json:"content"`
	MediaURI   string    `json:"media_uri,omitempty"` // uploaded URL or inline data URI
	MediaMIME  string    `json:"media_mime,omitempty"`
	Source     string    `json:"source,omitempty"`
	SourceBook string    `json:"source_book,omitempty"`
	Lang       string    `json:"lang,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Conversation is the metadata of one chat.
type Conversation struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Preview       string    `json:"preview"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Book is a reference title available to an owner's conversations.
type Book struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
}

// Store is the persistence collaborator of the dispatch pipeline.
// Writes are append-style; implementations must preserve insertion
// order within a conversation.
type Store interface {
	// CreateConversation creates a chat titled from the seed text and
	// returns its id.
	CreateConversation(ctx context.Context, ownerID, seedText string) (string, error)

	// AppendTurn appends a turn to the conversation log and refreshes
	// the conversation metadata (preview, title, timestamps).
	AppendTurn(ctx context.Context, ownerID, chatID string, rec TurnRecord) (TurnRecord, error)

	// ListTurns returns the ordered turn log, oldest first. A positive
	// limit keeps only the most recent turns.
	ListTurns(ctx context.Context, ownerID, chatID string, limit int) ([]TurnRecord, error)

	// SubscribeTurns emits the full ordered turn snapshot on every
	// change until the context is cancelled. The first emission is the
	// current state.
	SubscribeTurns(ctx context.Context, ownerID, chatID string) (<-chan []TurnRecord, error)

	// ListConversations returns the owner's chats, most recent activity first.
	ListConversations(ctx context.Context, ownerID string) ([]Conversation, error)

	// RenameConversation replaces a chat title.
	RenameConversation(ctx context.Context, ownerID, chatID, title string) error

	// DeleteConversation removes a chat and its turn log.
	DeleteConversation(ctx context.Context, ownerID, chatID string) error

	// ListBooks returns the owner's uploaded reference titles.
	ListBooks(ctx context.Context, ownerID string) ([]Book, error)
}

// Defaults for derived conversation metadata.
const (
	TitleLimit   = 50
	PreviewLimit = 80
)

// Limits bound the conversation metadata derived from turn content.
// Backends normalize a Limits value once at construction.
type Limits struct {
	Title   int
	Preview int
}

// WithDefaults replaces non-positive fields with the package defaults.
func (l Limits) WithDefaults() Limits {
	if l.Title <= 0 {
		l.Title = TitleLimit
	}
	if l.Preview <= 0 {
		l.Preview = PreviewLimit
	}
	return l
}

// SeedTitle derives a conversation title from its first message text.
func (l Limits) SeedTitle(seedText string) string {
	return Truncate(seedText, l.Title)
}

// PreviewOf derives the conversation preview from a turn's content.
func (l Limits) PreviewOf(content string) string {
	return Truncate(content, l.Preview)
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
