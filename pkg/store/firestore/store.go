// Package firestore persists conversations in Cloud Firestore under
// users/{owner}/chats/{chat}/messages, mirroring the append-only log
// contract of store.Store with native snapshot subscriptions.
package firestore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"studychat/pkg/store"
)

// Store is a Firestore-backed implementation of store.Store.
type Store struct {
	client *firestore.Client
	limits store.Limits
}

// NewStore creates a Firestore store for the given GCP project.
func NewStore(ctx context.Context, projectID string, limits store.Limits) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for the Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, limits: limits.WithDefaults()}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) chatsCol(ownerID string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(ownerID).Collection("chats")
}

func (s *Store) chatDoc(ownerID, chatID string) *firestore.DocumentRef {
	return s.chatsCol(ownerID).Doc(chatID)
}

func (s *Store) messagesCol(ownerID, chatID string) *firestore.CollectionRef {
	return s.chatDoc(ownerID, chatID).Collection("messages")
}

func (s *Store) booksCol(ownerID string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(ownerID).Collection("books")
}

type chatDoc struct {
	Title         string    `firestore:"title"`
	Preview       string    `firestore:"preview"`
	CreatedAt     time.Time `firestore:"created_at"`
	UpdatedAt     time.Time `firestore:"updated_at"`
	LastMessageAt time.Time `firestore:"last_message_at"`
}

type messageDoc struct {
	Role       string    `firestore:"role"`
	Content    string    `firestore:"content"`
	MediaURI   string    `firestore:"media_uri,omitempty"`
	MediaMIME  string    `firestore:"media_mime,omitempty"`
	Source     string    `firestore:"source,omitempty"`
	SourceBook string    `firestore:"source_book,omitempty"`
	Lang       string    `firestore:"lang,omitempty"`
	CreatedAt  time.Time `firestore:"created_at"`
}

type bookDoc struct {
	FileName string `firestore:"file_name"`
}

func (s *Store) CreateConversation(ctx context.Context, ownerID, seedText string) (string, error) {
	now := time.Now()
	title := s.limits.SeedTitle(seedText)
	if strings.TrimSpace(title) == "" {
		title = "New chat"
	}

	ref, _, err := s.chatsCol(ownerID).Add(ctx, chatDoc{
		Title:         title,
		Preview:       s.limits.PreviewOf(seedText),
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}
	return ref.ID, nil
}

func (s *Store) AppendTurn(ctx context.Context, ownerID, chatID string, rec store.TurnRecord) (store.TurnRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	ref, _, err := s.messagesCol(ownerID, chatID).Add(ctx, messageDoc{
		Role:       rec.Role,
		Content:    rec.Content,
		MediaURI:   rec.MediaURI,
		MediaMIME:  rec.MediaMIME,
		Source:     rec.Source,
		SourceBook: rec.SourceBook,
		Lang:       rec.Lang,
		CreatedAt:  rec.CreatedAt,
	})
	if err != nil {
		return store.TurnRecord{}, fmt.Errorf("appending turn: %w", err)
	}
	rec.ID = ref.ID

	updates := []firestore.Update{
		{Path: "updated_at", Value: rec.CreatedAt},
		{Path: "last_message_at", Value: rec.CreatedAt},
	}
	if rec.Content != "" {
		updates = append(updates, firestore.Update{Path: "preview", Value: s.limits.PreviewOf(rec.Content)})
	}
	if rec.Role == "user" && strings.TrimSpace(rec.Content) != "" {
		updates = append(updates, firestore.Update{Path: "title", Value: s.limits.SeedTitle(rec.Content)})
	}
	if _, err := s.chatDoc(ownerID, chatID).Update(ctx, updates); err != nil {
		// Metadata refresh is best effort; the turn itself is durable.
		slog.Warn("Failed to refresh conversation metadata", "chat", chatID, "error", err)
	}

	return rec, nil
}

func (s *Store) ListTurns(ctx context.Context, ownerID, chatID string, limit int) ([]store.TurnRecord, error) {
	iter := s.messagesCol(ownerID, chatID).OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []store.TurnRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing turns: %w", err)
		}
		out = append(out, decodeTurn(doc))
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) SubscribeTurns(ctx context.Context, ownerID, chatID string) (<-chan []store.TurnRecord, error) {
	snaps := s.messagesCol(ownerID, chatID).OrderBy("created_at", firestore.Asc).Snapshots(ctx)
	ch := make(chan []store.TurnRecord, 1)

	go func() {
		defer snaps.Stop()
		defer close(ch)

		for {
			snap, err := snaps.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled {
					slog.Error("Turn subscription ended", "chat", chatID, "error", err)
				}
				return
			}

			var out []store.TurnRecord
			docs := snap.Documents
			for {
				doc, err := docs.Next()
				if err == iterator.Done {
					break
				}
				if err != nil {
					slog.Error("Reading turn snapshot", "chat", chatID, "error", err)
					return
				}
				out = append(out, decodeTurn(doc))
			}

			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func (s *Store) ListConversations(ctx context.Context, ownerID string) ([]store.Conversation, error) {
	iter := s.chatsCol(ownerID).OrderBy("last_message_at", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var out []store.Conversation
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing conversations: %w", err)
		}
		var cd chatDoc
		if err := doc.DataTo(&cd); err != nil {
			return nil, fmt.Errorf("decoding conversation %s: %w", doc.Ref.ID, err)
		}
		out = append(out, store.Conversation{
			ID:            doc.Ref.ID,
			Title:         cd.Title,
			Preview:       cd.Preview,
			CreatedAt:     cd.CreatedAt,
			UpdatedAt:     cd.UpdatedAt,
			LastMessageAt: cd.LastMessageAt,
		})
	}
	return out, nil
}

func (s *Store) RenameConversation(ctx context.Context, ownerID, chatID, title string) error {
	_, err := s.chatDoc(ownerID, chatID).Update(ctx, []firestore.Update{
		{Path: "title", Value: title},
		{Path: "updated_at", Value: time.Now()},
	})
	if status.Code(err) == codes.NotFound {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("renaming conversation: %w", err)
	}
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, ownerID, chatID string) error {
	// Delete the turn log first, then the chat document.
	iter := s.messagesCol(ownerID, chatID).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("deleting turns: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("deleting turn %s: %w", doc.Ref.ID, err)
		}
	}

	_, err := s.chatDoc(ownerID, chatID).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

func (s *Store) ListBooks(ctx context.Context, ownerID string) ([]store.Book, error) {
	iter := s.booksCol(ownerID).Documents(ctx)
	defer iter.Stop()

	var out []store.Book
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing books: %w", err)
		}
		var bd bookDoc
		if err := doc.DataTo(&bd); err != nil {
			return nil, fmt.Errorf("decoding book %s: %w", doc.Ref.ID, err)
		}
		out = append(out, store.Book{ID: doc.Ref.ID, FileName: bd.FileName})
	}
	return out, nil
}

func decodeTurn(doc *firestore.DocumentSnapshot) store.TurnRecord {
	var md messageDoc
	if err := doc.DataTo(&md); err != nil {
		slog.Warn("Skipping undecodable turn", "id", doc.Ref.ID, "error", err)
		return store.TurnRecord{ID: doc.Ref.ID}
	}
	return store.TurnRecord{
		ID:         doc.Ref.ID,
		Role:       md.Role,
		Content:    md.Content,
		MediaURI:   md.MediaURI,
		MediaMIME:  md.MediaMIME,
		Source:     md.Source,
		SourceBook: md.SourceBook,
		Lang:       md.Lang,
		CreatedAt:  md.CreatedAt,
	}
}
