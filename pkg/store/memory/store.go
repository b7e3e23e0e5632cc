// Package memory provides an in-memory Store used for local runs and
// tests. Subscriptions are fed synchronously on every append.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"studychat/pkg/store"
	"studychat/pkg/utils"
)

type conversation struct {
	meta  store.Conversation
	turns []store.TurnRecord
}

type subscriber struct {
	ownerID string
	chatID  string
	ch      chan []store.TurnRecord
}

// Options configure metadata limits and the subscriber channel buffer.
// Zero fields fall back to defaults.
type Options struct {
	Limits        store.Limits
	ChannelBuffer int
}

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu     sync.RWMutex
	chats  map[string]map[string]*conversation // ownerID -> chatID -> conversation
	books  map[string][]store.Book
	subs   []*subscriber
	limits store.Limits
	buffer int
}

// NewStore creates an empty in-memory store.
func NewStore(opts Options) *Store {
	if opts.ChannelBuffer <= 0 {
		opts.ChannelBuffer = 16
	}
	return &Store{
		chats:  make(map[string]map[string]*conversation),
		books:  make(map[string][]store.Book),
		limits: opts.Limits.WithDefaults(),
		buffer: opts.ChannelBuffer,
	}
}

func (s *Store) CreateConversation(ctx context.Context, ownerID, seedText string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := utils.GenerateID()
	now := time.Now()

	title := s.limits.SeedTitle(seedText)
	if strings.TrimSpace(title) == "" {
		title = "New chat"
	}

	if s.chats[ownerID] == nil {
		s.chats[ownerID] = make(map[string]*conversation)
	}
	s.chats[ownerID][id] = &conversation{
		meta: store.Conversation{
			ID:            id,
			Title:         title,
			Preview:       s.limits.PreviewOf(seedText),
			CreatedAt:     now,
			UpdatedAt:     now,
			LastMessageAt: now,
		},
	}
	return id, nil
}

func (s *Store) AppendTurn(ctx context.Context, ownerID, chatID string, rec store.TurnRecord) (store.TurnRecord, error) {
	s.mu.Lock()

	conv, ok := s.chats[ownerID][chatID]
	if !ok {
		s.mu.Unlock()
		return store.TurnRecord{}, store.ErrNotFound
	}

	if rec.ID == "" {
		rec.ID = utils.GenerateID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	conv.turns = append(conv.turns, rec)

	now := time.Now()
	conv.meta.UpdatedAt = now
	conv.meta.LastMessageAt = now
	if rec.Content != "" {
		conv.meta.Preview = s.limits.PreviewOf(rec.Content)
	}
	if rec.Role == "user" && strings.TrimSpace(rec.Content) != "" {
		conv.meta.Title = s.limits.SeedTitle(rec.Content)
	}

	// Notify under the lock so a concurrent unsubscribe cannot close
	// a channel mid-send. Sends are non-blocking; a slow subscriber
	// skips this snapshot and catches up on the next one.
	snapshot := append([]store.TurnRecord(nil), conv.turns...)
	for _, sub := range s.matchingSubs(ownerID, chatID) {
		select {
		case sub.ch <- snapshot:
		default:
		}
	}
	s.mu.Unlock()
	return rec, nil
}

func (s *Store) ListTurns(ctx context.Context, ownerID, chatID string, limit int) ([]store.TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.chats[ownerID][chatID]
	if !ok {
		return nil, store.ErrNotFound
	}

	turns := conv.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]store.TurnRecord(nil), turns...), nil
}

func (s *Store) SubscribeTurns(ctx context.Context, ownerID, chatID string) (<-chan []store.TurnRecord, error) {
	s.mu.Lock()

	conv, ok := s.chats[ownerID][chatID]
	if !ok {
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}

	sub := &subscriber{
		ownerID: ownerID,
		chatID:  chatID,
		ch:      make(chan []store.TurnRecord, s.buffer),
	}
	s.subs = append(s.subs, sub)
	// Replay current state as the first emission.
	sub.ch <- append([]store.TurnRecord(nil), conv.turns...)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		for i, cand := range s.subs {
			if cand == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch, nil
}

func (s *Store) ListConversations(ctx context.Context, ownerID string) ([]store.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Conversation
	for _, conv := range s.chats[ownerID] {
		out = append(out, conv.meta)
	}
	// Most recent activity first.
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (s *Store) RenameConversation(ctx context.Context, ownerID, chatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.chats[ownerID][chatID]
	if !ok {
		return store.ErrNotFound
	}
	conv.meta.Title = title
	conv.meta.UpdatedAt = time.Now()
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, ownerID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[ownerID][chatID]; !ok {
		return store.ErrNotFound
	}
	delete(s.chats[ownerID], chatID)
	return nil
}

func (s *Store) ListBooks(ctx context.Context, ownerID string) ([]store.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.Book(nil), s.books[ownerID]...), nil
}

// AddBook registers a reference title for an owner. Used by tests and
// local setups; the Firestore backend reads the books collection
// maintained by the upload surface instead.
func (s *Store) AddBook(ownerID, fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[ownerID] = append(s.books[ownerID], store.Book{ID: utils.GenerateID(), FileName: fileName})
}

func (s *Store) matchingSubs(ownerID, chatID string) []*subscriber {
	var out []*subscriber
	for _, sub := range s.subs {
		if sub.ownerID == ownerID && sub.chatID == chatID {
			out = append(out, sub)
		}
	}
	return out
}
