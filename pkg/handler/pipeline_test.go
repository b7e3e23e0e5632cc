package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"

	"studychat/pkg/llm"
	"studychat/pkg/store/memory"
	"studychat/pkg/study"
	"studychat/pkg/upload"
)

type fakeClient struct {
	mu       sync.Mutex
	answer   string
	err      error
	received [][]llm.Message
}

func (f *fakeClient) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	f.received = append(f.received, messages)
	f.mu.Unlock()
	return f.answer, f.err
}

func (f *fakeClient) Provider() string { return "fake" }

func (f *fakeClient) lastMessages(t *testing.T) []llm.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.received) == 0 {
		t.Fatal("model was never invoked")
	}
	return f.received[len(f.received)-1]
}

type fakeUploader struct {
	url string
	err error
}

func (f fakeUploader) Upload(ctx context.Context, data []byte, path, contentType string) (string, error) {
	return f.url, f.err
}

type typingRecorder struct {
	mu     sync.Mutex
	events []bool
}

func (r *typingRecorder) SetTyping(ownerID, chatID string, typing bool) {
	r.mu.Lock()
	r.events = append(r.events, typing)
	r.mu.Unlock()
}

func pngPayload(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestPipeline(client llm.Client, up *fakeUploader, refs *study.RefSource, sig Signaler) (*Pipeline, *memory.Store) {
	st := memory.NewStore(memory.Options{})
	router, _ := llm.NewRouter(map[string]llm.Client{llm.ProfileFast: client})
	var uploader upload.Uploader
	if up != nil {
		uploader = *up
	}
	return NewPipeline(st, router, uploader, refs, sig, Options{
		HistoryWindow: 10,
		ImageMaxDim:   100,
		ImageQuality:  80,
	}), st
}

func TestSendTextOnlyPersistsBothTurns(t *testing.T) {
	client := &fakeClient{answer: "Photosynthesis converts light into chemical energy, per Biology Grade 12."}
	refs := study.NewRefSource([]string{"Biology Grade 12.pdf"}, "")
	p, st := newTestPipeline(client, nil, refs, nil)

	res, err := p.Send(context.Background(), SendRequest{
		OwnerID:  "u1",
		Question: "What is photosynthesis?",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.ChatID == "" {
		t.Fatal("expected a created chat id")
	}
	if res.Source != study.SourceTextbook || res.SourceBook != "Biology Grade 12.pdf" {
		t.Errorf("classification = %s/%q", res.Source, res.SourceBook)
	}
	if res.Language != study.LanguageEnglish {
		t.Errorf("language = %s, want en", res.Language)
	}

	turns, err := st.ListTurns(context.Background(), "u1", res.ChatID, 0)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("persisted turns = %d, want 2", len(turns))
	}
	if turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Errorf("roles = %s, %s", turns[0].Role, turns[1].Role)
	}
	if turns[1].Source != "textbook" || turns[1].SourceBook != "Biology Grade 12.pdf" {
		t.Errorf("assistant labels = %s/%q", turns[1].Source, turns[1].SourceBook)
	}
}

func TestSendRejectsEmptyPayload(t *testing.T) {
	p, _ := newTestPipeline(&fakeClient{answer: "x"}, nil, nil, nil)

	if _, err := p.Send(context.Background(), SendRequest{OwnerID: "u1", Question: "   "}); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestSendModelFailureSkipsAssistantTurn(t *testing.T) {
	client := &fakeClient{err: errors.New("backend unavailable")}
	rec := &typingRecorder{}
	p, st := newTestPipeline(client, nil, nil, rec)

	res, err := p.Send(context.Background(), SendRequest{OwnerID: "u1", Question: "hello"})
	if err == nil {
		t.Fatal("expected model error to surface")
	}

	turns, _ := st.ListTurns(context.Background(), "u1", res.ChatID, 0)
	if len(turns) != 1 || turns[0].Role != "user" {
		t.Fatalf("turns after failure = %+v, want only the user turn", turns)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 2 || !rec.events[0] || rec.events[1] {
		t.Errorf("typing events = %v, want [true false]", rec.events)
	}
}

func TestSendUploadFailureFallsBackToInline(t *testing.T) {
	client := &fakeClient{answer: "It shows a plant cell."}
	up := &fakeUploader{err: errors.New("bucket down")}
	p, st := newTestPipeline(client, up, nil, nil)

	res, err := p.Send(context.Background(), SendRequest{
		OwnerID:   "u1",
		Question:  "What is in this picture?",
		ImageData: pngPayload(t),
	})
	if err != nil {
		t.Fatalf("upload failure must not surface: %v", err)
	}

	turns, _ := st.ListTurns(context.Background(), "u1", res.ChatID, 0)
	if !strings.HasPrefix(turns[0].MediaURI, "data:") {
		t.Errorf("persisted media uri = %q, want inline data URI", turns[0].MediaURI)
	}
}

func TestSendUploadSuccessPersistsURLModelGetsInline(t *testing.T) {
	client := &fakeClient{answer: "A diagram."}
	up := &fakeUploader{url: "https://storage.googleapis.com/b/img.jpg"}
	p, st := newTestPipeline(client, up, nil, nil)

	res, err := p.Send(context.Background(), SendRequest{
		OwnerID:   "u1",
		Question:  "Explain this diagram",
		ImageData: pngPayload(t),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	turns, _ := st.ListTurns(context.Background(), "u1", res.ChatID, 0)
	if turns[0].MediaURI != up.url {
		t.Errorf("persisted media uri = %q, want uploaded url", turns[0].MediaURI)
	}

	msgs := client.lastMessages(t)
	last := msgs[len(msgs)-1]
	if !last.HasMedia() {
		t.Fatal("model message lost its image")
	}
	for _, b := range last.Content {
		if b.Type == llm.BlockTypeMedia && strings.HasPrefix(b.Media.URI, "http") {
			t.Error("model received the uploaded url instead of the inline payload")
		}
	}
}

func TestSendArabicQuestionGetsArabicPrompt(t *testing.T) {
	client := &fakeClient{answer: "الخلية هي وحدة البناء."}
	p, _ := newTestPipeline(client, nil, study.NewRefSource(nil, ""), nil)

	res, err := p.Send(context.Background(), SendRequest{OwnerID: "u1", Question: "ما هي الخلية؟"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Language != study.LanguageArabic {
		t.Errorf("language = %s, want ar", res.Language)
	}

	msgs := client.lastMessages(t)
	if msgs[0].Role != llm.RoleSystem {
		t.Fatal("expected a system message")
	}
	if !strings.ContainsFunc(msgs[0].TextContent(), func(r rune) bool { return r >= 0x0600 && r <= 0x06FF }) {
		t.Error("system prompt is not in Arabic")
	}
}

func TestSendHistoryExcludesCurrentQuestion(t *testing.T) {
	client := &fakeClient{answer: "ok"}
	p, _ := newTestPipeline(client, nil, nil, nil)
	ctx := context.Background()

	res, err := p.Send(ctx, SendRequest{OwnerID: "u1", Question: "first question"})
	if err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if _, err := p.Send(ctx, SendRequest{OwnerID: "u1", ChatID: res.ChatID, Question: "second question"}); err != nil {
		t.Fatalf("second Send: %v", err)
	}

	msgs := client.lastMessages(t)
	count := 0
	for _, m := range msgs {
		if strings.Contains(m.TextContent(), "second question") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("current question appears %d times, want 1", count)
	}
}

type blockingClient struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingClient) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	b.entered <- struct{}{}
	<-b.release
	return "done", nil
}

func (b *blockingClient) Provider() string { return "blocking" }

func TestSendSameConversationIsSingleFlight(t *testing.T) {
	client := &blockingClient{entered: make(chan struct{}, 3), release: make(chan struct{})}
	p, st := newTestPipeline(client, nil, nil, nil)
	ctx := context.Background()

	chatID, err := st.CreateConversation(ctx, "u1", "seed")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	otherID, err := st.CreateConversation(ctx, "u1", "other")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	done := make(chan error, 2)
	go func() {
		_, err := p.Send(ctx, SendRequest{OwnerID: "u1", ChatID: chatID, Question: "first"})
		done <- err
	}()
	<-client.entered // first send is now inside the model call

	if _, err := p.Send(ctx, SendRequest{OwnerID: "u1", ChatID: chatID, Question: "second"}); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent send err = %v, want ErrBusy", err)
	}

	// A different conversation is not held back by the guard.
	go func() {
		_, err := p.Send(ctx, SendRequest{OwnerID: "u1", ChatID: otherID, Question: "elsewhere"})
		done <- err
	}()
	<-client.entered

	close(client.release)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Errorf("send completed with error: %v", err)
		}
	}

	// Completion releases the guard; the release channel is closed so
	// this call passes straight through the model.
	if _, err := p.Send(ctx, SendRequest{OwnerID: "u1", ChatID: chatID, Question: "third"}); err != nil {
		t.Errorf("send after completion: %v", err)
	}
}

func TestSendMediaOnlySeedsPlaceholderTitle(t *testing.T) {
	client := &fakeClient{answer: "A plant."}
	p, st := newTestPipeline(client, nil, nil, nil)

	res, err := p.Send(context.Background(), SendRequest{OwnerID: "u1", ImageData: pngPayload(t)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	convos, err := st.ListConversations(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	var title string
	for _, c := range convos {
		if c.ID == res.ChatID {
			title = c.Title
		}
	}
	if title != "Image" {
		t.Errorf("title = %q, want Image placeholder", title)
	}
}

func TestApologyIsLocalized(t *testing.T) {
	if !strings.Contains(Apology(study.LanguageArabic), "عذراً") {
		t.Error("Arabic apology missing")
	}
	if !strings.Contains(Apology(study.LanguageEnglish), "Sorry") {
		t.Error("English apology missing")
	}
}
