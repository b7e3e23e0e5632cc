package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"studychat/pkg/handler"
	"studychat/pkg/llm"
	"studychat/pkg/store/memory"
	"studychat/pkg/study"
)

type staticClient struct {
	answer string
}

func (s staticClient) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	return s.answer, nil
}

func (s staticClient) Provider() string { return "static" }

type capturingClient struct {
	answer   string
	received []llm.Message
}

func (c *capturingClient) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	c.received = messages
	return c.answer, nil
}

func (c *capturingClient) Provider() string { return "capturing" }

func newTestChannel(t *testing.T, answer string) (*Channel, *memory.Store) {
	t.Helper()
	st := memory.NewStore(memory.Options{})
	router, err := llm.NewRouter(map[string]llm.Client{llm.ProfileFast: staticClient{answer: answer}})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	refs := study.NewRefSource([]string{"Physics Grade 11.pdf"}, "")
	ch := NewChannel(Config{Port: 0}, st, router, refs)
	ch.SetPipeline(handler.NewPipeline(st, router, nil, refs, ch, handler.Options{HistoryWindow: 10}))
	return ch, st
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChatEndpointAnswers(t *testing.T) {
	ch, _ := newTestChannel(t, "Newton's second law is covered in Physics Grade 11.")
	rec := postJSON(t, ch.Handler(), "/api/chat", `{"question":"What is F=ma?"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if res.Answer == "" {
		t.Error("empty answer")
	}
	if res.Source != "textbook" || res.SourceBook != "Physics Grade 11.pdf" {
		t.Errorf("classification = %s/%q", res.Source, res.SourceBook)
	}
	if res.Language != "en" {
		t.Errorf("language = %s, want en", res.Language)
	}
}

func TestChatEndpointForwardsHistoryToModel(t *testing.T) {
	client := &capturingClient{answer: "It is the same plant."}
	st := memory.NewStore(memory.Options{})
	router, err := llm.NewRouter(map[string]llm.Client{llm.ProfileFast: client})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	ch := NewChannel(Config{Port: 0}, st, router, study.NewRefSource(nil, ""))

	body := `{"question":"and in this image?","history":[
		{"role":"user","content":"look at this","imageData":"data:image/png;base64,AAAA"},
		{"role":"assistant","content":"A fern."}
	]}`
	rec := postJSON(t, ch.Handler(), "/api/chat", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// system + 2 history turns + pending question
	if len(client.received) != 4 {
		t.Fatalf("model received %d messages, want 4", len(client.received))
	}
	first := client.received[1]
	if first.Role != llm.RoleUser || first.TextContent() != "look at this" {
		t.Errorf("history turn = %s %q", first.Role, first.TextContent())
	}
	if !first.HasMedia() {
		t.Error("history image never reached the model")
	}
	for _, b := range first.Content {
		if b.Type == llm.BlockTypeMedia && b.Media.MIMEType != "image/png" {
			t.Errorf("history image mime = %q, want image/png", b.Media.MIMEType)
		}
	}
	if second := client.received[2]; second.Role != llm.RoleAssistant || second.TextContent() != "A fern." {
		t.Errorf("assistant turn = %s %q", second.Role, second.TextContent())
	}
}

func TestChatEndpointRejectsEmptyQuestion(t *testing.T) {
	ch, _ := newTestChannel(t, "unused")
	rec := postJSON(t, ch.Handler(), "/api/chat", `{"question":"   "}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var res errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if res.Error == "" {
		t.Error("error field missing")
	}
}

func TestChatEndpointRejectsMalformedBody(t *testing.T) {
	ch, _ := newTestChannel(t, "unused")
	rec := postJSON(t, ch.Handler(), "/api/chat", `{"question":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAskEndpointPersistsConversation(t *testing.T) {
	ch, st := newTestChannel(t, "Gravity pulls objects together.")
	rec := postJSON(t, ch.Handler(), "/api/ask", `{"ownerId":"u1","question":"What is gravity?"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res askResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if res.ChatID == "" {
		t.Fatal("missing chatId")
	}

	turns, err := st.ListTurns(context.Background(), "u1", res.ChatID, 0)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("persisted turns = %d, want 2", len(turns))
	}
}

func TestAskEndpointRequiresOwner(t *testing.T) {
	ch, _ := newTestChannel(t, "unused")
	rec := postJSON(t, ch.Handler(), "/api/ask", `{"question":"hello"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConversationManagementEndpoints(t *testing.T) {
	ch, st := newTestChannel(t, "ok")
	h := ch.Handler()
	ctx := context.Background()

	chatID, err := st.CreateConversation(ctx, "u1", "seed question")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/conversations?owner=u1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), chatID) {
		t.Errorf("listing does not mention %s: %s", chatID, rec.Body.String())
	}

	rec = postJSON(t, h, "/api/conversations/rename", `{"ownerId":"u1","chatId":"`+chatID+`","title":"Renamed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d", rec.Code)
	}
	convos, _ := st.ListConversations(ctx, "u1")
	if len(convos) != 1 || convos[0].Title != "Renamed" {
		t.Errorf("title after rename = %+v", convos)
	}

	rec = postJSON(t, h, "/api/conversations/rename", `{"ownerId":"u1","chatId":"missing","title":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("rename missing status = %d, want 404", rec.Code)
	}

	rec = postJSON(t, h, "/api/conversations/delete", `{"ownerId":"u1","chatId":"`+chatID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if convos, _ := st.ListConversations(ctx, "u1"); len(convos) != 0 {
		t.Errorf("conversations after delete = %+v", convos)
	}
}

func TestEveryResponseCarriesRequestID(t *testing.T) {
	ch, _ := newTestChannel(t, "ok")
	h := ch.Handler()

	first := postJSON(t, h, "/api/chat", `{"question":"hi"}`)
	second := postJSON(t, h, "/api/chat", `{"question":"hi again"}`)

	a, b := first.Header().Get("X-Request-ID"), second.Header().Get("X-Request-ID")
	if a == "" || b == "" {
		t.Fatal("missing X-Request-ID header")
	}
	if a == b {
		t.Errorf("request ids must differ, both %q", a)
	}
}

func TestBooksEndpoint(t *testing.T) {
	ch, st := newTestChannel(t, "ok")
	st.AddBook("u1", "Chemistry Grade 10.pdf")

	req := httptest.NewRequest(http.MethodGet, "/api/books?owner=u1", nil)
	rec := httptest.NewRecorder()
	ch.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Chemistry Grade 10.pdf") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
