package web

import (
	"errors"
	"log/slog"
	"net/http"

	"studychat/pkg/handler"
	"studychat/pkg/llm"
	"studychat/pkg/store"
	"studychat/pkg/study"
)

type chatRequest struct {
	Question     string        `json:"question"`
	SystemPrompt string        `json:"systemPrompt,omitempty"`
	ImageData    string        `json:"imageData,omitempty"`
	DocumentData string        `json:"documentData,omitempty"`
	Language     string        `json:"language,omitempty"`
	History      []historyTurn `json:"history,omitempty"`
}

type historyTurn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	ImageData string `json:"imageData,omitempty"`
}

type chatResponse struct {
	Answer     string `json:"answer"`
	Source     string `json:"source"`
	SourceBook string `json:"sourceBook,omitempty"`
	Language   string `json:"language"`
}

type askRequest struct {
	OwnerID      string `json:"ownerId"`
	ChatID       string `json:"chatId,omitempty"`
	Question     string `json:"question"`
	ImageData    string `json:"imageData,omitempty"`
	DocumentData string `json:"documentData,omitempty"`
	Language     string `json:"language,omitempty"`
	Deep         bool   `json:"deep,omitempty"`
	SearchOnline bool   `json:"expandSearchOnline,omitempty"`
}

type askResponse struct {
	ChatID     string `json:"chatId"`
	Answer     string `json:"answer"`
	Source     string `json:"source"`
	SourceBook string `json:"sourceBookName,omitempty"`
	Language   string `json:"lang"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// handleChat answers a single question without touching persistence.
// The caller supplies any history it wants in context.
func (c *Channel) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	pending := study.PendingTurn{Text: req.Question}
	if req.ImageData != "" {
		ref := study.NormalizeImage(req.ImageData)
		pending.Image = &ref
	}
	if req.DocumentData != "" {
		ref := study.NormalizeDocument(req.DocumentData)
		pending.Document = &ref
	}
	if pending.Empty() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question or media is required"})
		return
	}

	lang := study.ResolveLanguage(study.Language(req.Language), req.Question)
	titles, refText := c.refs.Get()

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = study.ComposeSystemPrompt(lang, titles, refText)
	}

	history := make([]study.Turn, 0, len(req.History))
	for _, h := range req.History {
		turn := study.Turn{
			Speaker: study.Speaker(h.Role),
			Text:    h.Content,
		}
		if h.ImageData != "" {
			ref := study.NormalizeImage(h.ImageData)
			turn.Media = &ref
		}
		history = append(history, turn)
	}
	history = study.Compact(history, study.DefaultHistoryWindow)

	messages := study.AssembleRequest(systemPrompt, history, pending)

	answer, err := c.router.Generate(r.Context(), llm.ProfileFast, messages)
	if err != nil {
		slog.Error("Stateless dispatch failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:   "model invocation failed",
			Message: handler.Apology(lang),
		})
		return
	}

	source, book := study.Classify(answer, titles, false)
	writeJSON(w, http.StatusOK, chatResponse{
		Answer:     answer,
		Source:     string(source),
		SourceBook: book,
		Language:   string(lang),
	})
}

// handleAsk runs the full orchestrated send: persistence, upload
// attempt, model call and labeled assistant turn.
func (c *Channel) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.OwnerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "ownerId is required"})
		return
	}

	res, err := c.pipeline.Send(r.Context(), handler.SendRequest{
		OwnerID:      req.OwnerID,
		ChatID:       req.ChatID,
		Question:     req.Question,
		ImageData:    req.ImageData,
		DocumentData: req.DocumentData,
		Language:     study.Language(req.Language),
		Deep:         req.Deep,
		SearchOnline: req.SearchOnline,
	})
	switch {
	case errors.Is(err, handler.ErrInvalidPayload):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question or media is required"})
		return
	case errors.Is(err, handler.ErrBusy):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "a send is already in flight"})
		return
	case err != nil:
		slog.Error("Send failed", "owner", req.OwnerID, "chat", res.ChatID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:   "model invocation failed",
			Message: handler.Apology(res.Language),
		})
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		ChatID:     res.ChatID,
		Answer:     res.Answer,
		Source:     string(res.Source),
		SourceBook: res.SourceBook,
		Language:   string(res.Language),
	})
}

func (c *Channel) handleListConversations(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "owner is required"})
		return
	}

	convos, err := c.store.ListConversations(r.Context(), ownerID)
	if err != nil {
		slog.Error("Listing conversations failed", "owner", ownerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "listing conversations failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convos})
}

type renameRequest struct {
	OwnerID string `json:"ownerId"`
	ChatID  string `json:"chatId"`
	Title   string `json:"title"`
}

func (c *Channel) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OwnerID == "" || req.ChatID == "" || req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "ownerId, chatId and title are required"})
		return
	}

	if err := c.store.RenameConversation(r.Context(), req.OwnerID, req.ChatID, req.Title); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, errorResponse{Error: "renaming conversation failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type deleteRequest struct {
	OwnerID string `json:"ownerId"`
	ChatID  string `json:"chatId"`
}

func (c *Channel) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OwnerID == "" || req.ChatID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "ownerId and chatId are required"})
		return
	}

	if err := c.store.DeleteConversation(r.Context(), req.OwnerID, req.ChatID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, errorResponse{Error: "deleting conversation failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Channel) handleListBooks(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "owner is required"})
		return
	}

	books, err := c.store.ListBooks(r.Context(), ownerID)
	if err != nil {
		slog.Error("Listing books failed", "owner", ownerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "listing books failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}
