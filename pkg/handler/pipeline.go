// Package handler runs the send pipeline: it validates a dispatch
// request, ensures the conversation exists, attempts the media upload,
// persists the user turn, invokes the model and persists the labeled
// assistant turn. Stages that fail before the model call surface their
// error; a failed upload never does.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"studychat/pkg/llm"
	"studychat/pkg/store"
	"studychat/pkg/study"
	"studychat/pkg/upload"
	"studychat/pkg/utils"
)

var (
	// ErrInvalidPayload reports a request with neither a question nor media.
	ErrInvalidPayload = errors.New("request carries no question and no media")

	// ErrBusy reports that a send for the same conversation is already
	// in flight.
	ErrBusy = errors.New("a send for this conversation is already in flight")
)

// Signaler broadcasts transient conversation state, such as the typing
// indicator, to connected clients. Implementations must not block.
type Signaler interface {
	SetTyping(ownerID, chatID string, typing bool)
}

// Options bound the pipeline's history window, media processing and
// model call budget.
type Options struct {
	HistoryWindow int
	ImageMaxDim   int
	ImageQuality  int
	LLMTimeout    time.Duration
}

// Pipeline wires the dispatch stages together.
type Pipeline struct {
	store    store.Store
	router   *llm.Router
	uploader upload.Uploader
	refs     *study.RefSource
	signaler Signaler
	opts     Options

	inflight sync.Map
}

// NewPipeline creates a pipeline. uploader and signaler may be nil;
// a nil uploader means media is always inlined.
func NewPipeline(st store.Store, router *llm.Router, uploader upload.Uploader, refs *study.RefSource, signaler Signaler, opts Options) *Pipeline {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = study.DefaultHistoryWindow
	}
	return &Pipeline{
		store:    st,
		router:   router,
		uploader: uploader,
		refs:     refs,
		signaler: signaler,
		opts:     opts,
	}
}

// SendRequest is one user dispatch.
type SendRequest struct {
	OwnerID      string
	ChatID       string // empty starts a new conversation
	Question     string
	ImageData    string // base64 payload, data: URI or remote URL
	DocumentData string // base64 PDF payload or remote URL
	Language     study.Language
	Deep         bool // route to the deep profile when eligible
	SearchOnline bool
}

// SendResult is the completed dispatch.
type SendResult struct {
	ChatID         string
	Answer         string
	Source         study.SourceKind
	SourceBook     string
	Language       study.Language
	UserTurnID      string
	AssistantTurnID string
}

// Send runs the full pipeline for one request.
func (p *Pipeline) Send(ctx context.Context, req SendRequest) (SendResult, error) {
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
		return SendResult{}, ErrInvalidPayload
	}

	lang := study.ResolveLanguage(req.Language, req.Question)

	chatID, err := p.ensureChat(ctx, req.OwnerID, req.ChatID, req.Question, lang, pending)
	if err != nil {
		return SendResult{}, err
	}

	key := req.OwnerID + "/" + chatID
	if _, loaded := p.inflight.LoadOrStore(key, struct{}{}); loaded {
		return SendResult{ChatID: chatID}, ErrBusy
	}
	defer p.inflight.Delete(key)

	if p.signaler != nil {
		p.signaler.SetTyping(req.OwnerID, chatID, true)
		defer p.signaler.SetTyping(req.OwnerID, chatID, false)
	}

	// History is read before the user turn lands so the new question
	// is not duplicated into its own context.
	history, err := p.loadHistory(ctx, req.OwnerID, chatID)
	if err != nil {
		return SendResult{ChatID: chatID}, err
	}

	persistURI := p.uploadImage(ctx, req.OwnerID, chatID, pending.Image)

	userRec, err := p.persistUserTurn(ctx, req.OwnerID, chatID, pending, persistURI, lang)
	if err != nil {
		return SendResult{ChatID: chatID}, err
	}

	titles, refText := p.references()
	systemPrompt := study.ComposeSystemPrompt(lang, titles, refText)
	messages := study.AssembleRequest(systemPrompt, history, pending)

	answer, err := p.invoke(ctx, messages, req.Deep && !pending.HasMedia())
	if err != nil {
		return SendResult{ChatID: chatID, UserTurnID: userRec.ID, Language: lang},
			fmt.Errorf("model invocation: %w", err)
	}

	source, book := study.Classify(answer, titles, req.SearchOnline)

	asstRec, err := p.store.AppendTurn(ctx, req.OwnerID, chatID, store.TurnRecord{
		Role:       string(study.SpeakerAssistant),
		Content:    answer,
		Source:     string(source),
		SourceBook: book,
		Lang:       string(lang),
	})
	if err != nil {
		return SendResult{ChatID: chatID, UserTurnID: userRec.ID, Language: lang},
			fmt.Errorf("persisting assistant turn: %w", err)
	}

	return SendResult{
		ChatID:          chatID,
		Answer:          answer,
		Source:          source,
		SourceBook:      book,
		Language:        lang,
		UserTurnID:      userRec.ID,
		AssistantTurnID: asstRec.ID,
	}, nil
}

func (p *Pipeline) ensureChat(ctx context.Context, ownerID, chatID, question string, lang study.Language, pending study.PendingTurn) (string, error) {
	if chatID != "" {
		return chatID, nil
	}
	seed := strings.TrimSpace(question)
	if seed == "" {
		seed = mediaPlaceholder(lang, pending)
	}
	id, err := p.store.CreateConversation(ctx, ownerID, seed)
	if err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}
	return id, nil
}

func (p *Pipeline) loadHistory(ctx context.Context, ownerID, chatID string) ([]study.Turn, error) {
	records, err := p.store.ListTurns(ctx, ownerID, chatID, p.opts.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	turns := make([]study.Turn, 0, len(records))
	for _, rec := range records {
		turns = append(turns, recordToTurn(rec))
	}
	return study.Compact(turns, p.opts.HistoryWindow), nil
}

// uploadImage shrinks and uploads an inline image, returning the public
// URL to persist. It returns "" when there is nothing to upload or the
// attempt fails; callers then persist the inline URI instead. The model
// always receives the original inline payload regardless.
func (p *Pipeline) uploadImage(ctx context.Context, ownerID, chatID string, img *study.MediaRef) string {
	if img == nil || img.Remote || p.uploader == nil {
		return ""
	}

	data, err := upload.Shrink(img.Locator, upload.ShrinkOptions{
		MaxDim:  p.opts.ImageMaxDim,
		Quality: p.opts.ImageQuality,
	})
	if err != nil {
		slog.Warn("Image shrink failed, keeping inline payload", "chat", chatID, "error", err)
		return ""
	}

	path := fmt.Sprintf("chats/%s/%s/%simage.jpg", ownerID, chatID, utils.GenerateTimestampPrefix())
	res := upload.Attempt(ctx, p.uploader, data, path, "image/jpeg")
	if !res.Ok {
		return ""
	}
	return res.URL
}

func (p *Pipeline) persistUserTurn(ctx context.Context, ownerID, chatID string, pending study.PendingTurn, uploadedURL string, lang study.Language) (store.TurnRecord, error) {
	rec := store.TurnRecord{
		Role:    string(study.SpeakerUser),
		Content: pending.Text,
		Lang:    string(lang),
	}
	switch {
	case pending.Image != nil && uploadedURL != "":
		rec.MediaURI = uploadedURL
		rec.MediaMIME = pending.Image.MIMEType
	case pending.Image != nil:
		rec.MediaURI = pending.Image.URI()
		rec.MediaMIME = pending.Image.MIMEType
	case pending.Document != nil:
		rec.MediaURI = pending.Document.URI()
		rec.MediaMIME = pending.Document.MIMEType
	}

	out, err := p.store.AppendTurn(ctx, ownerID, chatID, rec)
	if err != nil {
		return store.TurnRecord{}, fmt.Errorf("persisting user turn: %w", err)
	}
	return out, nil
}

func (p *Pipeline) references() ([]string, string) {
	if p.refs == nil {
		return nil, ""
	}
	return p.refs.Get()
}

func (p *Pipeline) invoke(ctx context.Context, messages []llm.Message, deep bool) (string, error) {
	if p.opts.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.LLMTimeout)
		defer cancel()
	}
	profile := llm.ProfileFast
	if deep {
		profile = llm.ProfileDeep
	}
	return p.router.Generate(ctx, profile, messages)
}

func recordToTurn(rec store.TurnRecord) study.Turn {
	t := study.Turn{
		Speaker: study.Speaker(rec.Role),
		Text:    rec.Content,
	}
	if rec.MediaURI != "" {
		kind := study.MediaImage
		if rec.MediaMIME == "application/pdf" {
			kind = study.MediaDocument
		}
		t.Media = &study.MediaRef{
			Kind:     kind,
			Locator:  rec.MediaURI,
			Remote:   strings.HasPrefix(rec.MediaURI, "http://") || strings.HasPrefix(rec.MediaURI, "https://"),
			MIMEType: rec.MediaMIME,
		}
	}
	return t
}

func mediaPlaceholder(lang study.Language, pending study.PendingTurn) string {
	if lang == study.LanguageArabic {
		if pending.Document != nil && pending.Image == nil {
			return "مستند"
		}
		return "صورة"
	}
	if pending.Document != nil && pending.Image == nil {
		return "Document"
	}
	return "Image"
}

// Apology returns the localized failure message transports show when
// the model call fails. The assistant turn itself is never persisted.
func Apology(lang study.Language) string {
	if lang == study.LanguageArabic {
		return "عذراً، حدث خطأ أثناء معالجة سؤالك. يرجى المحاولة مرة أخرى."
	}
	return "Sorry, something went wrong while answering. Please try again."
}
