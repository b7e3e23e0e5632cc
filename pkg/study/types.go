// Package study implements the conversation assembly pipeline of the
// study-chat assistant: media normalization, history compaction,
// language-aware prompt composition, request assembly and answer
// source classification.
package study

import "strings"

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Language of a conversation.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

// SourceKind labels where an answer's information came from.
type SourceKind string

const (
	SourceTextbook SourceKind = "textbook"
	SourceWeb      SourceKind = "web"
)

// MediaKind distinguishes image and document attachments.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaDocument MediaKind = "document"
)

// MediaRef is a normalized media reference. MIMEType is always resolved
// to a concrete value before dispatch; Remote is true when the locator
// is a fetchable http(s) URL, otherwise the locator is inline data.
type MediaRef struct {
	Kind     MediaKind
	Locator  string
	Remote   bool
	MIMEType string
}

// URI returns the transport form of the reference: remote URLs and
// data: URIs pass through unchanged, bare base64 payloads are wrapped
// into a data: URI with the resolved MIME type.
func (m MediaRef) URI() string {
	if m.Remote || strings.HasPrefix(m.Locator, "data:") {
		return m.Locator
	}
	return "data:" + m.MIMEType + ";base64," + m.Locator
}

// Turn is one speaker's contribution within a conversation: text and/or
// one media attachment. A turn with neither is never materialized; it
// is dropped during compaction.
type Turn struct {
	Speaker Speaker
	Text    string
	Media   *MediaRef
}

// Empty reports whether the turn carries neither non-blank text nor media.
func (t Turn) Empty() bool {
	return strings.TrimSpace(t.Text) == "" && t.Media == nil
}

// PendingTurn is the user turn being dispatched. Unlike history turns it
// may carry an image and, independently, a document attachment.
type PendingTurn struct {
	Text     string
	Image    *MediaRef
	Document *MediaRef
}

// Empty reports whether the pending turn carries no content at all.
func (t PendingTurn) Empty() bool {
	return strings.TrimSpace(t.Text) == "" && t.Image == nil && t.Document == nil
}

// HasMedia reports whether the pending turn carries an attachment.
func (t PendingTurn) HasMedia() bool {
	return t.Image != nil || t.Document != nil
}

// Classification is the final labeled result consumed by persistence:
// the answer text, its detected source, the matched reference title if
// any, and the conversation language.
type Classification struct {
	Answer     string
	Source     SourceKind
	SourceBook string
	Language   Language
}
