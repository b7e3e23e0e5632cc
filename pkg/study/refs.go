package study

import "sync"

// RefSource holds the reference material shared by all conversations:
// the configured book titles and the contextual reference text. It is
// safe for concurrent use; the config watcher replaces its content on
// hot reload while dispatches read it.
type RefSource struct {
	mu     sync.RWMutex
	titles []string
	text   string
}

// NewRefSource builds a RefSource seeded from configuration.
func NewRefSource(titles []string, text string) *RefSource {
	r := &RefSource{}
	r.Set(titles, text)
	return r
}

// Set replaces the reference material.
func (r *RefSource) Set(titles []string, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append([]string(nil), titles...)
	r.text = text
}

// Get returns a snapshot of the reference material.
func (r *RefSource) Get() ([]string, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.titles...), r.text
}
