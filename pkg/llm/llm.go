package llm

import (
	"context"
	"fmt"
)

// NoResponseText is returned when no known response-envelope shape
// yields a non-empty answer. The gateway never fails on an empty
// envelope; it degrades to this literal.
const NoResponseText = "No response received."

// Model profiles. The fast profile is the multimodal default; the deep
// profile is an alternate for plain-text questions that benefit from a
// stronger model.
const (
	ProfileFast = "fast"
	ProfileDeep = "deep"
)

// Client is the capability a provider adapter exposes: generate one
// plain-text answer from an ordered multi-turn message list.
//
// Errors are propagated unchanged to the caller. Retry, backoff and
// timeouts are deliberately not implemented at this layer.
type Client interface {
	// Generate invokes the remote endpoint and blocks until a response
	// or a failure is returned.
	Generate(ctx context.Context, messages []Message) (string, error)

	// Provider returns the adapter's provider name ("gemini", "openai", ...).
	Provider() string
}

// Router selects a Client by model profile. Unknown or unconfigured
// profiles fall back to the fast profile.
type Router struct {
	clients map[string]Client
}

// NewRouter builds a Router over a profile -> client map.
// The fast profile is mandatory.
func NewRouter(clients map[string]Client) (*Router, error) {
	if clients[ProfileFast] == nil {
		return nil, fmt.Errorf("no client configured for the %q profile", ProfileFast)
	}
	return &Router{clients: clients}, nil
}

// Generate dispatches the assembled request through the client bound
// to the given profile.
func (r *Router) Generate(ctx context.Context, profile string, messages []Message) (string, error) {
	client, ok := r.clients[profile]
	if !ok {
		client = r.clients[ProfileFast]
	}
	return client.Generate(ctx, messages)
}

// Client returns the adapter bound to a profile, if any.
func (r *Router) Client(profile string) (Client, bool) {
	c, ok := r.clients[profile]
	return c, ok
}
