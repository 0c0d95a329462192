// Package backend contains the inference provider adapters used to execute work orders.
package backend

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Kind identifies an inference provider. The values match the tags stored on model rows.
type Kind string

const (
	KindCloudChat     Kind = "chatgpt"
	KindLocalGenerate Kind = "ollama"
)

// DefaultRequestTimeout bounds every outbound provider call.
const DefaultRequestTimeout = 30 * time.Second

// Request is the provider-neutral input of a generation call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Credential   string
}

// Adapter translates a Request into a provider-specific HTTP call.
type Adapter interface {
	Kind() Kind
	// RequiresCredential reports whether calls without a credential must be refused.
	RequiresCredential() bool
	Generate(ctx context.Context, req Request) (string, error)
}

// Registry selects the adapter for a provider kind.
type Registry struct {
	adapters map[Kind]Adapter
}

// NewRegistry builds a registry from the given adapters. Later adapters replace earlier ones of the same kind.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Kind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

// Lookup returns the adapter registered for kind.
func (r *Registry) Lookup(kind Kind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}

// Kinds lists the registered provider kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Generate dispatches req to the adapter registered for kind. Unknown kinds and missing
// credentials yield a NotConfigured error without any network call.
func (r *Registry) Generate(ctx context.Context, kind Kind, req Request) (string, error) {
	adapter, ok := r.adapters[kind]
	if !ok {
		return "", NewNotConfigured(kind, "unsupported provider")
	}
	if adapter.RequiresCredential() && strings.TrimSpace(req.Credential) == "" {
		return "", NewNotConfigured(kind, "missing credential")
	}
	return adapter.Generate(ctx, req)
}
