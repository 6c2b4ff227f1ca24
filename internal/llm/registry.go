package llm

import (
	"context"
	"sync"
)

// ProviderHandler is the surface a registrable provider implements. Built-in
// providers and dynamically registered ones (e.g. GitHub Copilot) share it.
type ProviderHandler interface {
	// IsAvailable reports whether the provider can build executors right now
	// (credentials discoverable, service reachable enough to try).
	IsAvailable() bool
	// CreateExecutor builds an executor for the configuration. It may perform
	// asynchronous setup such as a token exchange.
	CreateExecutor(cfg NamedModelConfig) (Executor, error)
	// AvailableModels returns the currently known model catalog.
	AvailableModels() []ModelInfo
	// FetchAvailableModels refreshes the catalog from the provider.
	FetchAvailableModels(ctx context.Context) ([]ModelInfo, error)
	// DefaultBaseURL returns the provider's default endpoint.
	DefaultBaseURL() string
}

// providerRegistry is the process-wide provider table. Clear() exists for
// test isolation.
type providerRegistry struct {
	mu       sync.RWMutex
	handlers map[Provider]ProviderHandler
}

var registry = &providerRegistry{handlers: make(map[Provider]ProviderHandler)}

// RegisterProvider installs a handler for the given provider tag, replacing
// any previous registration.
func RegisterProvider(provider Provider, handler ProviderHandler) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.handlers[provider] = handler
}

// LookupProvider returns the registered handler for a provider tag.
func LookupProvider(provider Provider) (ProviderHandler, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	handler, ok := registry.handlers[provider]
	return handler, ok
}

// UnregisterProvider removes a handler. Idempotent.
func UnregisterProvider(provider Provider) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.handlers, provider)
}

// ClearProviders empties the registry. Intended for tests.
func ClearProviders() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.handlers = make(map[Provider]ProviderHandler)
}
