package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderAdapter is the transport boundary: one implementation per
// backend, translating Request/Response to the provider's wire protocol.
// Adapters classify failures via the error taxonomy in this package so the
// retry layer can branch on them.
type ProviderAdapter interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Client routes requests to registered provider adapters by provider name.
type Client struct {
	mu       sync.RWMutex
	adapters map[string]ProviderAdapter
}

func NewClient() *Client {
	return &Client{adapters: map[string]ProviderAdapter{}}
}

func (c *Client) Register(a ProviderAdapter) {
	if a == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[strings.ToLower(a.Name())] = a
}

// Adapter returns the adapter registered under name, or nil.
func (c *Client) Adapter(name string) ProviderAdapter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.adapters[strings.ToLower(name)]
}

// Providers lists registered provider names, sorted.
func (c *Client) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.adapters))
	for name := range c.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// resolve picks the adapter for req.Provider. An empty provider is allowed
// when exactly one adapter is registered.
func (c *Client) resolve(provider string) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" {
		if len(c.adapters) == 1 {
			for _, a := range c.adapters {
				return a, nil
			}
		}
		return nil, &ConfigurationError{Message: fmt.Sprintf("provider is required (registered: %s)", strings.Join(c.providersLocked(), ", "))}
	}
	a, ok := c.adapters[p]
	if !ok {
		return nil, &ConfigurationError{Message: fmt.Sprintf("unknown provider %q (registered: %s)", provider, strings.Join(c.providersLocked(), ", "))}
	}
	return a, nil
}

func (c *Client) providersLocked() []string {
	out := make([]string, 0, len(c.adapters))
	for name := range c.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	a, err := c.resolve(req.Provider)
	if err != nil {
		return nil, err
	}
	return a.Complete(ctx, req)
}

func (c *Client) Stream(ctx context.Context, req Request) (Stream, error) {
	a, err := c.resolve(req.Provider)
	if err != nil {
		return nil, err
	}
	return a.Stream(ctx, req)
}

// EnvAdapterFactory inspects the process environment and returns an
// adapter when its provider is configured. The bool reports whether the
// factory applied; an error aborts client construction.
type EnvAdapterFactory func() (ProviderAdapter, bool, error)

var (
	envFactoriesMu sync.Mutex
	envFactories   []EnvAdapterFactory
)

// RegisterEnvAdapterFactory adds a factory consulted by NewFromEnv.
// Adapter packages call this from init.
func RegisterEnvAdapterFactory(f EnvAdapterFactory) {
	if f == nil {
		return
	}
	envFactoriesMu.Lock()
	defer envFactoriesMu.Unlock()
	envFactories = append(envFactories, f)
}

// NewFromEnv builds a Client from every registered env factory that
// reports itself configured.
func NewFromEnv() (*Client, error) {
	envFactoriesMu.Lock()
	factories := append([]EnvAdapterFactory{}, envFactories...)
	envFactoriesMu.Unlock()

	c := NewClient()
	registered := 0
	for _, f := range factories {
		a, ok, err := f()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		c.Register(a)
		registered++
	}
	if registered == 0 {
		return nil, &ConfigurationError{Message: "no provider adapters configured in environment"}
	}
	return c, nil
}

var (
	defaultClientMu   sync.Mutex
	defaultClientInit bool
	defaultClient     *Client
	defaultClientErr  error
)

// DefaultClient returns the process-wide client, building it lazily from
// the environment on first use.
func DefaultClient() (*Client, error) {
	defaultClientMu.Lock()
	defer defaultClientMu.Unlock()
	if !defaultClientInit {
		defaultClient, defaultClientErr = NewFromEnv()
		defaultClientInit = true
	}
	return defaultClient, defaultClientErr
}

// SetDefaultClient overrides the lazily initialized default client.
func SetDefaultClient(c *Client) {
	defaultClientMu.Lock()
	defer defaultClientMu.Unlock()
	defaultClient = c
	defaultClientErr = nil
	defaultClientInit = true
}
