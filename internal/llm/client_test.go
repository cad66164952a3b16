package llm

import (
	"context"
	"testing"
)

func TestClient_RegisterAndResolve(t *testing.T) {
	c := NewClient()
	c.Register(&envFakeAdapter{name: "OpenAI"})
	c.Register(&envFakeAdapter{name: "anthropic"})

	if got := c.Providers(); len(got) != 2 || got[0] != "anthropic" || got[1] != "openai" {
		t.Fatalf("providers: %v", got)
	}
	if c.Adapter("openai") == nil || c.Adapter("OPENAI") == nil {
		t.Fatalf("adapter lookup should be case-insensitive")
	}
	if c.Adapter("mistral") != nil {
		t.Fatalf("unregistered adapter returned")
	}
}

func TestClient_EmptyProviderSingleAdapterFallback(t *testing.T) {
	c := NewClient()
	c.Register(&envFakeAdapter{name: "solo"})

	resp, err := c.Complete(context.Background(), Request{Model: "m", Contents: []Content{UserContent("hi")}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text() != "ok:solo" {
		t.Fatalf("text: got %q", resp.Text())
	}
}

func TestClient_EmptyProviderAmbiguous(t *testing.T) {
	c := NewClient()
	c.Register(&envFakeAdapter{name: "a"})
	c.Register(&envFakeAdapter{name: "b"})

	_, err := c.Complete(context.Background(), Request{Model: "m", Contents: []Content{UserContent("hi")}})
	if err == nil {
		t.Fatalf("empty provider with two adapters should fail")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Fatalf("got %T want ConfigurationError", err)
	}
}

func TestClient_UnknownProvider(t *testing.T) {
	c := NewClient()
	c.Register(&envFakeAdapter{name: "a"})

	_, err := c.Stream(context.Background(), Request{Model: "m", Provider: "nope"})
	if err == nil {
		t.Fatalf("unknown provider should fail")
	}
}

func TestNewFromEnv_NoFactoriesConfigured(t *testing.T) {
	envFactoriesMu.Lock()
	saved := append([]EnvAdapterFactory{}, envFactories...)
	envFactories = nil
	envFactoriesMu.Unlock()
	t.Cleanup(func() {
		envFactoriesMu.Lock()
		envFactories = saved
		envFactoriesMu.Unlock()
	})

	if _, err := NewFromEnv(); err == nil {
		t.Fatalf("no configured adapters should fail")
	}
}
