package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// chatModel is the subset of the eino chat model surface this package uses.
// All eino-ext model adapters satisfy it.
type chatModel interface {
	Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error)
	Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error)
}

// modelListTimeout bounds the Ollama model listing call. Listing is a
// convenience surface; a slow server falls back to the static list.
const modelListTimeout = 5 * time.Second

// chatProvider adapts an eino chat model to the Provider interface.
type chatProvider struct {
	cm chatModel

	// backend and activeModel describe what cm talks to.
	backend     Backend
	activeModel string

	// fallbackModels backs AvailableModels when the backend has no listing
	// endpoint or the listing call fails.
	fallbackModels []string

	// ollamaHost is set only for the ollama backend, which supports live
	// model listing.
	ollamaHost string

	httpClient *http.Client
}

// newChatProvider wraps a constructed chat model with the Provider surface.
func newChatProvider(cm chatModel, cfg *Config) *chatProvider {
	p := &chatProvider{
		cm:             cm,
		backend:        cfg.Backend,
		activeModel:    cfg.ActiveModel(),
		fallbackModels: cfg.FallbackModels,
		httpClient:     &http.Client{Timeout: modelListTimeout},
	}
	if cfg.Backend == BackendOllama {
		p.ollamaHost = cfg.Ollama.Host
	}
	return p
}

// Generate produces a single complete response to the message history.
func (p *chatProvider) Generate(ctx context.Context, messages []*schema.Message) (string, error) {
	msg, err := p.cm.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("provider: generate: %w", err)
	}
	return msg.Content, nil
}

// GenerateStream produces a response incrementally, calling emit per delta.
func (p *chatProvider) GenerateStream(ctx context.Context, messages []*schema.Message, emit func(delta string) error) error {
	stream, err := p.cm.Stream(ctx, messages)
	if err != nil {
		return fmt.Errorf("provider: stream: %w", err)
	}
	defer stream.Close()

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("provider: stream recv: %w", err)
		}
		if msg.Content == "" {
			continue
		}
		if err := emit(msg.Content); err != nil {
			return err
		}
	}
}

// AvailableModels lists the models the backend can serve. Only Ollama
// exposes a listing endpoint; every other backend (and any listing failure)
// yields the configured static list with the active model first.
func (p *chatProvider) AvailableModels(ctx context.Context) []string {
	static := p.staticModels()
	if p.backend != BackendOllama || p.ollamaHost == "" {
		return static
	}

	live, err := p.listOllamaModels(ctx)
	if err != nil || len(live) == 0 {
		return static
	}
	return live
}

// staticModels returns the active model plus the configured fallbacks,
// deduplicated, active first.
func (p *chatProvider) staticModels() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range append([]string{p.activeModel}, p.fallbackModels...) {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// listOllamaModels queries the Ollama /api/tags endpoint.
func (p *chatProvider) listOllamaModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, modelListTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ollamaHost+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("provider: list models request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider: list models: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("provider: list models decode: %w", err)
	}

	names := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
