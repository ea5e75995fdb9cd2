package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// fakeChatModel returns canned responses without any network I/O.
type fakeChatModel struct {
	reply string
	err   error
}

func (f *fakeChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if f.err != nil {
		return nil, f.err
	}
	sr, sw := schema.Pipe[*schema.Message](4)
	go func() {
		defer sw.Close()
		for _, delta := range []string{f.reply[:len(f.reply)/2], "", f.reply[len(f.reply)/2:]} {
			sw.Send(schema.AssistantMessage(delta, nil), nil)
		}
	}()
	return sr, nil
}

func TestChatProviderGenerate(t *testing.T) {
	t.Parallel()

	p := newChatProvider(&fakeChatModel{reply: "hello"}, &Config{
		Backend: BackendOpenAI,
		OpenAI:  ProviderOpenAI{Model: "gpt-4o"},
	})

	got, err := p.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "hello" {
		t.Errorf("Generate = %q", got)
	}
}

func TestChatProviderGenerateStream(t *testing.T) {
	t.Parallel()

	p := newChatProvider(&fakeChatModel{reply: "streamed"}, &Config{
		Backend: BackendOpenAI,
		OpenAI:  ProviderOpenAI{Model: "gpt-4o"},
	})

	var out string
	err := p.GenerateStream(context.Background(), []*schema.Message{schema.UserMessage("hi")}, func(delta string) error {
		if delta == "" {
			t.Error("empty delta passed to emit")
		}
		out += delta
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if out != "streamed" {
		t.Errorf("streamed content = %q", out)
	}
}

func TestChatProviderGenerateStreamEmitError(t *testing.T) {
	t.Parallel()

	p := newChatProvider(&fakeChatModel{reply: "streamed"}, &Config{
		Backend: BackendOpenAI,
		OpenAI:  ProviderOpenAI{Model: "gpt-4o"},
	})

	sentinel := errors.New("writer closed")
	err := p.GenerateStream(context.Background(), []*schema.Message{schema.UserMessage("hi")}, func(string) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("GenerateStream = %v, want emit error surfaced", err)
	}
}

func TestAvailableModelsStaticFallback(t *testing.T) {
	t.Parallel()

	p := newChatProvider(&fakeChatModel{}, &Config{
		Backend:        BackendOpenAI,
		OpenAI:         ProviderOpenAI{Model: "gpt-4o"},
		FallbackModels: []string{"gpt-4o-mini", "gpt-4o", "o1-preview"},
	})

	got := p.AvailableModels(context.Background())
	want := []string{"gpt-4o", "gpt-4o-mini", "o1-preview"}
	if len(got) != len(want) {
		t.Fatalf("AvailableModels = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("models[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestAvailableModelsOllamaLive(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:8b"},{"name":"nomic-embed-text"}]}`))
	}))
	defer srv.Close()

	p := newChatProvider(&fakeChatModel{}, &Config{
		Backend: BackendOllama,
		Ollama:  ProviderOllama{Host: srv.URL, Model: "llama3:8b"},
	})

	got := p.AvailableModels(context.Background())
	if len(got) != 2 || got[0] != "llama3:8b" || got[1] != "nomic-embed-text" {
		t.Errorf("AvailableModels = %v", got)
	}
}

func TestAvailableModelsOllamaDownFallsBack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newChatProvider(&fakeChatModel{}, &Config{
		Backend:        BackendOllama,
		Ollama:         ProviderOllama{Host: srv.URL, Model: "llama3:8b"},
		FallbackModels: []string{"mistral"},
	})

	got := p.AvailableModels(context.Background())
	if len(got) != 2 || got[0] != "llama3:8b" || got[1] != "mistral" {
		t.Errorf("AvailableModels = %v, want static fallback", got)
	}
}
