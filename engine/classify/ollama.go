package classify

import (
	"context"
	"errors"

	"github.com/cafescout/cafescout/pkg/ollama"
)

// OllamaCompleter implements Completer against a local Ollama server.
type OllamaCompleter struct {
	chat *ollama.ChatClient
}

// NewOllamaCompleter builds a completer for s.BaseURL and s.Model. The API key is unused.
func NewOllamaCompleter(s Settings) *OllamaCompleter {
	return &OllamaCompleter{chat: ollama.NewChatClient(s.BaseURL, s.Model, s.HTTPClient)}
}

func (o *OllamaCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	var msgs []ollama.Message
	if p.System != "" {
		msgs = append(msgs, ollama.Message{Role: "system", Content: p.System})
	}
	msgs = append(msgs, ollama.Message{Role: "user", Content: p.User})

	out, err := o.chat.Chat(ctx, msgs, ollama.Options{Temperature: p.Temperature, NumPredict: p.MaxTokens})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &ProviderError{Kind: KindTimeout, Err: err}
		}
		var se *ollama.StatusError
		if errors.As(err, &se) {
			return "", &ProviderError{Kind: kindForStatus(se.StatusCode), Err: err}
		}
		return "", &ProviderError{Kind: KindOther, Err: err}
	}
	return out, nil
}

// NewCompleter picks the implementation for provider ("openai" or "ollama").
func NewCompleter(provider string, s Settings) Completer {
	if provider == "ollama" {
		return NewOllamaCompleter(s)
	}
	return NewOpenAICompleter(s)
}
