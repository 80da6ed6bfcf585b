package classify

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Settings configures a hosted completer.
type Settings struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAICompleter implements Completer using the official openai-go SDK.
type OpenAICompleter struct {
	client openai.Client
	model  string
	hasKey bool
}

// NewOpenAICompleter builds a completer. A missing key is reported on the
// first call as KindMissingCredential rather than here, so the caller can
// surface it through the normal validation path.
func NewOpenAICompleter(s Settings) *OpenAICompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		// The classifier owns timeouts and fallback.
		option.WithMaxRetries(0),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	if s.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(s.HTTPClient))
	}
	model := s.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAICompleter{client: openai.NewClient(opts...), model: model, hasKey: s.APIKey != ""}
}

func (o *OpenAICompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	if !o.hasKey {
		return "", &ProviderError{Kind: KindMissingCredential, Err: errors.New("api key not set")}
	}

	var msgs []openai.ChatCompletionMessageParamUnion
	if p.System != "" {
		msgs = append(msgs, openai.SystemMessage(p.System))
	}
	msgs = append(msgs, openai.UserMessage(p.User))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    msgs,
		Temperature: openai.Float(p.Temperature),
	}
	if p.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Kind: KindOther, Err: ErrEmptyResponse}
	}
	return resp.Choices[0].Message.Content, nil
}

func wrapOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Kind: KindTimeout, Err: err}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{Kind: kindForStatus(apiErr.StatusCode), Err: err}
	}
	return &ProviderError{Kind: KindOther, Err: err}
}
