package explain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/pkg/config"
	"github.com/seclens/rotograph/pkg/httputil"
	"github.com/seclens/rotograph/pkg/logger"
)

// ModelKind is a closed tag; adding a model backend means adding a case to
// NewModel. Unknown tags are rejected at construction, not at request time.
type ModelKind string

const (
	// KindOpenAI talks to any chat-completions compatible endpoint.
	KindOpenAI ModelKind = "openai"
	// KindStatic renders a deterministic template without network calls.
	KindStatic ModelKind = "static"
)

// ErrUnsupportedModel rejects a model tag NewModel has no case for.
var ErrUnsupportedModel = errors.New("unsupported explanation model")

// Model turns a prompt into narrative text.
type Model interface {
	Name() string
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// NewModel constructs the model backend selected by configuration.
func NewModel(cfg *config.Config, log *logger.Logger) (Model, error) {
	switch ModelKind(cfg.Explain.Model) {
	case KindOpenAI:
		if cfg.Explain.APIKey == "" {
			return nil, fmt.Errorf("%w: openai model requires EXPLAIN_API_KEY", contracts.ErrInputInvalid)
		}
		return newOpenAIModel(cfg, log), nil
	case KindStatic:
		return staticModel{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, cfg.Explain.Model)
	}
}

// staticModel echoes the prompt evidence back as the narrative. Used in
// development and tests where no model endpoint is available.
type staticModel struct{}

func (staticModel) Name() string { return "static" }

func (staticModel) Generate(_ context.Context, _ string, prompt string) (string, error) {
	return prompt, nil
}

type openAIModel struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	model      string
}

const defaultChatModel = "gpt-4o-mini"

func newOpenAIModel(cfg *config.Config, log *logger.Logger) *openAIModel {
	hc := httputil.New(cfg, log).
		WithHeader("Authorization", "Bearer "+cfg.Explain.APIKey)

	return &openAIModel{
		httpClient: hc,
		logger:     log.WithField("module", "explain"),
		baseURL:    strings.TrimRight(cfg.Explain.BaseURL, "/"),
		model:      defaultChatModel,
	}
}

func (m *openAIModel) Name() string { return m.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (m *openAIModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	req := chatRequest{
		Model: m.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}

	resp, err := m.httpClient.PostJSON(ctx, m.baseURL+"/chat/completions", req)
	if err != nil {
		return "", contracts.Retryable(fmt.Errorf("chat completion: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("chat completion status %d: %s", resp.StatusCode, string(body))
		if httputil.IsRetryableError(resp.StatusCode) {
			return "", contracts.Retryable(err)
		}
		return "", contracts.Terminal(err)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", contracts.Terminal(fmt.Errorf("decode chat completion: %w", err))
	}
	if len(out.Choices) == 0 {
		return "", contracts.Terminal(errors.New("chat completion returned no choices"))
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
