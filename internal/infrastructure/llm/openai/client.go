package openai

import (
	"context"
	"log/slog"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nestorlabs/policybot/internal/core/domain"
	"github.com/nestorlabs/policybot/internal/infrastructure/resilience"
)

type Config struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	EmbedModel  string
	Temperature float64
	Timeout     time.Duration
}

// Client wraps the OpenAI SDK behind the retry/breaker executor. The
// chat, embedding, and filter-prediction adapters all share it.
type Client struct {
	api      openaigo.Client
	cfg      Config
	executor *resilience.Executor
	logger   *slog.Logger
}

func New(cfg Config, executor *resilience.Executor, logger *slog.Logger) *Client {
	// Retries live in the executor; the SDK's built-in retry loop
	// would stack a second schedule under it.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Client{
		api:      openaigo.NewClient(opts...),
		cfg:      cfg,
		executor: executor,
		logger:   logger,
	}
}

func (c *Client) complete(ctx context.Context, params openaigo.ChatCompletionNewParams) (*openaigo.ChatCompletion, error) {
	var resp *openaigo.ChatCompletion
	err := c.executor.Do(ctx, "openai_chat", func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.api.Chat.Completions.New(ctx, params)
		return callErr
	}, classifyAPIError)
	return resp, err
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Complete(ctx context.Context, messages []domain.ChatMessage) (domain.Completion, error) {
	resp, err := g.client.complete(ctx, openaigo.ChatCompletionNewParams{
		Model:       openaigo.ChatModel(g.client.cfg.ChatModel),
		Messages:    toMessageParams(messages),
		Temperature: openaigo.Float(g.client.cfg.Temperature),
	})
	if err != nil {
		return domain.Completion{}, wrapAPIError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, domain.WrapError(domain.ErrUpstreamUnavailable, "chat completion: no choices returned", nil)
	}
	return domain.Completion{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		UsedTokens: int(resp.Usage.TotalTokens),
	}, nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var resp *openaigo.CreateEmbeddingResponse
	err := e.client.executor.Do(ctx, "openai_embed", func(ctx context.Context) error {
		var callErr error
		resp, callErr = e.client.api.Embeddings.New(ctx, openaigo.EmbeddingNewParams{
			Model: openaigo.EmbeddingModel(e.client.cfg.EmbedModel),
			Input: openaigo.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: []string{text},
			},
		})
		return callErr
	}, classifyAPIError)
	if err != nil {
		return nil, wrapAPIError("embed query", err)
	}
	if len(resp.Data) == 0 {
		return nil, domain.WrapError(domain.ErrUpstreamUnavailable, "embed query: empty embedding result", nil)
	}
	vector := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

func toMessageParams(messages []domain.ChatMessage) []openaigo.ChatCompletionMessageParamUnion {
	out := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openaigo.SystemMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, openaigo.AssistantMessage(m.Content))
		default:
			out = append(out, openaigo.UserMessage(m.Content))
		}
	}
	return out
}
