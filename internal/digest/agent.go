package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"watchlist-service/internal/news"
)

const (
	ModeLLM      = "llm"
	ModeFallback = "fallback"

	defaultTimeout = 15 * time.Second
	maxSummaryLen  = 4000
)

type Config struct {
	Enabled   bool
	Model     string
	APIKey    string
	BaseURL   string
	TimeoutMs int
}

type chatModel interface {
	Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Agent turns a batch of watchlist articles into a short markdown digest.
// Without a usable chat model it renders a plain headline list.
type Agent struct {
	model          chatModel
	modelName      string
	disabledReason string
	logger         *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Agent{disabledReason: "disabled by config", logger: logger}
	}
	if cfg.APIKey == "" || cfg.Model == "" {
		logger.Info("digest agent in fallback mode: missing api key or model")
		return &Agent{disabledReason: "api_key or model missing", logger: logger}
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cm, err := openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: timeout,
	})
	if err != nil {
		logger.Warn("digest agent init failed", zap.Error(err))
		return &Agent{disabledReason: "init failed", logger: logger}
	}
	return &Agent{model: cm, modelName: cfg.Model, logger: logger}
}

func (a *Agent) Mode() string {
	if a == nil || a.model == nil {
		return ModeFallback
	}
	return ModeLLM
}

// Status reports how digests are produced, for the health endpoint.
func (a *Agent) Status() map[string]any {
	if a.Mode() == ModeLLM {
		return map[string]any{"mode": ModeLLM, "model": a.modelName}
	}
	reason := "not configured"
	if a != nil && a.disabledReason != "" {
		reason = a.disabledReason
	}
	return map[string]any{"mode": ModeFallback, "reason": reason}
}

// Summarize returns a markdown digest of articles for symbols and the mode
// that produced it. LLM failures fall back to the headline list.
func (a *Agent) Summarize(ctx context.Context, symbols []string, articles []news.Article) (string, string) {
	if len(articles) == 0 {
		return "No recent news for your watchlist.", ModeFallback
	}
	if a.Mode() != ModeLLM {
		return Fallback(articles), ModeFallback
	}

	system := `You write a brief market news digest for a retail investor.
Output markdown only: a one-sentence overview, then at most 5 bullets, each naming the ticker and the key point.
Do not give investment advice. Do not invent facts beyond the headlines and summaries provided.`

	messages := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(prompt(symbols, articles)),
	}
	resp, err := a.model.Generate(ctx, messages)
	if err != nil {
		a.logLLMError(err)
		return Fallback(articles), ModeFallback
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return Fallback(articles), ModeFallback
	}
	if runes := []rune(text); len(runes) > maxSummaryLen {
		text = string(runes[:maxSummaryLen]) + "..."
	}
	return text, ModeLLM
}

// Fallback renders articles as a markdown bullet list.
func Fallback(articles []news.Article) string {
	var b strings.Builder
	for _, n := range articles {
		b.WriteString("- ")
		if n.Related != "" {
			fmt.Fprintf(&b, "**%s** ", n.Related)
		}
		fmt.Fprintf(&b, "[%s](%s)", n.Headline, n.URL)
		if n.Source != "" {
			fmt.Fprintf(&b, " (%s)", n.Source)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func prompt(symbols []string, articles []news.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Watchlist: %s\n\nArticles:\n", strings.Join(symbols, ", "))
	for i, n := range articles {
		fmt.Fprintf(&b, "%d. [%s] %s: %s\n", i+1, n.Related, n.Headline, n.Summary)
	}
	return b.String()
}

func (a *Agent) logLLMError(err error) {
	apiErr := &openai.APIError{}
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if len(msg) > 300 {
			msg = msg[:300] + "..."
		}
		a.logger.Warn("digest llm api error", zap.Int("status", apiErr.HTTPStatusCode), zap.String("message", msg))
		return
	}
	a.logger.Warn("digest llm error", zap.Error(err))
}
