package digest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"watchlist-service/internal/news"
)

// Watchlists is the subset of the watchlist service the digest reads.
type Watchlists interface {
	Users(ctx context.Context) ([]string, error)
	Symbols(ctx context.Context, userID string) ([]string, error)
	News(ctx context.Context, userID string) []news.Article
}

type Notifier interface {
	SendMarkdown(ctx context.Context, title, markdown string) error
}

type Runner struct {
	agent      *Agent
	watchlists Watchlists
	notifier   Notifier
	logger     *zap.Logger
	now        func() time.Time
}

func NewRunner(agent *Agent, wl Watchlists, notifier Notifier, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{agent: agent, watchlists: wl, notifier: notifier, logger: logger, now: time.Now}
}

// Run sends one digest per user with a non-empty watchlist and returns how
// many were delivered. A failure for one user does not stop the others.
func (r *Runner) Run(ctx context.Context) (int, error) {
	if r.notifier == nil {
		return 0, fmt.Errorf("push notifier not configured")
	}
	users, err := r.watchlists.Users(ctx)
	if err != nil {
		return 0, fmt.Errorf("list watchlist users: %w", err)
	}

	sent := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		symbols, err := r.watchlists.Symbols(ctx, userID)
		if err != nil {
			r.logger.Warn("digest symbols failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if len(symbols) == 0 {
			continue
		}
		articles := r.watchlists.News(ctx, userID)
		body, mode := r.agent.Summarize(ctx, symbols, articles)
		title := fmt.Sprintf("Watchlist digest %s", r.now().UTC().Format("2006-01-02"))
		if err := r.notifier.SendMarkdown(ctx, title, fmt.Sprintf("### %s\n_%s_\n\n%s", title, userID, body)); err != nil {
			r.logger.Warn("digest push failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		r.logger.Info("digest sent",
			zap.String("user_id", userID),
			zap.String("mode", mode),
			zap.Int("articles", len(articles)))
		sent++
	}
	return sent, nil
}
