package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/sakif/maratonei/internal/newsbot"
)

// CronSecretHeader carries the shared secret of external cron triggers.
const CronSecretHeader = "X-Cron-Secret"

// NewsRunner runs one news bot cycle.
type NewsRunner interface {
	Run(ctx context.Context) (*newsbot.RunOutcome, error)
}

// NewsBotHandler lets an external scheduler trigger the bot, in addition
// to the in-process cron.
type NewsBotHandler struct {
	bot    NewsRunner
	secret string
	logger *slog.Logger
}

func NewNewsBotHandler(bot NewsRunner, secret string, logger *slog.Logger) *NewsBotHandler {
	return &NewsBotHandler{bot: bot, secret: secret, logger: logger}
}

// HandleRun runs the bot once and reports what it did.
//
// HTTP: POST /api/internal/news-bot/run
// HEADER: X-Cron-Secret: <CRON_SECRET>
//
// With no CRON_SECRET configured the endpoint refuses every call.
func (h *NewsBotHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(CronSecretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		h.logger.Warn("news bot trigger rejected", slog.String("remote", r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "invalid cron secret",
		})
		return
	}

	out, err := h.bot.Run(r.Context())
	if err != nil {
		// The bot already logged the cause.
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "news_bot_failed",
			Message: "news bot run failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, out)
}
