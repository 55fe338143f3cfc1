package bot

import (
	"net/http"

	"go.uber.org/zap"
)

// Handler exposes the bot over HTTP: GET /sunnie/{command}?user=&id=&msg=.
// Replies are plain text so chat relays can forward them unchanged.
type Handler struct {
	bot    *Bot
	logger *zap.SugaredLogger
}

func NewHandler(b *Bot, logger *zap.SugaredLogger) *Handler {
	return &Handler{bot: b, logger: logger}
}

func (h *Handler) Command(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("command")
	q := r.URL.Query()
	cmd := Command{
		Name:     name,
		Args:     q.Get("msg"),
		UserID:   q.Get("id"),
		Username: q.Get("user"),
	}
	status := http.StatusOK
	if !h.bot.Known(name) {
		status = http.StatusNotFound
	}
	reply := h.bot.Handle(r.Context(), cmd)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(reply))
}
