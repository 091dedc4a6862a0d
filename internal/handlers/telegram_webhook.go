package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/camprush/camprush/internal/bot"
)

// TelegramWebhook accepts Bot API updates. The secret arrives either as
// ?secret=... or in the header Telegram sets when the webhook was registered
// with a secret_token.
func (h *Handlers) TelegramWebhook(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	if secret == "" {
		secret = r.URL.Query().Get("secret")
	}
	if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.webhookSecret)) != 1 {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if h.telegram == nil {
		http.Error(w, "telegram disabled", http.StatusNotFound)
		return
	}
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var up bot.Update
	if err := json.Unmarshal(b, &up); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	h.telegram.Handle(r.Context(), &up)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
