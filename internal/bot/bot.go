package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/camprush/camprush/internal/clients/httpx"
	"github.com/camprush/camprush/internal/logger"
)

const defaultAPIBase = "https://api.telegram.org"

type Client struct {
	log    *logger.Logger
	token  string
	httpc  *http.Client
	apiURL string
}

func NewClient(log *logger.Logger, token string) *Client {
	return NewClientWithBase(log, token, defaultAPIBase)
}

// NewClientWithBase points the client at another Bot API host, as tests do.
func NewClientWithBase(log *logger.Logger, token, base string) *Client {
	return &Client{
		log:    log.With("component", "telegram"),
		token:  token,
		apiURL: base + "/bot" + token,
		httpc:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Enabled() bool { return c != nil && c.token != "" }

type apiError struct {
	Method string
	Status int
}

func (e *apiError) Error() string       { return fmt.Sprintf("telegram %s: status %d", e.Method, e.Status) }
func (e *apiError) HTTPStatusCode() int { return e.Status }

// send posts one Bot API call, retrying once on 429 and 5xx.
func (c *Client) send(ctx context.Context, method string, payload any) error {
	if !c.Enabled() {
		return fmt.Errorf("telegram bot token not configured")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if err := httpx.Sleep(ctx, httpx.JitterSleep(time.Second)); err != nil {
				return err
			}
		}
		lastErr = c.post(ctx, method, b)
		if lastErr == nil || !httpx.IsRetryableError(lastErr) {
			return lastErr
		}
		c.log.Warn("telegram call failed, retrying", "method", method, "error", lastErr)
	}
	return lastErr
}

func (c *Client) post(ctx context.Context, method string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &apiError{Method: method, Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyMarkup any) error {
	data := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if replyMarkup != nil {
		data["reply_markup"] = replyMarkup
	}
	return c.send(ctx, "sendMessage", data)
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, replyMarkup any) error {
	data := map[string]any{
		"chat_id": chatID,
		"photo":   photoURL,
	}
	if caption != "" {
		data["caption"] = caption
	}
	if replyMarkup != nil {
		data["reply_markup"] = replyMarkup
	}
	return c.send(ctx, "sendPhoto", data)
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.send(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
		"text":              text,
	})
}
