// Package telegram is a thin wrapper over the Bot API used to deliver gated
// video files. Content protection maps to the Bot API protect_content flag.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Transport delivers a stored file to a chat. protect prevents the recipient
// from forwarding or saving the delivered content.
type Transport interface {
	SendFile(ctx context.Context, chatID int64, fileID string, caption string, protect bool) (string, error)
}

// BotClient implements Transport against the Telegram Bot API.
type BotClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewBotClient builds a client for the given bot token. baseURL is
// overridable for tests; pass "" for the production API.
func NewBotClient(token, baseURL string) *BotClient {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &BotClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// SendFile sends a previously uploaded file by its file id and returns the
// resulting message id as an opaque reference.
func (c *BotClient) SendFile(ctx context.Context, chatID int64, fileID string, caption string, protect bool) (string, error) {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("video", fileID)
	if caption != "" {
		form.Set("caption", caption)
	}
	if protect {
		form.Set("protect_content", "true")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendVideo", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram: send file: %w", err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("telegram: decode response: %w", err)
	}
	if !parsed.OK {
		return "", fmt.Errorf("telegram: send file failed: %s", parsed.Description)
	}
	return strconv.FormatInt(parsed.Result.MessageID, 10), nil
}
