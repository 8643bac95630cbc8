// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram is a minimal Telegram Bot API client.
//
// See https://core.telegram.org/bots/api.
package telegram

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/request"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/tgmarkup"
)

const apiURL = "https://api.telegram.org"

// Client calls Bot API methods.
type Client struct {
	token    string
	httpc    *http.Client
	scrubber *strings.Replacer
}

// New returns a new Client for the bot with the given token. If httpc is nil,
// request.DefaultClient is used.
//
// The token is scrubbed from all returned errors.
func New(token string, httpc *http.Client) *Client {
	c := &Client{token: token, httpc: httpc}
	if token != "" {
		c.scrubber = strings.NewReplacer(token, "[EXPUNGED]")
	}
	return c
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat is a Telegram chat.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// MessageEntity is a special entity in a message text, like a bot command.
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// Message is a Telegram message.
type Message struct {
	MessageID int64           `json:"message_id"`
	From      *User           `json:"from,omitempty"`
	Chat      Chat            `json:"chat"`
	Date      int64           `json:"date"`
	Text      string          `json:"text,omitempty"`
	Entities  []MessageEntity `json:"entities,omitempty"`
}

// Command returns the name of the bot command m starts with, without the
// leading slash. Commands addressed to other bots are returned with their
// "@username" suffix. Command returns an empty string if m doesn't start with
// a command.
func (m *Message) Command(botUsername string) string {
	if len(m.Entities) == 0 {
		return ""
	}
	e := m.Entities[0]
	// Commands consist of ASCII characters only, so UTF-16 offsets match
	// byte offsets.
	if e.Type != "bot_command" || e.Offset != 0 || e.Length > len(m.Text) {
		return ""
	}
	cmd := strings.TrimPrefix(m.Text[:e.Length], "/")
	name, bot, ok := strings.Cut(cmd, "@")
	if ok && strings.EqualFold(bot, botUsername) {
		return name
	}
	return cmd
}

// Update is an incoming update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// BotCommand is a command shown in the bot's menu.
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

type response[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description"`
}

// call invokes a Bot API method. A nil args makes a GET request.
func call[T any](ctx context.Context, c *Client, method string, args any) (T, error) {
	p := request.Params{
		Method:     http.MethodPost,
		URL:        apiURL + "/bot" + c.token + "/" + method,
		Body:       args,
		HTTPClient: c.httpc,
		Scrubber:   c.scrubber,
	}
	if args == nil {
		p.Method = http.MethodGet
	}

	resp, err := request.Make[response[T]](ctx, p)
	if err != nil {
		return resp.Result, fmt.Errorf("telegram: %s: %w", method, err)
	}
	if !resp.OK {
		return resp.Result, fmt.Errorf("telegram: %s: %s", method, cmp.Or(resp.Description, "not ok"))
	}
	return resp.Result, nil
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	return call[User](ctx, c, "getMe", nil)
}

// GetUpdates long polls for updates starting with offset. The server holds the
// request for up to timeout when there are no updates.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	return call[[]Update](ctx, c, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	})
}

// SendMessage sends a formatted message to the chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, msg tgmarkup.Message) error {
	_, err := call[json.RawMessage](ctx, c, "sendMessage", struct {
		ChatID int64 `json:"chat_id"`
		tgmarkup.Message
	}{chatID, msg})
	return err
}

// SetWebhook makes Telegram deliver updates to url. Each delivery carries
// secret in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	_, err := call[bool](ctx, c, "setWebhook", map[string]any{
		"url":             url,
		"secret_token":    secret,
		"allowed_updates": []string{"message"},
	})
	return err
}

// DeleteWebhook removes the webhook, so updates can be received with
// [Client.GetUpdates].
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := call[bool](ctx, c, "deleteWebhook", map[string]any{})
	return err
}

// SetMyCommands sets the list of the bot's commands.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	_, err := call[bool](ctx, c, "setMyCommands", map[string]any{"commands": commands})
	return err
}
