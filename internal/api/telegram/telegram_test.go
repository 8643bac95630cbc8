// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/testutil"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/tgmarkup"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

const (
	tgToken = "123456:test-token"

	getMeTelegram = "GET api.telegram.org/{token}/getMe"
	postTelegram  = "POST api.telegram.org/{token}/{method}"
)

type recordedCall struct {
	Method string
	Args   map[string]any
}

type mux struct {
	mux *http.ServeMux

	mu    sync.Mutex
	calls []recordedCall
}

func (m *mux) recorded() []recordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedCall(nil), m.calls...)
}

func respondOK(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

// testMux records all POST calls. Handlers in overrides answer the methods
// they are registered for, all other methods return true.
func testMux(t *testing.T, overrides map[string]http.HandlerFunc) *mux {
	m := &mux{mux: http.NewServeMux()}
	m.mux.HandleFunc(getMeTelegram, func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, strings.TrimPrefix(r.PathValue("token"), "bot"), tgToken)
		respondOK(w, User{ID: 123456, IsBot: true, FirstName: "Дневник", Username: "fooddiary_bot"})
	})
	m.mux.HandleFunc(postTelegram, func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, strings.TrimPrefix(r.PathValue("token"), "bot"), tgToken)
		b, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatal(err)
		}
		method := r.PathValue("method")
		m.mu.Lock()
		m.calls = append(m.calls, recordedCall{Method: method, Args: testutil.UnmarshalJSON[map[string]any](t, b)})
		m.mu.Unlock()

		if h, found := overrides[method]; found {
			r.Body = io.NopCloser(strings.NewReader(string(b)))
			h(w, r)
			return
		}
		respondOK(w, true)
	})
	return m
}

func testClient(m *mux) *Client { return New(tgToken, testutil.MockHTTPClient(m.mux)) }

func TestGetMe(t *testing.T) {
	t.Parallel()

	me, err := testClient(testMux(t, nil)).GetMe(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, me.Username, "fooddiary_bot")
}

func TestErrorsScrubToken(t *testing.T) {
	t.Parallel()

	m := testMux(t, map[string]http.HandlerFunc{
		"sendMessage": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"ok":false,"description":"Bad Request: chat not found"}`, http.StatusBadRequest)
		},
	})
	err := testClient(m).SendMessage(t.Context(), 42, tgmarkup.Message{Text: "hi"})
	if err == nil {
		t.Fatal("want error")
	}
	if strings.Contains(err.Error(), tgToken) {
		t.Fatalf("error %q leaks the token", err)
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("error %q must contain the description", err)
	}
}

func TestNotOK(t *testing.T) {
	t.Parallel()

	m := testMux(t, map[string]http.HandlerFunc{
		"setMyCommands": func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "too many commands"})
		},
	})
	err := testClient(m).SetMyCommands(t.Context(), []BotCommand{{Command: "start", Description: "Начать"}})
	if err == nil || !strings.Contains(err.Error(), "too many commands") {
		t.Fatalf("SetMyCommands() = %v, want description in error", err)
	}
}

func TestMethods(t *testing.T) {
	t.Parallel()

	m := testMux(t, nil)
	c := testClient(m)
	ctx := t.Context()

	if err := c.SendMessage(ctx, 42, tgmarkup.FromMarkdown("**овсянка 40г**")); err != nil {
		t.Fatal(err)
	}
	if err := c.SetWebhook(ctx, "https://bot.example.com/telegram", "secret"); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteWebhook(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.SetMyCommands(ctx, []BotCommand{{Command: "start", Description: "Начать"}}); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, m.recorded(), []recordedCall{
		{
			Method: "sendMessage",
			Args: map[string]any{
				"chat_id": 42.0,
				"text":    "овсянка 40г",
				"entities": []any{
					map[string]any{"type": "bold", "offset": 0.0, "length": 11.0},
				},
			},
		},
		{
			Method: "setWebhook",
			Args: map[string]any{
				"url":             "https://bot.example.com/telegram",
				"secret_token":    "secret",
				"allowed_updates": []any{"message"},
			},
		},
		{
			Method: "deleteWebhook",
			Args:   map[string]any{},
		},
		{
			Method: "setMyCommands",
			Args: map[string]any{
				"commands": []any{
					map[string]any{"command": "start", "description": "Начать"},
				},
			},
		},
	})
}

func TestMessageCommand(t *testing.T) {
	t.Parallel()

	command := func(text string, length int) *Message {
		return &Message{Text: text, Entities: []MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}}
	}

	cases := map[string]struct {
		msg  *Message
		want string
	}{
		"plain text":    {msg: &Message{Text: "овсянка 40г"}, want: ""},
		"start":         {msg: command("/start", 6), want: "start"},
		"with argument": {msg: command("/summary today", 8), want: "summary"},
		"this bot":      {msg: command("/start@FoodDiary_bot", 20), want: "start"},
		"other bot":     {msg: command("/start@other_bot", 16), want: "start@other_bot"},
		"not at start": {
			msg:  &Message{Text: "hi /start", Entities: []MessageEntity{{Type: "bot_command", Offset: 3, Length: 6}}},
			want: "",
		},
		"other entity": {
			msg:  &Message{Text: "@someone", Entities: []MessageEntity{{Type: "mention", Offset: 0, Length: 8}}},
			want: "",
		},
		"bad length": {msg: command("/s", 10), want: ""},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, tc.msg.Command("fooddiary_bot"), tc.want)
		})
	}
}

func updatesResponse(ids ...int64) []Update {
	var updates []Update
	for _, id := range ids {
		updates = append(updates, Update{
			UpdateID: id,
			Message:  &Message{MessageID: id, Chat: Chat{ID: 42, Type: "private"}, Text: "овсянка 40г"},
		})
	}
	return updates
}

func TestPoller(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var (
		mu      sync.Mutex
		offsets []float64
	)
	m := testMux(t, map[string]http.HandlerFunc{
		"getUpdates": func(w http.ResponseWriter, r *http.Request) {
			args := testutil.UnmarshalJSON[map[string]any](t, readAll(t, r.Body))
			mu.Lock()
			offsets = append(offsets, args["offset"].(float64))
			n := len(offsets)
			mu.Unlock()

			switch n {
			case 1:
				respondOK(w, updatesResponse(10, 11, 12))
			case 2:
				respondOK(w, updatesResponse(13))
			default:
				cancel()
				respondOK(w, []Update{})
			}
		},
	})

	var (
		handledMu sync.Mutex
		handled   []int64
		polls     int
	)
	p := &Poller{
		Client:      testClient(m),
		Timeout:     50 * time.Second,
		Concurrency: 2,
		Handle: func(ctx context.Context, u Update) {
			if ctx.Err() != nil {
				t.Errorf("handler context must stay alive, got %v", ctx.Err())
			}
			handledMu.Lock()
			defer handledMu.Unlock()
			handled = append(handled, u.UpdateID)
		},
		Polled: func() { polls++ },
	}
	if err := p.Run(ctx); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, offsets, []float64{0, 13, 14})
	testutil.AssertEqual(t, len(handled), 4)
	testutil.AssertEqual(t, polls, 3)

	calls := m.recorded()
	testutil.AssertEqual(t, calls[0].Method, "deleteWebhook")
	testutil.AssertEqual(t, calls[1].Args["timeout"], 50.0)
}

func TestPollerErrorPause(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var n int
	m := testMux(t, map[string]http.HandlerFunc{
		"getUpdates": func(w http.ResponseWriter, r *http.Request) {
			n++
			if n == 1 {
				http.Error(w, `{"ok":false,"description":"Bad Gateway"}`, http.StatusBadGateway)
				return
			}
			cancel()
			respondOK(w, []Update{})
		},
	})

	p := &Poller{
		Client:     testClient(m),
		ErrorPause: time.Millisecond,
		Handle:     func(context.Context, Update) { t.Error("no updates expected") },
	}
	if err := p.Run(ctx); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, n, 2)
}

func TestPollerDeleteWebhookFails(t *testing.T) {
	t.Parallel()

	m := testMux(t, map[string]http.HandlerFunc{
		"deleteWebhook": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"ok":false,"description":"Unauthorized"}`, http.StatusUnauthorized)
		},
	})
	p := &Poller{Client: testClient(m), Handle: func(context.Context, Update) {}}
	if err := p.Run(t.Context()); err == nil {
		t.Fatal("want error")
	}
}

func TestPollerStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	m := testMux(t, map[string]http.HandlerFunc{
		"getUpdates": func(w http.ResponseWriter, r *http.Request) {
			cancel()
			<-r.Context().Done()
		},
	})
	p := &Poller{Client: testClient(m), Handle: func(context.Context, Update) {}}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
