// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package diary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Reply texts.
const (
	greetingReply = "Привет! Я твой дневник питания 🍽️\n" +
		"Просто пиши, что ешь: **овсянка 40г**, **курица 150г**, **яблоко 1 шт**\n" +
		"В конце дня напиши /итог — подведу баланс!"
	summaryReply    = "📊 Скоро будет анализ за день! Пока просто записываю всё в таблицу."
	parseErrorReply = "Напиши, пожалуйста, в формате: **продукт весг** (например, овсянка 40г)"
)

// Commands understood by [Handler].
const (
	CommandStart   = "start"
	CommandSummary = "summary"
)

// Message is an incoming chat message.
type Message struct {
	ChatID int64
	Text   string
	// Command is the bot command the message starts with, without the slash
	// and bot username, or empty.
	Command string
}

// Reply is an outgoing message.
type Reply struct {
	Text string
	// Markdown reports whether Text is Markdown that should be rendered.
	Markdown bool
}

// Replier sends replies to a chat.
type Replier interface {
	Reply(ctx context.Context, chatID int64, r Reply) error
}

// Handler processes incoming messages: it parses the food entry, looks up its
// nutrition, appends it to the log and replies with the result.
type Handler struct {
	Nutrition NutritionLookup
	Store     LogStore
	Replier   Replier
	Logger    *slog.Logger

	// LookupTimeout limits a single nutrition lookup. Zero means no limit.
	LookupTimeout time.Duration
	// WriteTimeout limits a single log append. Zero means no limit.
	WriteTimeout time.Duration

	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time
}

// Handle processes m and sends exactly one reply, unless m is an unknown
// command. The returned error is non-nil only when the reply was not sent.
func (h *Handler) Handle(ctx context.Context, m Message) (err error) {
	replied := false
	reply := func(r Reply) error {
		replied = true
		return h.Replier.Reply(ctx, m.ChatID, r)
	}

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		h.logger().Error("panic while handling message", "chat_id", m.ChatID, "panic", p)
		if replied {
			err = fmt.Errorf("panic after reply: %v", p)
			return
		}
		err = reply(writeErrorReply(fmt.Errorf("%v", p)))
	}()

	switch m.Command {
	case "":
	case CommandStart:
		return reply(Reply{Text: greetingReply, Markdown: true})
	case CommandSummary:
		return reply(Reply{Text: summaryReply, Markdown: true})
	default:
		h.logger().Debug("ignoring unknown command", "chat_id", m.ChatID, "command", m.Command)
		return nil
	}

	e, err := Parse(m.Text)
	if errors.Is(err, ErrParse) {
		return reply(Reply{Text: parseErrorReply, Markdown: true})
	}
	if err != nil {
		return reply(writeErrorReply(err))
	}

	l := h.lookup(ctx, e.Product)
	if l.Err != nil {
		h.logger().Warn("nutrition lookup failed, using zero profile", "product", e.Product, "err", l.Err)
	}

	e.Date = h.now()
	if err := h.append(ctx, e.Row(l.Profile)); err != nil {
		h.logger().Error("writing entry failed", "chat_id", m.ChatID, "product", e.Product, "err", err)
		return reply(writeErrorReply(err))
	}

	h.logger().Info("entry written", "chat_id", m.ChatID, "product", e.Product, "amount", e.Amount, "unit", e.Unit, "found", l.Found)
	return reply(Reply{Text: writtenReply(e, l.Profile), Markdown: true})
}

func (h *Handler) lookup(ctx context.Context, product string) Lookup {
	if h.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.LookupTimeout)
		defer cancel()
	}
	return h.Nutrition.Lookup(ctx, product)
}

func (h *Handler) append(ctx context.Context, row []any) error {
	if h.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.WriteTimeout)
		defer cancel()
	}
	return h.Store.Append(ctx, row)
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func writtenReply(e Entry, p Profile) string {
	// Strong emphasis can't start with a space, which an empty product
	// would produce.
	what := strings.TrimSpace(fmt.Sprintf("%s %d%s", e.Product, e.Amount, e.Unit))
	return fmt.Sprintf("✅ Записал: **%s**\nКБЖУ: %d ккал | Б: %sг | Ж: %sг | У: %sг",
		what, p.Kcal, formatGrams(p.Proteins), formatGrams(p.Fats), formatGrams(p.Carbs))
}

// writeErrorReply is sent as plain text, since err may contain Markdown
// control characters.
func writeErrorReply(err error) Reply {
	return Reply{Text: "❌ Ошибка записи: " + err.Error()}
}

func formatGrams(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
