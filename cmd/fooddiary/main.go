// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/api/google/serviceaccount"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/api/google/sheets"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/api/openfoodfacts"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/api/telegram"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/cli"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/cli/envflag"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/diary"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/httplogger"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/logger"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/systemd"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/tgmarkup"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/util/syncx"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func main() { cli.Main(new(engine)) }

const (
	pollTimeout     = 50 * time.Second
	pollErrorPause  = 3 * time.Second
	logLineLimit    = 300
	defaultProdAddr = ":8080"
)

var commands = []telegram.BotCommand{
	{Command: diary.CommandStart, Description: "Начать"},
	{Command: diary.CommandSummary, Description: "Итог за день"},
}

func (e *engine) Flags(fs *flag.FlagSet, getenv func(string) string) {
	e.token = envflag.Value("token", "BOT_TOKEN", "", "Telegram bot token.", fs, getenv)
	e.credentials = envflag.Value("credentials", "GOOGLE_CREDENTIALS_JSON", "", "Google service account key in JSON.", fs, getenv)
	e.sheetURL = envflag.Value("sheet-url", "GOOGLE_SHEET_URL", "", "Google Sheets spreadsheet URL.", fs, getenv)
	e.addr = envflag.Value("addr", "ADDR", portAddr(getenv("PORT")), "Listen on `host:port` for HTTP requests.", fs, getenv)
	e.host = envflag.Value("host", "HOST", "", "Public host name of the webhook.", fs, getenv)
	e.secret = envflag.Value("secret", "TG_SECRET", "", "Telegram webhook secret token.", fs, getenv)
	e.lookupTimeout = envflag.Value("lookup-timeout", "LOOKUP_TIMEOUT", 5*time.Second, "Nutrition lookup timeout.", fs, getenv)
	e.writeTimeout = envflag.Value("write-timeout", "WRITE_TIMEOUT", 30*time.Second, "Spreadsheet write timeout. Also bounds each access token request.", fs, getenv)
	e.concurrency = envflag.Value("concurrency", "CONCURRENCY", 4, "Number of updates handled at once in polling mode.", fs, getenv)
	fs.BoolVar(&e.prod, "prod", false, "Run in production mode: receive updates with a webhook.")
	fs.BoolVar(&e.verbose, "v", false, "Log at debug level, including outgoing HTTP requests.")
}

func portAddr(port string) string {
	if port == "" {
		return ""
	}
	return ":" + port
}

func (e *engine) Run(ctx context.Context, env *cli.Env) error {
	e.stderr = env.Stderr
	e.getenv = env.Getenv

	if err := e.init.Get(func() error {
		return e.doInit(ctx)
	}); err != nil {
		return err
	}

	// Used in tests.
	if e.noServerStart {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go e.sd.WatchdogLoop(ctx)
	defer e.sd.Notify(systemd.Stopping)

	if e.prod {
		return e.runWebhook(ctx)
	}
	return e.runPolling(ctx)
}

type engine struct {
	init syncx.Lazy[error] // main initialization

	// initialized by doInit
	handler   *diary.Handler
	log       *logger.Logger
	logStream logger.Streamer
	me        telegram.User
	mux       *http.ServeMux
	scrubber  *strings.Replacer
	sd        *systemd.Notifier
	tg        *telegram.Client

	lastContact atomic.Int64 // Unix time of the last poll or webhook call

	// configuration, read-only after initialization
	addr          *string
	concurrency   *int
	credentials   *string
	getenv        func(string) string
	host          *string
	httpc         *http.Client
	lookupTimeout *time.Duration
	prod          bool
	secret        *string
	sheetURL      *string
	stderr        io.Writer
	token         *string
	verbose       bool
	writeTimeout  *time.Duration

	// for tests
	nutrition     diary.NutritionLookup
	store         diary.LogStore
	noServerStart bool
	ready         func() // see web.ListenAndServeConfig.Ready
}

func (e *engine) checkConfig() error {
	type requirement struct{ val, desc string }
	required := []requirement{
		{*e.token, "bot token; pass it with -token flag or BOT_TOKEN environment variable"},
		{*e.credentials, "Google credentials; pass them with -credentials flag or GOOGLE_CREDENTIALS_JSON environment variable"},
		{*e.sheetURL, "spreadsheet URL; pass it with -sheet-url flag or GOOGLE_SHEET_URL environment variable"},
	}
	if e.prod {
		required = append(required,
			requirement{*e.host, "host; pass it with -host flag or HOST environment variable"},
			requirement{*e.secret, "webhook secret; pass it with -secret flag or TG_SECRET environment variable"},
		)
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			return fmt.Errorf("%w: missing %s", cli.ErrInvalidArgs, r.desc)
		}
	}
	if *e.concurrency < 1 {
		return fmt.Errorf("%w: -concurrency must be positive", cli.ErrInvalidArgs)
	}
	return nil
}

func (e *engine) doInit(ctx context.Context) error {
	if err := e.checkConfig(); err != nil {
		return err
	}

	e.logStream = logger.NewStreamer(logLineLimit)
	e.log = logger.New(e.stderr, e.logStream)
	if e.verbose {
		e.log.Level.Set(slog.LevelDebug)
	}
	e.sd = &systemd.Notifier{Getenv: e.getenv, Logger: e.log.Logger}

	var scrubPairs []string
	for _, val := range []string{*e.token, *e.secret} {
		if val != "" {
			scrubPairs = append(scrubPairs, val, "[EXPUNGED]")
		}
	}
	e.scrubber = strings.NewReplacer(scrubPairs...)

	if e.httpc == nil {
		// Long polling holds requests for pollTimeout.
		e.httpc = &http.Client{Timeout: pollTimeout + 20*time.Second}
	}
	if e.verbose {
		e.httpc = &http.Client{
			Transport: httplogger.New(e.httpc.Transport, e.log.Logger, e.scrubber),
			Timeout:   e.httpc.Timeout,
		}
	}

	key, err := serviceaccount.LoadKey([]byte(*e.credentials))
	if err != nil {
		return fmt.Errorf("%w: %v", cli.ErrInvalidArgs, err)
	}
	if _, err := sheets.ParseSpreadsheetID(*e.sheetURL); err != nil {
		return fmt.Errorf("%w: %v", cli.ErrInvalidArgs, err)
	}

	if e.store == nil {
		// The token source outlives doInit, so it must not use the
		// context of a single request.
		ts := key.TokenSource(context.WithoutCancel(ctx), e.httpc, *e.writeTimeout, sheets.Scopes...)
		sheetsc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, e.httpc), ts)
		store, err := sheets.New(ctx, *e.sheetURL, option.WithHTTPClient(sheetsc))
		if err != nil {
			return err
		}
		e.log.Info("logging to spreadsheet", "id", store.SpreadsheetID(), "client_email", key.ClientEmail)
		e.store = store
	}
	if e.nutrition == nil {
		e.nutrition = &openfoodfacts.Client{HTTPClient: e.httpc}
	}

	e.tg = telegram.New(*e.token, e.httpc)
	me, err := e.tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("checking bot token: %w", err)
	}
	e.me = me
	e.log.Info("authorized", "bot", "@"+me.Username)

	if err := e.tg.SetMyCommands(ctx, commands); err != nil {
		e.log.Warn("setting bot commands failed", "err", err)
	}

	e.handler = &diary.Handler{
		Nutrition:     e.nutrition,
		Store:         e.store,
		Replier:       replier{e.tg},
		Logger:        e.log.Logger,
		LookupTimeout: *e.lookupTimeout,
		WriteTimeout:  *e.writeTimeout,
	}

	e.initRoutes()

	return nil
}

func (e *engine) handleUpdate(ctx context.Context, u telegram.Update) {
	m := u.Message
	if m == nil || m.Text == "" {
		e.log.Debug("ignoring update", "update_id", u.UpdateID)
		return
	}
	err := e.handler.Handle(ctx, diary.Message{
		ChatID:  m.Chat.ID,
		Text:    m.Text,
		Command: m.Command(e.me.Username),
	})
	if err != nil {
		e.log.Error("handling message failed", "update_id", u.UpdateID, "chat_id", m.Chat.ID, "err", err)
	}
}

func (e *engine) touch() { e.lastContact.Store(time.Now().Unix()) }

// replier sends diary replies to Telegram.
type replier struct{ tg *telegram.Client }

func (r replier) Reply(ctx context.Context, chatID int64, rep diary.Reply) error {
	msg := tgmarkup.Message{Text: rep.Text}
	if rep.Markdown {
		msg = tgmarkup.FromMarkdown(rep.Text)
	}
	return r.tg.SendMessage(ctx, chatID, msg)
}
