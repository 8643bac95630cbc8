// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/api/telegram"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/systemd"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/version"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/web"

	"golang.org/x/sync/errgroup"
)

func (e *engine) initRoutes() {
	e.mux = http.NewServeMux()
	e.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		web.RespondJSON(w, version.Version())
	})
	e.mux.Handle("GET /debug/logs", e.logStream)
	if e.prod {
		e.mux.HandleFunc("POST /telegram", e.handleTelegramWebhook)
	}
	web.Health(e.mux).RegisterFunc("telegram", e.telegramHealth)
}

func (e *engine) runPolling(ctx context.Context) error {
	e.log.Info("running in development mode: polling for updates")
	p := &telegram.Poller{
		Client:      e.tg,
		Handle:      e.handleUpdate,
		Timeout:     pollTimeout,
		Concurrency: *e.concurrency,
		ErrorPause:  pollErrorPause,
		Polled:      e.touch,
		Logger:      e.log.Logger,
	}
	if *e.addr == "" {
		e.sd.Notify(systemd.Ready)
		return p.Run(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.serve(ctx) })
	g.Go(func() error { return p.Run(ctx) })
	return g.Wait()
}

func (e *engine) runWebhook(ctx context.Context) error {
	u := &url.URL{
		Scheme: "https",
		Host:   *e.host,
		Path:   "/telegram",
	}
	if err := e.tg.SetWebhook(ctx, u.String(), *e.secret); err != nil {
		return err
	}
	e.log.Info("running in production mode", "webhook", u.String())
	return e.serve(ctx)
}

func (e *engine) serve(ctx context.Context) error {
	addr := *e.addr
	if e.prod {
		addr = cmp.Or(addr, defaultProdAddr)
	}
	return web.ListenAndServe(ctx, &web.ListenAndServeConfig{
		Addr:   addr,
		Mux:    e.mux,
		Logger: e.log.Logger,
		Ready: func() {
			e.sd.Notify(systemd.Ready)
			if e.ready != nil {
				e.ready()
			}
		},
	})
}

func (e *engine) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(*e.secret)) != 1 {
		web.RespondJSONError(w, r, web.ErrNotFound)
		return
	}
	e.touch()

	// Telegram redelivers updates answered with an error, so every update
	// is acknowledged.
	var u telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		e.log.Warn("decoding webhook update failed", "err", err)
	} else {
		e.handleUpdate(context.WithoutCancel(r.Context()), u)
	}
	web.RespondJSON(w, map[string]string{"status": "ok"})
}

func (e *engine) telegramHealth() (status string, ok bool) {
	status = "@" + e.me.Username
	last := e.lastContact.Load()
	if last == 0 {
		status += ": no contact yet"
	} else {
		status += ": last contact at " + time.Unix(last, 0).UTC().Format(time.RFC3339)
	}
	if e.prod {
		// Telegram calls the webhook only when there are updates.
		return status, true
	}
	return status, last != 0 && time.Since(time.Unix(last, 0)) < 3*pollTimeout
}
