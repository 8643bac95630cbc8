// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/util/syncx"
)

// Poller receives updates with long polling and passes them to Handle.
type Poller struct {
	Client *Client
	// Handle is called for every update, concurrently for updates of the
	// same batch. Its context is not canceled when the poller stops, so
	// updates in flight are handled to the end.
	Handle func(context.Context, Update)
	// Timeout is the long polling timeout.
	Timeout time.Duration
	// Concurrency limits the number of updates handled at once.
	Concurrency int
	// ErrorPause is the pause before polling again after a failed poll.
	ErrorPause time.Duration
	// Polled, if set, is called after every successful poll.
	Polled func()
	Logger *slog.Logger
}

// Run deletes the webhook, if any, and polls for updates until ctx is
// canceled. Every batch of updates is handled in full before the next poll
// acknowledges it.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Client.DeleteWebhook(ctx); err != nil {
		return err
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	handleCtx := context.WithoutCancel(ctx)

	var offset int64
	for ctx.Err() == nil {
		updates, err := p.Client.GetUpdates(ctx, offset, p.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("polling updates failed", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(p.ErrorPause):
			}
			continue
		}
		if p.Polled != nil {
			p.Polled()
		}

		lwg := syncx.NewLimitedWaitGroup(p.Concurrency)
		for _, u := range updates {
			offset = max(offset, u.UpdateID+1)
			lwg.Go(func() { p.Handle(handleCtx, u) })
		}
		lwg.Wait()
	}
	return nil
}
