// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Fooddiary is a Telegram bot that keeps a food diary in a Google Sheets
spreadsheet.

Send it what you ate, like "овсянка 40г" or "яблоко 1 шт". The bot looks up
the product in [Open Food Facts], appends a row with the date, time, product,
amount, calories, proteins, fats and carbohydrates to the first sheet of the
spreadsheet and replies with the nutrition summary. Products that can't be
found are recorded with zero nutrition.

Amounts can be given in grams (г), pieces (шт) or millilitres (ml, мл).

The bot understands two commands:

	/start    Shows a greeting.
	/summary  Daily summary (not implemented yet).

# Usage

	$ fooddiary [flags...]

By default the bot receives updates with long polling. In production mode
(-prod) it registers a webhook at https://<host>/telegram instead and serves
it on -addr.

# Configuration

Every flag can be set by an environment variable:

	-token           BOT_TOKEN                Telegram bot token (required).
	-credentials     GOOGLE_CREDENTIALS_JSON  Service account key JSON (required).
	-sheet-url       GOOGLE_SHEET_URL         Spreadsheet URL or ID (required).
	-addr            ADDR (or PORT)           Address of the HTTP server.
	-host            HOST                     Public host name for the webhook.
	-secret          TG_SECRET                Webhook secret token.
	-lookup-timeout  LOOKUP_TIMEOUT           Open Food Facts request timeout.
	-write-timeout   WRITE_TIMEOUT            Spreadsheet write timeout.
	-concurrency     CONCURRENCY              Updates handled at once in polling mode.

The service account must have edit access to the spreadsheet.

# HTTP endpoints

When the HTTP server is running, it serves:

	GET  /            Version information.
	GET  /health      Health checks as JSON.
	GET  /debug/logs  Recent log lines. Supports Server-Sent Events.
	POST /telegram    Telegram webhook (production mode only).

# Running under systemd

With Type=notify the bot reports readiness once it can receive updates. If
WatchdogSec is set, it pings the watchdog every half of the interval.

[Open Food Facts]: https://world.openfoodfacts.org
*/
package main

import (
	_ "embed"

	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
