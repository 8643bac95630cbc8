// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package sheets appends rows to a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Scopes are the OAuth2 scopes needed by [Client].
var Scopes = []string{sheetsapi.SpreadsheetsScope, sheetsapi.DriveScope}

var (
	urlIDRe  = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)
	bareIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ParseSpreadsheetID extracts the spreadsheet ID from its URL, like
// https://docs.google.com/spreadsheets/d/<id>/edit. A bare ID is returned as
// is.
func ParseSpreadsheetID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if m := urlIDRe.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	if bareIDRe.MatchString(s) {
		return s, nil
	}
	return "", fmt.Errorf("%q is not a spreadsheet URL", s)
}

// Client appends rows to the first sheet of a spreadsheet.
type Client struct {
	svc *sheetsapi.Service
	id  string
}

// New returns a new Client for the spreadsheet at sheetURL. Pass
// option.WithHTTPClient or option.WithTokenSource to authorize requests.
func New(ctx context.Context, sheetURL string, opts ...option.ClientOption) (*Client, error) {
	id, err := ParseSpreadsheetID(sheetURL)
	if err != nil {
		return nil, err
	}
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Sheets service: %w", err)
	}
	return &Client{svc: svc, id: id}, nil
}

// SpreadsheetID returns the ID of the spreadsheet c writes to.
func (c *Client) SpreadsheetID() string { return c.id }

// Append appends row after the last row of the first sheet. Values are stored
// as is, without parsing.
func (c *Client) Append(ctx context.Context, row []any) error {
	title, err := c.firstSheet(ctx)
	if err != nil {
		return err
	}

	rng := quoteSheet(title) + "!A1"
	call := c.svc.Spreadsheets.Values.Append(c.id, rng, &sheetsapi.ValueRange{Values: [][]any{row}})
	if _, err := call.ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do(); err != nil {
		return fmt.Errorf("appending to %s: %w", rng, err)
	}
	return nil
}

var errNoSheets = errors.New("spreadsheet has no sheets")

func (c *Client) firstSheet(ctx context.Context) (string, error) {
	ss, err := c.svc.Spreadsheets.Get(c.id).Fields("sheets.properties(sheetId,title,index)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("getting spreadsheet: %w", err)
	}

	var first *sheetsapi.SheetProperties
	for _, s := range ss.Sheets {
		if s.Properties == nil {
			continue
		}
		if first == nil || s.Properties.Index < first.Index {
			first = s.Properties
		}
	}
	if first == nil {
		return "", errNoSheets
	}
	return first.Title, nil
}

// quoteSheet quotes a sheet title for use in A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
