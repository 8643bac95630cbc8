// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package diary

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrParse is returned by [Parse] when the text has no "product amount unit"
// part.
var ErrParse = errors.New("no product, amount and unit found")

// space is the class of Unicode whitespace. RE2 matches only ASCII with \s.
const space = `\s\p{Z}\v\x{85}\x{1c}-\x{1f}`

var entryRe = regexp.MustCompile(`([а-яa-z` + space + `\-]+?)[` + space + `]*(\d+)[` + space + `]*(г|шт|ml|мл)`)

// Parse extracts the first "product amount unit" occurrence from text, like
// "овсянка 40г" or "яблоко 1 шт". Text around it is ignored.
//
// The returned Entry has no Date.
func Parse(text string) (Entry, error) {
	text = strings.ToLower(strings.TrimFunc(norm.NFC.String(text), isSpace))

	m := entryRe.FindStringSubmatch(text)
	if m == nil {
		return Entry{}, ErrParse
	}
	amount, err := strconv.Atoi(m[2])
	if err != nil {
		return Entry{}, ErrParse
	}
	return Entry{
		Product: strings.TrimFunc(m[1], isSpace),
		Amount:  amount,
		Unit:    m[3],
	}, nil
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || unicode.Is(unicode.Zs, r) || r >= 0x1c && r <= 0x1f
}
