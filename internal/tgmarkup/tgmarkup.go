// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package tgmarkup converts Markdown text to Telegram message text with
// formatting entities, so no parse_mode escaping is needed when sending it.
package tgmarkup

import (
	"strings"
	"unicode/utf16"

	"rsc.io/markdown"
)

// Message is a text with formatting entities, ready to be embedded into
// a sendMessage request.
// See https://core.telegram.org/bots/api#sendmessage.
type Message struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities,omitempty"`
}

// Type represents the type of a Telegram message entity.
// See https://core.telegram.org/bots/api#messageentity.
type Type string

// Entity types produced by [FromMarkdown].
const (
	Bold          Type = "bold"
	Italic        Type = "italic"
	Strikethrough Type = "strikethrough"
	Blockquote    Type = "blockquote"
	Code          Type = "code" // monowidth string
	Pre           Type = "pre"  // monowidth block
	URL           Type = "url"
	TextLink      Type = "text_link"
)

// Entity is a formatted part of the message text.
type Entity struct {
	Type Type `json:"type"`
	// Offset in UTF-16 code units to the start of the entity.
	Offset int `json:"offset"`
	// Length of the entity in UTF-16 code units.
	Length int `json:"length"`
	// For "text_link" only, URL that will be opened after user taps on the
	// text.
	URL string `json:"url,omitempty"`
	// For "pre" only, the programming language of the entity text.
	Language string `json:"language,omitempty"`
}

// FromMarkdown converts a Markdown text to a [Message].
//
// Blocks are separated by a single newline. Soft line breaks inside a
// paragraph are kept.
func FromMarkdown(text string) Message {
	var p markdown.Parser
	doc := p.Parse(text)

	c := new(converter)
	c.blocks(doc.Blocks)
	return Message{Text: c.sb.String(), Entities: c.entities}
}

type converter struct {
	sb       strings.Builder
	pos      int // current length of sb in UTF-16 code units
	entities []Entity
}

func (c *converter) write(s string) {
	c.sb.WriteString(s)
	c.pos += utf16len(s)
}

// wrap records an entity spanning everything f writes.
func (c *converter) wrap(e Entity, f func()) {
	e.Offset = c.pos
	f()
	if e.Length = c.pos - e.Offset; e.Length > 0 {
		c.entities = append(c.entities, e)
	}
}

func (c *converter) blocks(bs []markdown.Block) {
	for i, b := range bs {
		if i > 0 {
			c.write("\n")
		}
		c.block(b)
	}
}

func (c *converter) block(b markdown.Block) {
	switch block := b.(type) {
	case *markdown.Paragraph:
		c.inlines(block.Text.Inline)
	case *markdown.Heading:
		c.wrap(Entity{Type: Bold}, func() { c.inlines(block.Text.Inline) })
	case *markdown.Quote:
		c.wrap(Entity{Type: Blockquote}, func() { c.blocks(block.Blocks) })
	case *markdown.CodeBlock:
		c.wrap(Entity{Type: Pre, Language: block.Info}, func() {
			c.write(strings.Join(block.Text, "\n"))
		})
	case *markdown.List:
		for i, item := range block.Items {
			if i > 0 {
				c.write("\n")
			}
			if it, ok := item.(*markdown.Item); ok {
				c.write("• ")
				c.blocks(it.Blocks)
			}
		}
	case *markdown.ThematicBreak:
		c.write("⸻")
	}
}

func (c *converter) inlines(is []markdown.Inline) {
	for _, i := range is {
		c.inline(i)
	}
}

func (c *converter) inline(i markdown.Inline) {
	switch inline := i.(type) {
	case *markdown.Plain:
		c.write(inline.Text)
	case *markdown.Escaped:
		c.write(inline.Text)
	case *markdown.Strong:
		c.wrap(Entity{Type: Bold}, func() { c.inlines(inline.Inner) })
	case *markdown.Emph:
		c.wrap(Entity{Type: Italic}, func() { c.inlines(inline.Inner) })
	case *markdown.Del:
		c.wrap(Entity{Type: Strikethrough}, func() { c.inlines(inline.Inner) })
	case *markdown.Link:
		c.wrap(Entity{Type: TextLink, URL: inline.URL}, func() { c.inlines(inline.Inner) })
	case *markdown.AutoLink:
		c.wrap(Entity{Type: URL}, func() { c.write(inline.Text) })
	case *markdown.Code:
		c.wrap(Entity{Type: Code}, func() { c.write(inline.Text) })
	case *markdown.SoftBreak, *markdown.HardBreak:
		c.write("\n")
	}
}

func utf16len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
