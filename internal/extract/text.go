// Package extract turns free-text radiology reports into canonical
// findings with source spans and polarity. Every stage is a pure
// function of its input except entity normalization, which consults the
// configured text model.
package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

var tagPattern = regexp.MustCompile(`(?i)</?(p|div|br|span|b|i|u|em|strong|ul|ol|li|h[1-6]|table|tr|td|th|section|article|body|html|font)\b[^>]*>`)

// blockElements end a line when rendered.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "table": true, "section": true, "article": true,
	"blockquote": true, "pre": true, "hr": true,
}

// LooksLikeMarkup reports whether s appears to be rich-text editor HTML.
func LooksLikeMarkup(s string) bool {
	return strings.ContainsRune(s, '<') && tagPattern.MatchString(s)
}

// ReduceMarkup renders HTML report text to plain text. Block elements
// become line breaks; everything else contributes only its text. Input
// that does not look like markup is returned unchanged.
func ReduceMarkup(s string) string {
	if !LooksLikeMarkup(s) {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}

	var b strings.Builder
	var walk func(sel *goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, child *goquery.Selection) {
			name := goquery.NodeName(child)
			switch name {
			case "#text":
				b.WriteString(child.Text())
				return
			case "#comment", "script", "style", "head":
				return
			}
			block := blockElements[name]
			if block {
				b.WriteByte('\n')
			}
			walk(child)
			if block && name != "br" {
				b.WriteByte('\n')
			}
		})
	}
	walk(doc.Selection)
	return b.String()
}

// Normalize prepares raw report text for extraction: markup reduction,
// NFKC normalization, CRLF folding and removal of control characters
// other than newline and tab. Spans produced downstream index into the
// returned string.
func Normalize(raw string) string {
	s := ReduceMarkup(raw)
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\r':
			return '\n'
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}
