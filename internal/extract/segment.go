package extract

import (
	"strings"
	"unicode"

	"github.com/abhisek/radgrade/internal/clinical"
)

// Sentence is one unit of report text. Offsets are runes into the
// normalized report.
type Sentence struct {
	Index   int           `json:"index"`
	Span    clinical.Span `json:"span"`
	Section string        `json:"section,omitempty"`
	Tokens  []Token       `json:"-"`
}

// Words returns the number of word tokens.
func (s Sentence) Words() int {
	n := 0
	for _, t := range s.Tokens {
		if !t.Punct {
			n++
		}
	}
	return n
}

// Segmentation is the output of Segment.
type Segmentation struct {
	Sentences []Sentence
	// Headers lists section headers in order of appearance, lowercased.
	Headers []string
}

// knownSections are recognized as headers when they open a line and end
// with a colon.
var knownSections = map[string]bool{
	"findings": true, "impression": true, "history": true, "clinical history": true,
	"indication": true, "comparison": true, "technique": true, "conclusion": true,
	"recommendation": true, "recommendations": true, "exam": true, "examination": true,
}

var abbreviations = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "vs": true,
	"approx": true, "fig": true, "st": true, "ca": true, "no": true,
}

// Segment splits text into sentences on '.', '!', '?', ';' and line
// breaks. Decimal points, dotted abbreviations and a short list of
// common abbreviations do not end a sentence. extraSections adds header
// names beyond the built-in set.
func Segment(text string, extraSections ...string) Segmentation {
	sections := knownSections
	if len(extraSections) > 0 {
		sections = make(map[string]bool, len(knownSections)+len(extraSections))
		for k := range knownSections {
			sections[k] = true
		}
		for _, s := range extraSections {
			sections[strings.ToLower(strings.TrimSpace(s))] = true
		}
	}

	runes := []rune(text)
	var seg Segmentation
	section := ""

	lineStart := 0
	for lineStart <= len(runes) {
		lineEnd := lineStart
		for lineEnd < len(runes) && runes[lineEnd] != '\n' {
			lineEnd++
		}

		start := lineStart
		if name, after, ok := headerAt(runes, lineStart, lineEnd, sections); ok {
			section = name
			seg.Headers = append(seg.Headers, name)
			start = after
		}
		seg.Sentences = appendSentences(seg.Sentences, runes, start, lineEnd, section)

		lineStart = lineEnd + 1
	}
	return seg
}

// headerAt detects "Name:" at the start of a line and returns the
// lowercased name and the offset just past the colon.
func headerAt(runes []rune, start, end int, sections map[string]bool) (string, int, bool) {
	i := start
	for i < end && unicode.IsSpace(runes[i]) {
		i++
	}
	for j := i; j < end && j-i <= 40; j++ {
		if runes[j] == ':' {
			name := strings.ToLower(strings.Join(strings.Fields(string(runes[i:j])), " "))
			if sections[name] {
				return name, j + 1, true
			}
			return "", 0, false
		}
		if !unicode.IsLetter(runes[j]) && runes[j] != ' ' {
			return "", 0, false
		}
	}
	return "", 0, false
}

func appendSentences(out []Sentence, runes []rune, start, end int, section string) []Sentence {
	from := start
	for i := start; i <= end; i++ {
		if i < end && !isBoundary(runes, i, end) {
			continue
		}
		s, e := trimSpan(runes, from, i)
		if s < e {
			out = append(out, Sentence{
				Index:   len(out),
				Span:    clinical.Span{Start: s, End: e, Text: string(runes[s:e])},
				Section: section,
				Tokens:  Tokenize(runes, s, e),
			})
		}
		from = i + 1
	}
	return out
}

func isBoundary(runes []rune, i, end int) bool {
	switch runes[i] {
	case '!', '?', ';':
		return true
	case '.':
	default:
		return false
	}

	next := rune(0)
	if i+1 < end {
		next = runes[i+1]
	}
	// Decimal point.
	if i > 0 && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(next) {
		return false
	}
	// Dotted forms such as "e.g." or "image.png".
	if unicode.IsLetter(next) {
		return false
	}
	j := i
	for j > 0 && unicode.IsLetter(runes[j-1]) {
		j--
	}
	if j == i {
		return true
	}
	// Second dot of "e.g." or "i.e.".
	if j > 0 && runes[j-1] == '.' {
		return false
	}
	word := strings.ToLower(string(runes[j:i]))
	if !abbreviations[word] {
		return true
	}
	if word == "no" {
		// "No. 3" abbreviates number; a bare "No." ends a sentence.
		return !(unicode.IsSpace(next) && i+2 < end && unicode.IsDigit(runes[i+2]))
	}
	return false
}

func trimSpan(runes []rune, s, e int) (int, int) {
	for s < e && unicode.IsSpace(runes[s]) {
		s++
	}
	for e > s && unicode.IsSpace(runes[e-1]) {
		e--
	}
	return s, e
}
