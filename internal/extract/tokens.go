package extract

import (
	"strings"
	"unicode"
)

// Token is a lowercased word or a separating punctuation mark. Start and
// End are rune offsets into the normalized report.
type Token struct {
	Text  string
	Start int
	End   int
	Punct bool
}

// Tokenize splits runes[start:end] into word and punctuation tokens.
// Words are runs of letters and digits, with inner apostrophes and
// decimal points kept.
// Hyphens, underscores and slashes separate words.
func Tokenize(runes []rune, start, end int) []Token {
	var out []Token
	i := start
	for i < end {
		r := runes[i]
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			j := i + 1
			for j < end {
				c := runes[j]
				if unicode.IsLetter(c) || unicode.IsDigit(c) {
					j++
					continue
				}
				if (c == '\'' || c == '’') && j+1 < end && unicode.IsLetter(runes[j+1]) {
					j++
					continue
				}
				if c == '.' && j+1 < end && unicode.IsDigit(runes[j-1]) && unicode.IsDigit(runes[j+1]) {
					j++
					continue
				}
				break
			}
			out = append(out, Token{Text: strings.ToLower(string(runes[i:j])), Start: i, End: j})
			i = j
		case r == ',' || r == ':' || r == '(' || r == ')' || r == '"':
			out = append(out, Token{Text: string(r), Start: i, End: i + 1, Punct: true})
			i++
		default:
			i++
		}
	}
	return out
}
