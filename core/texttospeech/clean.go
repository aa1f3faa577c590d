package texttospeech

import (
	"regexp"
	"strings"
)

// DefaultMaxSpeechLength caps how many characters are spoken per reply.
const DefaultMaxSpeechLength = 500

var (
	acronyms = regexp.MustCompile(`\b(AI|API|HTTP|JSON|URL|CLI)\b`)

	spokenAcronyms = map[string]string{
		"AI":   "A I",
		"API":  "A P I",
		"HTTP": "H T T P",
		"JSON": "J son",
		"URL":  "U R L",
		"CLI":  "C L I",
	}

	symbols = strings.NewReplacer(
		"L.U.N.A.", "Luna",
		"&", " and ",
		"@", " at ",
		"#", " hash ",
		"%", " percent",
		"*", "",
		"`", "",
	)

	spaces = regexp.MustCompile(`\s+`)
)

// CleanText rewrites text so it reads well aloud and truncates it to
// maxLength characters. A non-positive maxLength disables truncation.
func CleanText(text string, maxLength int) string {
	text = symbols.Replace(strings.TrimSpace(text))
	text = acronyms.ReplaceAllStringFunc(text, func(m string) string { return spokenAcronyms[m] })
	text = strings.TrimSpace(spaces.ReplaceAllString(text, " "))

	if runes := []rune(text); maxLength > 0 && len(runes) > maxLength {
		text = string(runes[:max(maxLength-3, 0)]) + "..."
	}
	return text
}
