package dialog

import (
	"strconv"
	"strings"

	"github.com/lflachs/cocorico-voice/pkg/inventory"
)

// Reply is the classification of a free-text confirmation answer.
type Reply int

const (
	// ReplyUnknown means the reply matched neither lexeme set.
	ReplyUnknown Reply = iota
	ReplyYes
	ReplyNo
)

// Bounded per-language lexeme sets. Replies are matched word by word
// after normalization, never by substring, so "note" does not read as
// "no".
var (
	yesLexemes = map[string][]string{
		"en": {"yes", "yeah", "yep", "sure", "ok", "okay", "correct", "right", "confirm"},
		"fr": {"oui", "ouais", "ok", "d'accord", "daccord", "exact", "correct", "confirme"},
	}
	noLexemes = map[string][]string{
		"en": {"no", "nope", "nah", "cancel", "wrong", "stop"},
		"fr": {"non", "annule", "annuler", "stop", "faux"},
	}
	newLexemes = map[string][]string{
		"en": {"new", "create"},
		"fr": {"nouveau", "nouvelle", "creer"},
	}
)

// ClassifyReply reads a transcribed reply as yes, no, or unknown for the
// given language. Unsupported languages fall back to English.
func ClassifyReply(text, lang string) Reply {
	words := replyWords(text)
	if len(words) == 0 {
		return ReplyUnknown
	}
	if containsAny(words, lexemesFor(yesLexemes, lang)) {
		return ReplyYes
	}
	if containsAny(words, lexemesFor(noLexemes, lang)) {
		return ReplyNo
	}
	return ReplyUnknown
}

// IsNewKeyword reports whether the reply asks for a new product instead
// of one of the listed candidates.
func IsNewKeyword(text, lang string) bool {
	return containsAny(replyWords(text), lexemesFor(newLexemes, lang))
}

func lexemesFor(table map[string][]string, lang string) []string {
	lang = strings.ToLower(strings.SplitN(lang, "-", 2)[0])
	if set, ok := table[lang]; ok {
		return set
	}
	return table["en"]
}

func replyWords(text string) []string {
	return strings.Fields(inventory.Normalize(text))
}

func containsAny(words, lexemes []string) bool {
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:")
		for _, l := range lexemes {
			if w == l {
				return true
			}
		}
	}
	return false
}

// ParsePrice extracts a unit price from a spoken reply. It finds the
// first numeric token, accepting a comma decimal separator. A nil result
// means no usable price was heard.
func ParsePrice(text string) *float64 {
	for _, w := range replyWords(text) {
		w = strings.Trim(w, ".,!?;:$€£")
		w = strings.ReplaceAll(w, ",", ".")
		v, err := strconv.ParseFloat(w, 64)
		if err != nil || v < 0 {
			continue
		}
		return &v
	}
	return nil
}
