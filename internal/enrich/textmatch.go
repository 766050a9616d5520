package enrich

import (
	"regexp"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// shortKeywordLen is the longest keyword that is matched as a whole word.
// Longer keywords match anywhere in the text.
const shortKeywordLen = 4

// keywordSet is an immutable, pre-compiled keyword list. Long keywords share
// one Aho-Corasick automaton; short ones get a word-boundary regexp each.
type keywordSet struct {
	words   []string
	long    *ahocorasick.Matcher
	longIdx []int
	short   map[int]*regexp.Regexp
}

func newKeywordSet(words ...string) *keywordSet {
	ks := &keywordSet{words: words, short: make(map[int]*regexp.Regexp)}
	var dict []string
	for i, w := range words {
		lw := strings.ToLower(strings.TrimSpace(w))
		if lw == "" {
			continue
		}
		if len([]rune(lw)) <= shortKeywordLen {
			ks.short[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(lw) + `\b`)
			continue
		}
		dict = append(dict, lw)
		ks.longIdx = append(ks.longIdx, i)
	}
	if len(dict) > 0 {
		ks.long = ahocorasick.NewStringMatcher(dict)
	}
	return ks
}

// hits reports, per table position, whether the keyword occurs in lower.
// lower must already be lowercased.
func (ks *keywordSet) hits(lower string) []bool {
	out := make([]bool, len(ks.words))
	if lower == "" {
		return out
	}
	if ks.long != nil {
		for _, h := range ks.long.MatchThreadSafe([]byte(lower)) {
			if h >= 0 && h < len(ks.longIdx) {
				out[ks.longIdx[h]] = true
			}
		}
	}
	for i, re := range ks.short {
		if re.MatchString(lower) {
			out[i] = true
		}
	}
	return out
}

// Matches returns the keywords present in lower, in table order.
func (ks *keywordSet) Matches(lower string) []string {
	var found []string
	for i, ok := range ks.hits(lower) {
		if ok {
			found = append(found, ks.words[i])
		}
	}
	return found
}

func (ks *keywordSet) Any(lower string) bool {
	for _, ok := range ks.hits(lower) {
		if ok {
			return true
		}
	}
	return false
}

// HasAny reports whether text contains any of keywords, case-insensitively.
// Keywords of up to four characters must appear as whole words.
func HasAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if keywordIn(kw, lower) {
			return true
		}
	}
	return false
}

func keywordIn(kw, lower string) bool {
	lk := strings.ToLower(strings.TrimSpace(kw))
	if lk == "" {
		return false
	}
	if len([]rune(lk)) <= shortKeywordLen {
		return regexp.MustCompile(`\b` + regexp.QuoteMeta(lk) + `\b`).MatchString(lower)
	}
	return strings.Contains(lower, lk)
}

// Matcher is a compiled keyword list for callers outside the rule tables,
// with the same whole-word rule for short keywords as HasAny.
type Matcher struct {
	set *keywordSet
}

func NewMatcher(words ...string) *Matcher {
	return &Matcher{set: newKeywordSet(words...)}
}

// Any reports whether text contains any keyword, case-insensitively.
func (m *Matcher) Any(text string) bool {
	return m.set.Any(strings.ToLower(text))
}

// combinedText joins title and description into one lowercased haystack.
func combinedText(title, description string) string {
	return strings.ToLower(title + " " + description)
}
