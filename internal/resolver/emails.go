package resolver

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

// DefaultPatterns are local-part templates in likelihood order.
var DefaultPatterns = []string{
	"{first}.{last}",
	"{f}{last}",
	"{first}",
	"{first}{last}",
	"{f}.{last}",
	"{first}_{last}",
	"{last}",
}

// fold lower-cases and strips diacritics and anything that is not a letter or digit.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(out) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// nameParts returns the folded first and last name.
func nameParts(fullName string) (string, string) {
	var words []string
	for _, w := range strings.Fields(fullName) {
		if f := fold(w); f != "" {
			words = append(words, f)
		}
	}
	if len(words) < 2 {
		return "", ""
	}
	return words[0], words[len(words)-1]
}

// Candidates renders the patterns for a person at domain. Duplicate addresses
// keep the position of their first pattern.
func Candidates(fullName, domain string, patterns []string) []*lead.EmailCandidate {
	first, last := nameParts(fullName)
	if first == "" || domain == "" {
		return nil
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	r := strings.NewReplacer("{first}", first, "{last}", last, "{f}", first[:1], "{l}", last[:1])
	seen := map[string]struct{}{}
	var out []*lead.EmailCandidate
	for _, p := range patterns {
		local := r.Replace(p)
		if local == "" || strings.ContainsAny(local, "{}") {
			continue
		}
		addr := local + "@" + strings.ToLower(domain)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, lead.NewCandidate(addr, RuleName(p)))
	}
	return out
}

// RuleName is the generation rule recorded for a pattern: "{first}.{last}" -> "first.last".
func RuleName(pattern string) string {
	return strings.NewReplacer("{", "", "}", "").Replace(pattern)
}

// MatchesName reports whether an address's local part fits the person.
func MatchesName(address, fullName string) bool {
	local, _, ok := strings.Cut(strings.ToLower(address), "@")
	if !ok {
		return false
	}
	first, last := nameParts(fullName)
	if first == "" {
		return false
	}
	switch local {
	case first + "." + last, first + last, first[:1] + last, first[:1] + "." + last, first + "_" + last, first:
		return true
	}
	return false
}
