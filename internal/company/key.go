// Package company turns free-form company mentions into canonical keys and
// lookup variants, and extracts company, role and domain hints from post text.
package company

import (
	"strings"
	"unicode"
)

var legalSuffixes = map[string]struct{}{
	"inc": {}, "incorporated": {}, "llc": {}, "ltd": {}, "limited": {}, "corp": {},
	"corporation": {}, "co": {}, "company": {}, "gmbh": {}, "plc": {}, "sa": {},
	"bv": {}, "ag": {}, "oy": {}, "pty": {}, "srl": {},
}

// CanonicalKey lower-cases the name, drops punctuation and trailing legal suffixes.
// "Acme, Inc." and "ACME" share a key.
func CanonicalKey(name string) string {
	words := tokens(name)
	for len(words) > 1 {
		if _, ok := legalSuffixes[words[len(words)-1]]; !ok {
			break
		}
		words = words[:len(words)-1]
	}
	if len(words) == 1 {
		if _, ok := legalSuffixes[words[0]]; ok {
			return ""
		}
	}
	return strings.Join(words, " ")
}

func tokens(s string) []string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "@")
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '&':
			b.WriteString(" and ")
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// Variants returns lookup variants for a company name: the name itself, then
// the name without AI/ML markers or legal suffixes ("Tactful AI" -> "Tactful",
// "Tactfulai" -> "Tactful").
func Variants(name string) []string {
	name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "@"))
	if name == "" {
		return nil
	}

	seen := map[string]struct{}{}
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if len([]rune(s)) < 2 {
			return
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}

	add(name)

	parts := strings.Fields(strings.NewReplacer(",", " ", ".", " ").Replace(name))
	for len(parts) > 1 {
		last := strings.ToLower(parts[len(parts)-1])
		if _, ok := legalSuffixes[last]; ok || last == "ai" || last == "ml" {
			parts = parts[:len(parts)-1]
			add(strings.Join(parts, " "))
			continue
		}
		break
	}

	if !strings.Contains(name, " ") && len(name) > 4 {
		lower := strings.ToLower(name)
		for _, end := range []string{"ai", "ml"} {
			if strings.HasSuffix(lower, end) {
				base := name[:len(name)-len(end)]
				add(base)
				add(base + " " + strings.ToUpper(end))
				break
			}
		}
	}

	return out
}

// Slugs returns hostname labels for the name variants: "Acme Robotics" ->
// "acmerobotics", "acme-robotics".
func Slugs(name string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, v := range Variants(name) {
		words := tokens(v)
		if len(words) == 0 {
			continue
		}
		for _, slug := range []string{strings.Join(words, ""), strings.Join(words, "-")} {
			if _, ok := seen[slug]; ok || slug == "" {
				continue
			}
			seen[slug] = struct{}{}
			out = append(out, slug)
		}
	}
	return out
}
