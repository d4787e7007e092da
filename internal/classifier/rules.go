package classifier

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Polarity decides how a matching rule affects the verdict.
type Polarity string

const (
	// Positive rules add their weight to the score.
	Positive Polarity = "positive"
	// Negative rules reject the post outright.
	Negative Polarity = "negative"
	// Required rules reject the post when they do not match.
	Required Polarity = "required"
)

// Categories used to derive the opportunity kind.
const (
	CategoryHiring  = "hiring"
	CategoryFunding = "funding"
)

// Rule is one declarative signal.
type Rule struct {
	Name     string   `mapstructure:"name"`
	Category string   `mapstructure:"category"`
	Polarity Polarity `mapstructure:"polarity"`
	Weight   float64  `mapstructure:"weight"`
	Keywords []string `mapstructure:"keywords"`
	Patterns []string `mapstructure:"patterns"`
}

type compiledRule struct {
	Rule
	matchers []*regexp.Regexp
}

func (r *compiledRule) match(text string) bool {
	for _, m := range r.matchers {
		if m.MatchString(text) {
			return true
		}
	}
	return false
}

func compile(r Rule) (*compiledRule, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, fmt.Errorf("rule without a name")
	}
	switch r.Polarity {
	case Positive, Negative, Required:
	case "":
		r.Polarity = Positive
	default:
		return nil, fmt.Errorf("rule %s: unknown polarity %q", r.Name, r.Polarity)
	}
	if r.Weight < 0 {
		return nil, fmt.Errorf("rule %s: negative weight", r.Name)
	}

	out := &compiledRule{Rule: r}
	if len(r.Keywords) > 0 {
		alts := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				alts = append(alts, keywordPattern(kw))
			}
		}
		if len(alts) > 0 {
			re, err := regexp.Compile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", r.Name, err)
			}
			out.matchers = append(out.matchers, re)
		}
	}
	for _, p := range r.Patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("rule %s: pattern %q: %w", r.Name, p, err)
		}
		out.matchers = append(out.matchers, re)
	}
	if len(out.matchers) == 0 {
		return nil, fmt.Errorf("rule %s: no keywords or patterns", r.Name)
	}
	return out, nil
}

// keywordPattern anchors the keyword on word boundaries where its edges are word characters.
func keywordPattern(kw string) string {
	var b strings.Builder
	runes := []rune(kw)
	if isWord(runes[0]) {
		b.WriteString(`\b`)
	}
	b.WriteString(regexp.QuoteMeta(kw))
	if isWord(runes[len(runes)-1]) {
		b.WriteString(`\b`)
	}
	return b.String()
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// DefaultRules is the stock ruleset for AI/ML hiring and funding posts.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "spam",
			Polarity: Negative,
			Keywords: []string{
				"crypto giveaway", "airdrop", "giveaway", "free course", "bootcamp", "webinar",
				"enroll now", "limited seats", "certification course", "link in bio", "masterclass",
			},
		},
		{
			Name:     "staffing-agency",
			Polarity: Negative,
			Keywords: []string{"staffing agency", "recruitment agency", "c2c", "corp to corp", "bench sales", "third party recruiter"},
		},
		{
			Name:     "off-topic",
			Polarity: Negative,
			Keywords: []string{"killed", "murdered", "war", "earthquake", "flood", "sports", "election", "movie", "celebrity"},
		},
		{
			Name:     "opinion",
			Polarity: Negative,
			Patterns: []string{
				`^stop\s+hiring`,
				`^why\s+(?:companies|startups|you)\s+(?:can't|don't|shouldn't|fail)`,
				`\bthe truth about\s+(?:hiring|recruiting)\b`,
				`\bi keep seeing\s+(?:job postings|companies|startups)\b`,
				`\bhere'?s what (?:actually|really) works\b`,
				`\bwhat (?:no one|nobody) tells you about\b`,
				`^(?:unpopular|hot|controversial)\s+(?:opinion|take)`,
				`\bfree\b.{0,30}\bkit\b`,
			},
		},
		{
			Name:     "seniority-exclusion",
			Polarity: Negative,
			Patterns: []string{
				`\b(?:senior|sr\.?|staff|principal)\s+(?:\w+\s+){0,2}(?:engineer|scientist|researcher|developer)s?\b`,
				`\b(?:director|vp|head)\s+of\s+\w+`,
				`\bchief\s+(?:technology|ai|data|science)\b`,
				`\b(?:[5-9]|1\d)\+?\s*(?:years|yrs)\s+(?:of\s+)?(?:experience|exp)\b`,
			},
		},
		{
			Name:     "disallowed-location",
			Polarity: Negative,
			Patterns: []string{
				`\b(?:us|usa|united states|u\.s\.)\s+only\b`,
				`\bus candidates only\b`,
				`\bmust be based in the us\b`,
				`\bremote \(us\)`,
				`\bus timezone only\b`,
				`\bonly in usa\b`,
			},
		},
		{
			Name:     "tech",
			Polarity: Required,
			Weight:   1,
			Keywords: []string{
				"ai", "ml", "llm", "llms", "machine learning", "artificial intelligence", "deep learning",
				"nlp", "computer vision", "generative ai", "genai", "pytorch", "tensorflow", "mlops",
				"data science", "rag", "transformers", "neural",
			},
		},
		{
			Name:     "hiring",
			Category: CategoryHiring,
			Weight:   2,
			Keywords: []string{
				"hiring", "we're hiring", "now hiring", "join our team", "join us", "looking for",
				"open role", "open roles", "job opening", "apply now", "recruiting",
			},
		},
		{
			Name:     "ai-role",
			Category: CategoryHiring,
			Weight:   3,
			Keywords: []string{
				"ai engineer", "ml engineer", "machine learning engineer", "data scientist",
				"research scientist", "applied scientist", "llm engineer", "nlp engineer",
				"computer vision engineer", "mlops engineer", "generative ai engineer",
				"ai researcher", "ml researcher", "applied ml", "deep learning engineer",
				"ai intern", "ml intern",
			},
		},
		{
			Name:     "position",
			Category: CategoryHiring,
			Weight:   1,
			Keywords: []string{
				"engineer", "engineers", "scientist", "scientists", "researcher", "researchers",
				"developer", "developers", "role", "position", "opening",
			},
		},
		{
			Name:     "hiring-ai-intent",
			Category: CategoryHiring,
			Weight:   1,
			Patterns: []string{`\b(?:hiring|looking for|open role)\b.*\b(?:ai|ml|llm|nlp|vision)\b`},
		},
		{
			Name:     "eligible-location",
			Category: CategoryHiring,
			Weight:   1,
			Keywords: []string{"remote", "worldwide", "anywhere", "hybrid", "india", "global"},
		},
		{
			Name:     "funding",
			Category: CategoryFunding,
			Weight:   2,
			Keywords: []string{
				"raised", "raises", "raising", "funding", "funded", "investment", "investors",
				"led by", "secures", "secured", "closes", "closed a",
			},
		},
		{
			Name:     "funding-stage",
			Category: CategoryFunding,
			Weight:   2,
			Keywords: []string{
				"series a", "series b", "series c", "series d", "seed round", "pre-seed",
				"backed by", "valuation", "raised $",
			},
		},
		{
			Name:     "funding-amount",
			Category: CategoryFunding,
			Weight:   2,
			Patterns: []string{`\$\s?\d+(?:[.,]\d+)?\s?(?:k|m|b|mn|bn|million|billion)\b`},
		},
	}
}
