// Package classifier decides whether a post describes a relevant opportunity.
// Rules are data; the engine only evaluates them.
package classifier

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

const (
	DefaultThreshold     = 0.5
	DefaultSaturation    = 8
	DefaultMinLength     = 20
	DefaultKindThreshold = 4
)

// Config holds the tunable policy.
type Config struct {
	Threshold     float64 `mapstructure:"threshold"`
	Saturation    float64 `mapstructure:"saturation"`
	MinLength     int     `mapstructure:"min-length"`
	KindThreshold float64 `mapstructure:"kind-threshold"`
	Rules         []Rule  `mapstructure:"rules"`
}

// Classifier evaluates a compiled ruleset. It is safe for concurrent use.
type Classifier struct {
	cfg      Config
	negative []*compiledRule
	required []*compiledRule
	positive []*compiledRule
}

// New validates the configuration and compiles the rules.
func New(cfg Config) (*Classifier, error) {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be within [0,1], got %v", cfg.Threshold)
	}
	if cfg.Saturation <= 0 {
		cfg.Saturation = DefaultSaturation
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.KindThreshold <= 0 {
		cfg.KindThreshold = DefaultKindThreshold
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRules()
	}

	c := &Classifier{cfg: cfg}
	seen := make(map[string]struct{}, len(cfg.Rules))
	for _, r := range cfg.Rules {
		compiled, err := compile(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[compiled.Name]; dup {
			return nil, fmt.Errorf("duplicate rule name %q", compiled.Name)
		}
		seen[compiled.Name] = struct{}{}

		switch compiled.Polarity {
		case Negative:
			c.negative = append(c.negative, compiled)
		case Required:
			c.required = append(c.required, compiled)
		default:
			c.positive = append(c.positive, compiled)
		}
	}
	return c, nil
}

// Classify scores a post. Identical input always yields an identical result.
func (c *Classifier) Classify(post *lead.Post) lead.ClassificationResult {
	text := strings.Join(strings.Fields(post.RawText), " ")

	if len([]rune(text)) < c.cfg.MinLength {
		return reject("too_short", nil, 0)
	}

	for _, r := range c.negative {
		if r.match(text) {
			return reject("negative:"+r.Name, []string{r.Name}, 0)
		}
	}

	var (
		sum        float64
		matched    []string
		categories = map[string]float64{}
	)

	for _, r := range c.required {
		if !r.match(text) {
			return reject("missing:"+r.Name, matched, 0)
		}
		matched = append(matched, r.Name)
		sum += r.Weight
		if r.Category != "" {
			categories[r.Category] += r.Weight
		}
	}

	for _, r := range c.positive {
		if r.match(text) {
			matched = append(matched, r.Name)
			sum += r.Weight
			if r.Category != "" {
				categories[r.Category] += r.Weight
			}
		}
	}

	score := sum
	if score > c.cfg.Saturation {
		score = c.cfg.Saturation
	}
	score /= c.cfg.Saturation

	if score < c.cfg.Threshold {
		return reject("below_threshold", matched, score)
	}

	sort.Strings(matched)
	return lead.ClassificationResult{
		Accepted:       true,
		Score:          score,
		MatchedSignals: matched,
		Kind:           c.kind(categories),
	}
}

func (c *Classifier) kind(categories map[string]float64) lead.Kind {
	hiring := categories[CategoryHiring]
	funding := categories[CategoryFunding]

	switch {
	case hiring >= c.cfg.KindThreshold && funding >= c.cfg.KindThreshold:
		return lead.KindBoth
	case funding >= c.cfg.KindThreshold:
		return lead.KindFunding
	case hiring >= c.cfg.KindThreshold:
		return lead.KindHiring
	case funding > hiring:
		return lead.KindFunding
	}
	return lead.KindHiring
}

func reject(reason string, matched []string, score float64) lead.ClassificationResult {
	signals := append([]string(nil), matched...)
	sort.Strings(signals)
	return lead.ClassificationResult{
		Score:           score,
		MatchedSignals:  signals,
		RejectionReason: reason,
	}
}

// Status describes one active rule.
type Status struct {
	Name    string
	Details map[string]string
}

// Describe returns the active ruleset in evaluation order.
func (c *Classifier) Describe() []Status {
	var out []Status
	for _, group := range [][]*compiledRule{c.negative, c.required, c.positive} {
		for _, r := range group {
			details := map[string]string{
				"polarity": string(r.Polarity),
				"weight":   strconv.FormatFloat(r.Weight, 'f', -1, 64),
				"matchers": strconv.Itoa(len(r.Keywords) + len(r.Patterns)),
			}
			if r.Category != "" {
				details["category"] = r.Category
			}
			out = append(out, Status{Name: r.Name, Details: details})
		}
	}
	return out
}

// Log writes the thresholds, then every rule at debug level.
func (c *Classifier) Log(logger *zap.Logger) {
	if logger == nil {
		return
	}
	logger.Info("classifier ruleset",
		zap.Float64("threshold", c.cfg.Threshold),
		zap.Float64("saturation", c.cfg.Saturation),
		zap.Int("min_length", c.cfg.MinLength),
		zap.Int("rules", len(c.negative)+len(c.required)+len(c.positive)),
	)
	for _, s := range c.Describe() {
		logger.Debug("classifier rule", zap.String("name", s.Name), zap.Any("details", s.Details))
	}
}
