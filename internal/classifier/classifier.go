// Package classifier maps raw user-agent strings to bot identities.
//
// Classification is an ordered rule scan: the first rule whose pattern
// matches wins, so the rule table is a precedence list, not a set. Rules are
// plain data so new bots can be added without touching dispatch logic.
package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/waio/crawlwatch/internal/visit"
)

// Rule maps a user-agent pattern to a bot identity. Pattern is a
// case-insensitive regular expression matched anywhere in the string.
type Rule struct {
	Pattern  string         `json:"pattern" yaml:"pattern"`
	Name     string         `json:"name" yaml:"name"`
	Company  string         `json:"company" yaml:"company"`
	Category visit.Category `json:"category" yaml:"category"`
}

// defaultRules is the built-in precedence list. Ordering is significant:
// some patterns are substrings of others, and the earlier rule must win.
var defaultRules = []Rule{
	// LLM training / inference crawlers.
	{Pattern: `GPTBot`, Name: "GPTBot", Company: "OpenAI", Category: visit.CategoryLLM},
	{Pattern: `ClaudeBot`, Name: "ClaudeBot", Company: "Anthropic", Category: visit.CategoryLLM},
	{Pattern: `anthropic-ai`, Name: "Anthropic AI", Company: "Anthropic", Category: visit.CategoryLLM},
	{Pattern: `Google-Extended`, Name: "Google-Extended", Company: "Google", Category: visit.CategoryLLM},

	// Search engines.
	{Pattern: `Googlebot`, Name: "Googlebot", Company: "Google", Category: visit.CategorySearchEngine},
	{Pattern: `bingbot`, Name: "Bingbot", Company: "Microsoft", Category: visit.CategorySearchEngine},
	{Pattern: `Yandex`, Name: "YandexBot", Company: "Yandex", Category: visit.CategorySearchEngine},
	{Pattern: `DuckDuckBot`, Name: "DuckDuckBot", Company: "DuckDuckGo", Category: visit.CategorySearchEngine},

	// Social link-preview fetchers.
	{Pattern: `facebookexternalhit`, Name: "FacebookBot", Company: "Meta", Category: visit.CategorySocial},
	{Pattern: `Twitterbot`, Name: "Twitterbot", Company: "Twitter/X", Category: visit.CategorySocial},
}

// genericBotRE is the fallback "looks like automation" heuristic applied when
// no rule matches.
var genericBotRE = regexp.MustCompile(`(?i)bot|crawl|spider|slurp`)

var (
	genericIdentity = visit.Identity{Name: "Generic Bot", Company: "Unknown", Category: visit.CategoryOther}
	unknownIdentity = visit.Identity{Name: "Unknown", Company: "Unknown", Category: visit.CategoryUnknown}
)

type compiledRule struct {
	re       *regexp.Regexp
	identity visit.Identity
}

// Classifier identifies crawlers from their declared user agent. It is
// immutable after construction and safe for concurrent use.
type Classifier struct {
	rules []compiledRule
}

// New compiles the given rules, in order, ahead of the built-in table. The
// extra rules therefore take precedence over the defaults.
func New(extra []Rule) (*Classifier, error) {
	rules := make([]Rule, 0, len(extra)+len(defaultRules))
	rules = append(rules, extra...)
	rules = append(rules, defaultRules...)

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("rule %q has an empty pattern", r.Name)
		}
		if !r.Category.Valid() {
			return nil, fmt.Errorf("rule %q has invalid category %q", r.Name, r.Category)
		}
		pattern := r.Pattern
		if !strings.HasPrefix(pattern, "(?i)") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{
			re:       re,
			identity: visit.Identity{Name: r.Name, Company: r.Company, Category: r.Category},
		})
	}
	return &Classifier{rules: compiled}, nil
}

// Default returns a classifier with only the built-in rule table.
func Default() *Classifier {
	c, err := New(nil)
	if err != nil {
		// The built-in table is static and must compile.
		panic(err)
	}
	return c
}

// Identify returns the identity of the first matching rule, the generic-bot
// identity when only the automation heuristic matches, and the unknown
// identity otherwise. It is total: every string maps to an identity.
func (c *Classifier) Identify(userAgent string) visit.Identity {
	if userAgent == "" {
		return unknownIdentity
	}
	for _, rule := range c.rules {
		if rule.re.MatchString(userAgent) {
			return rule.identity
		}
	}
	if genericBotRE.MatchString(userAgent) {
		return genericIdentity
	}
	return unknownIdentity
}

// DefaultRules returns a copy of the built-in rule table, primarily for
// listing the recognized bots in diagnostics.
func DefaultRules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}
