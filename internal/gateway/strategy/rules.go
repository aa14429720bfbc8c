package strategy

import (
	"net/http"
	"strings"

	"github.com/louisbranch/cachegate/internal/gateway/version"
)

// Rule routes matching requests to a strategy and logical partition.
//
// A rule carries at most one matcher, checked in the order Exact, Prefix,
// Suffix, Accept; a rule with no matcher matches every request and serves as
// the terminal fallback.
type Rule struct {
	Exact  string
	Prefix string
	Suffix string
	Accept string

	Strategy  Strategy
	Partition string
}

// Matches reports whether the rule applies to the request.
func (r Rule) Matches(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	switch {
	case r.Exact != "":
		return req.URL.Path == r.Exact
	case r.Prefix != "":
		return strings.HasPrefix(req.URL.Path, r.Prefix)
	case r.Suffix != "":
		return strings.HasSuffix(req.URL.Path, r.Suffix)
	case r.Accept != "":
		return strings.Contains(req.Header.Get("Accept"), r.Accept)
	default:
		return true
	}
}

// staticExtensions are the build asset suffixes routed cache-first.
var staticExtensions = []string{
	".css", ".js", ".mjs",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
	".woff", ".woff2", ".ttf",
}

// DefaultRules is the standard routing table: static asset extensions are
// served cache-first, API and JSON paths stale-while-revalidate, HTML
// navigations network-first, and everything else network-first into the
// dynamic partition.
func DefaultRules() []Rule {
	rules := make([]Rule, 0, len(staticExtensions)+4)
	for _, ext := range staticExtensions {
		rules = append(rules, Rule{Suffix: ext, Strategy: CacheFirst, Partition: version.LogicalStatic})
	}
	rules = append(rules,
		Rule{Prefix: "/api/", Strategy: StaleWhileRevalidate, Partition: version.LogicalAPI},
		Rule{Suffix: ".json", Strategy: StaleWhileRevalidate, Partition: version.LogicalAPI},
		Rule{Accept: "text/html", Strategy: NetworkFirst, Partition: version.LogicalDynamic},
		Rule{Strategy: NetworkFirst, Partition: version.LogicalDynamic},
	)
	return rules
}

// Selector picks the first matching rule for a request.
type Selector struct {
	rules []Rule
}

// NewSelector builds a selector over an ordered rule list. Pass custom rules
// ahead of DefaultRules to override routing for specific paths.
func NewSelector(rules []Rule) *Selector {
	return &Selector{rules: rules}
}

// Select returns the strategy and logical partition for a request. When no
// rule matches, requests route network-first into the dynamic partition.
func (s *Selector) Select(req *http.Request) (Strategy, string) {
	if s != nil {
		for _, rule := range s.rules {
			if rule.Matches(req) {
				return rule.Strategy, rule.Partition
			}
		}
	}
	return NetworkFirst, version.LogicalDynamic
}
