package importer

import (
	"regexp"
	"strings"
)

// DefaultCategory is assigned when no keyword matches.
const DefaultCategory = "General Concepts"

type categoryRule struct {
	category string
	keywords []*regexp.Regexp
}

// Rules are tried in order and the first matching keyword wins, so the more
// specific practices come before the broad ones.
var categoryRules = buildRules([]struct {
	category string
	keywords []string
}{
	{"Incident Management", []string{"incident", "unplanned interruption", "service interruption"}},
	{"Problem Management", []string{"problem", "known error", "workaround", "root cause"}},
	{"Change Control", []string{"change", "change authority", "change enablement", "change schedule"}},
	{"Service Desk", []string{"service desk", "single point of contact"}},
	{"Service Level Management", []string{"service level", "sla", "service level agreement"}},
	{"Service Request Management", []string{"service request", "request fulfillment"}},
	{"Continual Improvement", []string{"continual improvement", "improvement initiative", "improvement model"}},
	{"Release Management", []string{"release", "deployment"}},
	{"IT Asset Management", []string{"asset", "configuration item", "ci"}},
	{"Event Management", []string{"event", "monitoring"}},
	{"Information Security", []string{"security", "confidentiality", "integrity", "availability"}},
	{"Relationship Management", []string{"relationship", "stakeholder"}},
	{"Supplier Management", []string{"supplier", "vendor"}},
	{"Guiding Principles", []string{
		"guiding principle", "focus on value", "start where you are", "progress iteratively",
		"collaborate and promote", "think and work holistically", "keep it simple", "optimize and automate",
	}},
	{"Service Value System", []string{"service value system", "svs", "value chain"}},
	{"Four Dimensions", []string{
		"dimension", "organizations and people", "information and technology",
		"partners and suppliers", "value streams and processes",
	}},
})

// buildRules compiles each keyword to match at a word start. Keywords may be
// followed by a plural or verb suffix ("incidents", "changed") but never
// match inside another word, so "ci" does not fire on "decision".
func buildRules(defs []struct {
	category string
	keywords []string
}) []categoryRule {
	rules := make([]categoryRule, len(defs))
	for i, d := range defs {
		rules[i].category = d.category
		for _, kw := range d.keywords {
			pattern := `\b` + regexp.QuoteMeta(kw)
			if len(kw) <= 3 {
				pattern += `s?\b`
			}
			rules[i].keywords = append(rules[i].keywords, regexp.MustCompile(pattern))
		}
	}
	return rules
}

// Categorize assigns a category from keywords in the question text.
func Categorize(prompt string) string {
	text := strings.ToLower(prompt)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if kw.MatchString(text) {
				return rule.category
			}
		}
	}
	return DefaultCategory
}
