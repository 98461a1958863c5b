package topology

import (
	"regexp"
	"strings"

	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/util"
)

// compiledRule is an ExcludeRule ready for matching.
type compiledRule struct {
	rule model.ExcludeRule
	re   *regexp.Regexp
}

// RuleSet evaluates exclude rules against links.
type RuleSet struct {
	rules []compiledRule
}

// globToRegexp converts a shell-style pattern ('*' and '?') to an anchored,
// case-insensitive expression. Port names contain '/', so path.Match does not fit.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// NewRuleSet compiles rules. A rule that fails to compile is logged and skipped.
func NewRuleSet(rules []model.ExcludeRule) *RuleSet {
	rs := &RuleSet{}
	for _, r := range rules {
		cr := compiledRule{rule: r}
		if r.Type == model.RuleHostnamePattern || r.Type == model.RulePortPattern {
			re, err := globToRegexp(r.Pattern)
			if err != nil {
				util.Warn("Skipping exclude rule %d: %v", r.ID, err)
				continue
			}
			cr.re = re
		}
		rs.rules = append(rs.rules, cr)
	}
	return rs
}

// Excludes reports whether any rule suppresses the link. Hostnames are
// looked up in names by device id.
func (rs *RuleSet) Excludes(link model.MergedLink, names map[int64]string) bool {
	if rs == nil {
		return false
	}
	for _, cr := range rs.rules {
		if cr.matches(link, names) {
			return true
		}
	}
	return false
}

func (cr compiledRule) matches(link model.MergedLink, names map[int64]string) bool {
	switch cr.rule.Type {
	case model.RuleHostnamePattern:
		return cr.re.MatchString(names[link.DeviceAID]) || cr.re.MatchString(names[link.DeviceBID])
	case model.RulePortPattern:
		for _, pp := range link.PortPairs {
			if cr.re.MatchString(pp.LocalPort) || cr.re.MatchString(pp.RemotePort) {
				return true
			}
		}
	case model.RuleDevicePair:
		if cr.rule.DeviceAID == nil || cr.rule.DeviceBID == nil {
			return false
		}
		return model.NewPairKey(*cr.rule.DeviceAID, *cr.rule.DeviceBID) == link.Key()
	}
	return false
}
