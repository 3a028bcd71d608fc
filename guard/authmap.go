package guard

import (
	"sort"
	"strings"
)

// Rule grants PathPrefix to users whose level is at least RequiredLevel.
type Rule struct {
	PathPrefix    string `json:"path_prefix"`
	RequiredLevel int    `json:"required_level"`
}

// BuildAuthorizationMap derives prefix rules from a level to dashboard-path
// map. Rules are ordered by descending level so that a more specific prefix
// such as /dashboard/superadmin is matched before /dashboard. Levels below 1
// and empty paths are ignored.
func BuildAuthorizationMap(dashboards map[int]string) []Rule {
	rules := make([]Rule, 0, len(dashboards))
	for level, path := range dashboards {
		if level <= 0 || strings.TrimSpace(path) == "" {
			continue
		}
		rules = append(rules, Rule{PathPrefix: NormalizePath(path), RequiredLevel: level})
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].RequiredLevel > rules[j].RequiredLevel
	})
	return rules
}

// NormalizePath strips query, fragment and trailing slashes. An empty path
// becomes "/".
func NormalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimSpace(p)
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// hasPathPrefix matches whole segments, so /dashboardx does not fall under
// /dashboard.
func hasPathPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
