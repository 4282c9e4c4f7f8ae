package embedded

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter matches "schema.table" names against a comma separated list of
// regular expressions. Each pattern is anchored at both ends and compared
// case-insensitively. The empty expression matches everything.
type Filter struct {
	expr     string
	patterns []*regexp.Regexp
}

func CompileFilter(expr string) (*Filter, error) {
	f := &Filter{expr: strings.TrimSpace(expr)}
	if f.expr == "" {
		return f, nil
	}
	for _, p := range strings.Split(f.expr, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile("(?i)^(?:" + p + ")$")
		if err != nil {
			return nil, fmt.Errorf("embedded: filter pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

func (f *Filter) Match(schema, table string) bool {
	if f == nil || len(f.patterns) == 0 {
		return true
	}
	name := schema + "." + table
	for _, re := range f.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
