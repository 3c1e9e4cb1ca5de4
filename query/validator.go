package query

import (
	"fmt"
	"regexp"
	"strings"
)

// rawFragmentGuard scans a caller-authored WhereRaw fragment for the shape
// of a stacked-query or comment-based injection attempt before it is
// allowed anywhere near SQL emission. This is NOT the engine's injection
// defense — bound parameters are (spec §4.2, invariant 4) — it is a second
// check on the one path (WhereRaw) where a caller supplies SQL text
// directly instead of a column/value pair, adapted from the teacher
// codebase's compiled injection-pattern list (server/sql_validator.go)
// down to the patterns that matter once values are never concatenated:
// statement stacking and comment-based truncation.
var rawFragmentGuard = []*regexp.Regexp{
	regexp.MustCompile(`(?i);\s*(select|insert|update|delete|drop|create|alter|truncate)\b`),
	regexp.MustCompile(`(?i)(--|#).*$`),
	regexp.MustCompile(`(?i)/\*.*?\*/`),
}

// validateRawFragment rejects a WhereRaw fragment that matches any guarded
// pattern, returning a descriptive error identifying which one.
func validateRawFragment(fragment string) error {
	for _, re := range rawFragmentGuard {
		if re.MatchString(fragment) {
			return fmt.Errorf("query: raw fragment %q matches a disallowed pattern %q", fragment, re.String())
		}
	}
	if strings.Count(fragment, "'")%2 != 0 {
		return fmt.Errorf("query: raw fragment %q has an unbalanced quote", fragment)
	}
	return nil
}
