package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// isPattern reports whether an only-filter entry is a /regex/ pattern.
func isPattern(entry string) bool {
	return len(entry) >= 2 && strings.HasPrefix(entry, "/") && strings.HasSuffix(entry, "/")
}

func compilePattern(entry string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(entry[1 : len(entry)-1])
	if err != nil {
		return nil, fmt.Errorf("invalid ref pattern %s: %w", entry, err)
	}
	return re, nil
}

// MatchRef reports whether ref passes an only filter. An empty filter
// matches every ref.
func MatchRef(only []string, ref string) (bool, error) {
	if len(only) == 0 {
		return true, nil
	}
	for _, entry := range only {
		if !isPattern(entry) {
			if entry == ref {
				return true, nil
			}
			continue
		}
		re, err := compilePattern(entry)
		if err != nil {
			return false, err
		}
		if re.MatchString(ref) {
			return true, nil
		}
	}
	return false, nil
}

// RunsOn reports whether the stage runs for ref.
func (s *Stage) RunsOn(ref string) (bool, error) {
	return MatchRef(s.Only, ref)
}
