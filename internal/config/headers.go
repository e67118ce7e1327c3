package config

import (
	"fmt"
	"strings"
)

// WarningKind identifies a non-fatal configuration problem.
type WarningKind string

const (
	WarningHeaderParse       WarningKind = "header_parse"
	WarningUnsupportedMethod WarningKind = "unsupported_method"
	WarningHighLoad          WarningKind = "high_load"
)

// Warning is a configuration problem that was worked around. The caller decides how to log it.
type Warning struct {
	Kind    WarningKind
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// ParseHeaderList parses a pipe separated list of "Name: value" entries.
// Each entry is split on its first colon so values may contain colons.
// Entries without a name or a colon are skipped and reported as warnings.
func ParseHeaderList(s string) (map[string]string, []Warning) {
	headers := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return headers, nil
	}

	var warnings []Warning
	for _, entry := range strings.Split(s, "|") {
		name, value, err := parseHeaderEntry(entry)
		if err != nil {
			warnings = append(warnings, Warning{Kind: WarningHeaderParse, Message: err.Error()})
			continue
		}
		headers[name] = value
	}
	return headers, warnings
}

func parseHeaderEntry(entry string) (string, string, error) {
	name, value, ok := strings.Cut(entry, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("malformed header %q, expected \"Name: value\"", strings.TrimSpace(entry))
	}
	return name, strings.TrimSpace(value), nil
}
