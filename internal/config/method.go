package config

import (
	"fmt"
	"strings"
)

// Method is one of the HTTP methods the load generator knows how to send.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// AllowsBody reports whether a configured body is attached for this method.
func (m Method) AllowsBody() bool {
	switch m {
	case MethodPost, MethodPut, MethodPatch:
		return true
	default:
		return false
	}
}

func (m Method) String() string { return string(m) }

// ParseMethod maps s case-insensitively onto a supported method.
// Empty input is GET. Anything unsupported also falls back to GET and yields a warning.
func ParseMethod(s string) (Method, *Warning) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch Method(name) {
	case "":
		return MethodGet, nil
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete, MethodHead, MethodOptions:
		return Method(name), nil
	default:
		return MethodGet, &Warning{
			Kind:    WarningUnsupportedMethod,
			Message: fmt.Sprintf("unsupported HTTP method %q, defaulting to GET", s),
		}
	}
}
