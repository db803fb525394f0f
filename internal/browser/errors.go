package browser

import (
	"errors"
	"fmt"
	"strings"
)

// Category is a stable, caller-facing classification of a provider failure.
type Category string

const (
	CategoryClientError        Category = "client_error"
	CategorySessionClosed      Category = "session_closed"
	CategoryNavigationTimeout  Category = "navigation_timeout"
	CategoryProviderUnreachable Category = "provider_unreachable"
	CategoryUnknown            Category = "unknown"
)

// ProviderError is a failure reported by the remote provider, optionally
// carrying a diagnostic trace.
type ProviderError struct {
	Message string
	Trace   string
}

func (e *ProviderError) Error() string { return e.Message }

// ClassifiedError is what callers of the registry see for remote failures.
type ClassifiedError struct {
	Category Category
	Message  string
}

func (e *ClassifiedError) Error() string { return e.Message }

// Rule maps a provider error substring to a stable category. Rules are
// evaluated in order; the table is exported so deployments can extend it
// without touching the matching logic.
type Rule struct {
	Substring string
	Category  Category
}

// DefaultRules covers the provider wordings observed in production.
func DefaultRules() []Rule {
	return []Rule{
		{Substring: "context or browser has been closed", Category: CategorySessionClosed},
		{Substring: "browser has been closed", Category: CategorySessionClosed},
		{Substring: "Target closed", Category: CategorySessionClosed},
		{Substring: "Navigation timeout", Category: CategoryNavigationTimeout},
		{Substring: "net::ERR_CONNECTION", Category: CategoryProviderUnreachable},
		{Substring: "cannot connect", Category: CategoryProviderUnreachable},
		{Substring: "ECONNREFUSED", Category: CategoryProviderUnreachable},
	}
}

// Classify rewrites a provider failure into a stable category. Matched errors
// keep their original message verbatim (provider wording is already
// user-facing); unmatched errors pass through with the first line of any
// available trace appended.
func Classify(err error, rules []Rule) *ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	msg := err.Error()
	for _, r := range rules {
		if containsFold(msg, r.Substring) {
			return &ClassifiedError{Category: r.Category, Message: msg}
		}
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Trace != "" {
		first := pe.Trace
		if i := strings.IndexByte(first, '\n'); i >= 0 {
			first = first[:i]
		}
		return &ClassifiedError{Category: CategoryUnknown, Message: fmt.Sprintf("%s (%s)", msg, strings.TrimSpace(first))}
	}
	return &ClassifiedError{Category: CategoryUnknown, Message: msg}
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
