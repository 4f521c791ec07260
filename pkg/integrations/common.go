package integrations

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// requestTimeout bounds one round trip. Retries get their own budget.
const requestTimeout = 30 * time.Second

var (
	// ErrNotFound reports a package, version or advisory the upstream does
	// not know about.
	ErrNotFound = errors.New("registry: not found")

	// ErrNetwork reports a transport failure or an unexpected status.
	ErrNetwork = errors.New("registry: request failed")
)

var nameSeparators = regexp.MustCompile(`[-_.]+`)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// CanonicalName returns the PEP 503 form of a Python distribution name:
// lowercase, with runs of "-", "_" and "." collapsed to one "-".
func CanonicalName(name string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// BaseURL normalises a configured endpoint so paths can be appended.
func BaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
