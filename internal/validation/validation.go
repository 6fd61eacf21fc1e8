// Package validation checks identifiers that arrive from configuration and
// HTTP paths before they reach the feed service or the store.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	videoIDRegex  = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	countryRegex  = regexp.MustCompile(`^[a-z]{2}$`)
	endpointRegex = regexp.MustCompile(`^[a-z0-9_-]+(/[a-z0-9_-]+)*$`)
)

// IsValidVideoID reports whether id looks like a video identifier.
func IsValidVideoID(id string) bool {
	return videoIDRegex.MatchString(id)
}

// IsValidCountry reports whether code is a lower-case two-letter region code.
func IsValidCountry(code string) bool {
	return countryRegex.MatchString(code)
}

// ValidateEndpoint checks a feed endpoint path relative to the service root,
// such as "public/explore".
func ValidateEndpoint(path string) error {
	if strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return fmt.Errorf("endpoint %q must not start or end with a slash", path)
	}
	if !endpointRegex.MatchString(path) {
		return fmt.Errorf("invalid endpoint format: %q", path)
	}
	return nil
}
