package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateScrapeURL checks that raw is an absolute http(s) URL whose host is
// neither localhost nor a private IP literal, and returns it normalized.
func ValidateScrapeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return "", fmt.Errorf("invalid URL: missing scheme")
	default:
		return "", fmt.Errorf("invalid scheme: %s", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("missing host")
	}

	if err := ValidateHostNotPrivateIP(host); err != nil {
		return "", err
	}

	lower := strings.ToLower(strings.TrimSuffix(host, "."))
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return "", fmt.Errorf("localhost not allowed")
	}

	return u.String(), nil
}
