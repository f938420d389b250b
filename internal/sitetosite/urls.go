package sitetosite

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bft-labs/recordship/internal/domain"
)

// ParseClusterURLs parses a comma-separated list of peer URLs.
// Each URL must be http or https with a host. A trailing "/" or "/nifi"
// path is removed and duplicates are dropped, keeping the first occurrence.
func ParseClusterURLs(s string) ([]*url.URL, error) {
	var out []*url.URL
	seen := make(map[string]bool)

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		u, err := url.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("%w: destination url %q: %v", domain.ErrInvalidConfig, part, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("%w: destination url %q must use http or https", domain.ErrInvalidConfig, part)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("%w: destination url %q has no host", domain.ErrInvalidConfig, part)
		}

		u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/nifi")
		u.RawPath = ""
		u.RawQuery = ""
		u.Fragment = ""

		key := u.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one destination url is required", domain.ErrInvalidConfig)
	}
	return out, nil
}
