package redis

import (
	"fmt"
	"net/url"
)

// splitPrefix removes the prefix query parameter, which go-redis would
// reject as an unknown option.
func splitPrefix(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid redis URL: %w", err)
	}
	q := u.Query()
	prefix := q.Get("prefix")
	q.Del("prefix")
	u.RawQuery = q.Encode()
	return prefix, u.String(), nil
}
