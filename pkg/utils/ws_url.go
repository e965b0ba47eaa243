package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildWebSocketURL turns an http(s) or ws(s) base URL into the transport's
// event socket URL for instanceID. A base without a path gets /events.
func BuildWebSocketURL(baseURL, instanceID string) (string, error) {
	wsURL := baseURL
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("parse transport url %q: %w", baseURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported transport url scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/events"
	}
	if instanceID != "" {
		q := u.Query()
		q.Set("instance", instanceID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
