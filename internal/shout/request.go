package shout

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

const (
	shoutboxPath = "shoutbox.php"
	shoutButton  = "我喊"

	// DefaultUserAgent is sent when neither the site nor the config provides one.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// newShoutRequest builds GET <base>/shoutbox.php?shbox_text=..&shout=我喊&sent=yes&type=shoutbox.
// The path is resolved against the base URL, so a base without a trailing
// slash replaces its last path segment.
func newShoutRequest(ctx context.Context, baseURL, text, cookie, ua string) (*http.Request, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, err
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid site url %q", baseURL)
	}
	u := base.ResolveReference(&url.URL{Path: shoutboxPath})
	q := url.Values{}
	q.Set("shbox_text", text)
	q.Set("shout", shoutButton)
	q.Set("sent", "yes")
	q.Set("type", "shoutbox")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cookie", cookie)
	req.Header.Set("User-Agent", ua)
	return req, nil
}

// DomainOf returns the lower-cased authority (host[:port]) of rawURL, or ""
// when it cannot be parsed.
func DomainOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// errorText renders a transport error without the "Get <url>:" prefix that
// *url.Error adds. Timeouts read as "timeout".
func errorText(err error) string {
	if isTimeout(err) {
		return "timeout"
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err.Error()
	}
	return err.Error()
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
