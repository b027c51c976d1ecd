package shout

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const DefaultTimeout = 30 * time.Second

// ClientConfig configures the outbound clients.
type ClientConfig struct {
	Timeout time.Duration
	// Proxy is used by sites flagged proxy=true. http(s):// and socks5(h):// are supported.
	Proxy string
}

// Clients holds the direct client and, when a proxy is configured, the proxied one.
type Clients struct {
	Direct  Doer
	Proxied Doer
}

// For returns the client a site should use. Sites flagged for proxy fall back
// to the direct client when no proxy is configured.
func (c Clients) For(useProxy bool) Doer {
	if useProxy && c.Proxied != nil {
		return c.Proxied
	}
	return c.Direct
}

func NewClients(cfg ClientConfig) (Clients, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	direct, err := buildClient(timeout, "")
	if err != nil {
		return Clients{}, err
	}
	out := Clients{Direct: direct}
	if p := strings.TrimSpace(cfg.Proxy); p != "" {
		proxied, err := buildClient(timeout, p)
		if err != nil {
			return Clients{}, fmt.Errorf("http.proxy: %w", err)
		}
		out.Proxied = proxied
	}
	return out, nil
}

func buildClient(timeout time.Duration, proxyAddr string) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if proxyAddr != "" {
		u, err := url.Parse(proxyAddr)
		if err != nil {
			return nil, err
		}
		switch u.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(u)
		case "socks5", "socks5h":
			dialer, err := socks5Dialer(u)
			if err != nil {
				return nil, err
			}
			transport.Proxy = nil
			transport.DialContext = dialer.DialContext
		default:
			return nil, fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

type contextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

func socks5Dialer(u *url.URL) (contextDialer, error) {
	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}
	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return nil, err
	}
	ctxDialer, ok := dialer.(contextDialer)
	if !ok {
		return nil, errors.New("proxy dialer does not support context")
	}
	return ctxDialer, nil
}
