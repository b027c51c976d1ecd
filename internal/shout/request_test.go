package shout

import (
	"context"
	"testing"
)

// urlError wraps an error the way *url.Error does.
type urlError struct {
	op  string
	err error
}

func (e *urlError) Error() string { return e.op + ": " + e.err.Error() }
func (e *urlError) Unwrap() error { return e.err }

func TestNewShoutRequestURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		base string
		want string
	}{
		{"https://pt.example/", "https://pt.example/shoutbox.php"},
		{"https://pt.example", "https://pt.example/shoutbox.php"},
		{"https://pt.example/sub/", "https://pt.example/sub/shoutbox.php"},
		{"https://pt.example/index.php", "https://pt.example/shoutbox.php"},
	}
	for _, tt := range tests {
		req, err := newShoutRequest(context.Background(), tt.base, "x", "c", "ua")
		if err != nil {
			t.Fatalf("newShoutRequest(%q): %v", tt.base, err)
		}
		u := *req.URL
		u.RawQuery = ""
		if u.String() != tt.want {
			t.Fatalf("url for %q = %q, want %q", tt.base, u.String(), tt.want)
		}
	}
	if _, err := newShoutRequest(context.Background(), "not a url", "x", "c", "ua"); err == nil {
		t.Fatal("expected error for relative url")
	}
}

func TestDomainOf(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"https://PT.Example.org/":       "pt.example.org",
		"http://127.0.0.1:8080/a/":      "127.0.0.1:8080",
		"":                              "",
		"https://pt.example/x?y=1#frag": "pt.example",
	}
	for in, want := range tests {
		if got := DomainOf(in); got != want {
			t.Fatalf("DomainOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewClients(t *testing.T) {
	t.Parallel()
	c, err := NewClients(ClientConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if c.Proxied != nil || c.For(true) != c.Direct {
		t.Fatal("proxy sites should fall back to the direct client")
	}
	for _, p := range []string{"http://127.0.0.1:3128", "socks5://user:pw@127.0.0.1:1080"} {
		c, err := NewClients(ClientConfig{Proxy: p})
		if err != nil {
			t.Fatalf("NewClients(%q): %v", p, err)
		}
		if c.For(true) == c.Direct || c.For(false) != c.Direct {
			t.Fatalf("proxy %q not selected", p)
		}
	}
	if _, err := NewClients(ClientConfig{Proxy: "ftp://x"}); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
}
