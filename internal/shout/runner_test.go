package shout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"autoshout/internal/notifier"
	"autoshout/internal/sites"
	logx "autoshout/pkg/logx"
)

type staticSites []sites.Site

func (s staticSites) Candidates() []sites.Site { return s }

type statCall struct {
	ok      bool
	domain  string
	elapsed time.Duration
}

type fakeStats struct {
	mu    sync.Mutex
	calls []statCall
}

func (f *fakeStats) RecordSuccess(_ context.Context, domain string, elapsed time.Duration) {
	f.mu.Lock()
	f.calls = append(f.calls, statCall{ok: true, domain: domain, elapsed: elapsed})
	f.mu.Unlock()
}

func (f *fakeStats) RecordFailure(_ context.Context, domain string) {
	f.mu.Lock()
	f.calls = append(f.calls, statCall{domain: domain})
	f.mu.Unlock()
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notifier.Message
}

func (f *fakeNotifier) Notify(_ context.Context, m notifier.Message) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, m)
	f.mu.Unlock()
	return nil
}

// doerFunc adapts a function to Doer.
type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

type countingDoer struct {
	n    atomic.Int32
	next Doer
}

func (c *countingDoer) Do(r *http.Request) (*http.Response, error) {
	c.n.Add(1)
	return c.next.Do(r)
}

// shoutbox serves /<name>/shoutbox.php with the status configured per name.
func shoutbox(t *testing.T, status map[string]int, seen chan<- *http.Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			seen <- r.Clone(context.Background())
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[1] != "shoutbox.php" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status[parts[0]])
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRunner(src SiteSource, doer Doer) (*Runner, *fakeStats, *fakeNotifier) {
	st := &fakeStats{}
	nt := &fakeNotifier{}
	r := NewRunner(Options{
		Sites:    src,
		Stats:    st,
		Notifier: nt,
		Clients:  Clients{Direct: doer},
		Log:      logx.Nop(),
	})
	return r, st, nt
}

func site(id, name, url string) sites.Site {
	return sites.Site{ID: id, Name: name, URL: url, Cookie: "uid=1; pass=x"}
}

func TestRunClassifiesAndReportsInOrder(t *testing.T) {
	srv := shoutbox(t, map[string]int{"a": 200, "b": 500, "c": 403}, nil)
	src := staticSites{
		site("1", "A", srv.URL+"/a/"),
		site("2", "B", srv.URL+"/b/"),
		site("3", "C", srv.URL+"/c/"),
	}
	r, st, nt := newTestRunner(src, srv.Client())

	rep := r.Run(context.Background(), Request{Trigger: TriggerCron, Text: "hi", SiteIDs: []string{"3", "1", "2"}, Notify: true})

	if !rep.Dispatched || rep.RunID == "" {
		t.Fatalf("report = %+v", rep)
	}
	want := "【A】shout succeeded\n【B】shout failed, status code: 500\n【C】shout failed, status code: 403"
	if rep.Text != want {
		t.Fatalf("report text = %q, want %q", rep.Text, want)
	}
	if ok, fail := rep.Counts(); ok != 1 || fail != 2 {
		t.Fatalf("counts = %d/%d", ok, fail)
	}

	domain := DomainOf(srv.URL)
	if len(st.calls) != 3 || !st.calls[0].ok || st.calls[1].ok || st.calls[2].ok {
		t.Fatalf("stat calls = %+v", st.calls)
	}
	for _, c := range st.calls {
		if c.domain != domain || c.elapsed < 0 {
			t.Fatalf("stat call = %+v, want domain %q", c, domain)
		}
	}

	if len(nt.msgs) != 1 {
		t.Fatalf("notifications = %+v", nt.msgs)
	}
	m := nt.msgs[0]
	if m.Target != nil || m.Title != ReportTitle || m.Text != want || m.Type != notifier.TypeSiteMessage {
		t.Fatalf("broadcast = %+v", m)
	}
}

func TestRunRequestShape(t *testing.T) {
	seen := make(chan *http.Request, 1)
	srv := shoutbox(t, map[string]int{"a": 200}, seen)
	s := site("1", "A", srv.URL+"/a/")
	s.UA = "custom-ua"
	r, _, _ := newTestRunner(staticSites{s}, srv.Client())

	r.Run(context.Background(), Request{Text: "你好 world", SiteIDs: []string{"1"}})

	req := <-seen
	if req.Method != http.MethodGet || req.URL.Path != "/a/shoutbox.php" {
		t.Fatalf("request = %s %s", req.Method, req.URL.Path)
	}
	q := req.URL.Query()
	if q.Get("shbox_text") != "你好 world" || q.Get("shout") != "我喊" || q.Get("sent") != "yes" || q.Get("type") != "shoutbox" {
		t.Fatalf("query = %v", q)
	}
	if req.Header.Get("Cookie") != "uid=1; pass=x" || req.Header.Get("User-Agent") != "custom-ua" {
		t.Fatalf("headers = %v", req.Header)
	}
}

func TestRunEmptySelection(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
	}{
		{"nothing selected", nil},
		{"nothing resolves", []string{"404"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &countingDoer{next: doerFunc(func(*http.Request) (*http.Response, error) {
				t.Fatal("unexpected HTTP call")
				return nil, nil
			})}
			r, st, nt := newTestRunner(staticSites{site("1", "A", "https://a.example/")}, doer)

			rep := r.Run(context.Background(), Request{SiteIDs: tt.ids, Notify: true})
			if rep.Dispatched || len(rep.Results) != 0 {
				t.Fatalf("report = %+v", rep)
			}
			if doer.n.Load() != 0 || len(st.calls) != 0 || len(nt.msgs) != 0 {
				t.Fatalf("side effects: http=%d stats=%d notes=%d", doer.n.Load(), len(st.calls), len(nt.msgs))
			}
		})
	}
}

func TestRunMissingURLOrCookie(t *testing.T) {
	doer := &countingDoer{next: doerFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	})}
	src := staticSites{
		{ID: "1", Name: "NoCookie", URL: "https://nocookie.example/"},
		{ID: "2", Name: "NoURL", Cookie: "c"},
	}
	r, st, _ := newTestRunner(src, doer)

	rep := r.Run(context.Background(), Request{SiteIDs: []string{"1", "2"}})
	if doer.n.Load() != 0 {
		t.Fatalf("http calls = %d, want 0", doer.n.Load())
	}
	for _, res := range rep.Results {
		if res.OK || res.Message != "" {
			t.Fatalf("result = %+v", res)
		}
	}
	if rep.Text != "【NoCookie】\n【NoURL】" {
		t.Fatalf("text = %q", rep.Text)
	}
	if len(st.calls) != 2 || st.calls[0].ok || st.calls[0].domain != "nocookie.example" {
		t.Fatalf("stat calls = %+v", st.calls)
	}
}

func TestShoutSiteErrors(t *testing.T) {
	tests := []struct {
		name string
		doer Doer
		want string
	}{
		{
			name: "network error",
			doer: doerFunc(func(*http.Request) (*http.Response, error) { return nil, errors.New("timeout") }),
			want: "shout failed: timeout",
		},
		{
			name: "deadline",
			doer: doerFunc(func(r *http.Request) (*http.Response, error) {
				return nil, &urlError{op: "Get", err: context.DeadlineExceeded}
			}),
			want: "shout failed: timeout",
		},
		{
			name: "no response",
			doer: doerFunc(func(*http.Request) (*http.Response, error) { return nil, nil }),
			want: "shout failed, unable to reach site",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, st, _ := newTestRunner(staticSites{site("1", "A", "https://a.example/")}, tt.doer)
			rep := r.Run(context.Background(), Request{SiteIDs: []string{"1"}})
			if len(rep.Results) != 1 || rep.Results[0].OK || rep.Results[0].Message != tt.want {
				t.Fatalf("results = %+v", rep.Results)
			}
			if len(st.calls) != 1 || st.calls[0].ok || st.calls[0].domain != "a.example" {
				t.Fatalf("stat calls = %+v", st.calls)
			}
		})
	}
}

func TestRunCommandNotices(t *testing.T) {
	srv := shoutbox(t, map[string]int{"a": 200}, nil)
	r, _, nt := newTestRunner(staticSites{site("1", "A", srv.URL+"/a/")}, srv.Client())
	origin := &Origin{Channel: "telegram", ChatID: 42, UserID: 7}

	r.Run(context.Background(), Request{Trigger: TriggerCommand, SiteIDs: []string{"1"}, Origin: origin})

	if len(nt.msgs) != 2 {
		t.Fatalf("notifications = %+v", nt.msgs)
	}
	if nt.msgs[0].Title != MsgStarting || nt.msgs[1].Title != MsgComplete {
		t.Fatalf("titles = %q, %q", nt.msgs[0].Title, nt.msgs[1].Title)
	}
	for _, m := range nt.msgs {
		if m.Target == nil || m.Target.ChatID != 42 || m.UserID != 7 || m.Type != notifier.TypePlugin {
			t.Fatalf("origin notice = %+v", m)
		}
	}

	// The start notice is sent even when nothing resolves.
	nt.msgs = nil
	r.Run(context.Background(), Request{Trigger: TriggerCommand, Origin: origin})
	if len(nt.msgs) != 1 || nt.msgs[0].Title != MsgStarting {
		t.Fatalf("notifications = %+v", nt.msgs)
	}
}

func TestRunIdempotentClassification(t *testing.T) {
	srv := shoutbox(t, map[string]int{"a": 200, "b": 403}, nil)
	src := staticSites{site("1", "A", srv.URL+"/a/"), site("2", "B", srv.URL+"/b/")}
	r, st, _ := newTestRunner(src, srv.Client())
	req := Request{SiteIDs: []string{"1", "2"}}

	first := r.Run(context.Background(), req)
	second := r.Run(context.Background(), req)
	if first.Text != second.Text {
		t.Fatalf("runs differ: %q vs %q", first.Text, second.Text)
	}
	if first.RunID == second.RunID {
		t.Fatal("run ids should be unique")
	}
	if len(st.calls) != 4 {
		t.Fatalf("stat calls = %d, want 4", len(st.calls))
	}
}

func TestRunSequentialDispatch(t *testing.T) {
	var inFlight, peak atomic.Int32
	doer := doerFunc(func(*http.Request) (*http.Response, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	})
	var src staticSites
	var ids []string
	for _, id := range []string{"1", "2", "3", "4"} {
		src = append(src, site(id, "S"+id, "https://s"+id+".example/"))
		ids = append(ids, id)
	}
	r, _, _ := newTestRunner(src, doer)
	rep := r.Run(context.Background(), Request{SiteIDs: ids})
	if peak.Load() != 1 {
		t.Fatalf("peak concurrency = %d, want 1", peak.Load())
	}
	if len(rep.Results) != 4 || rep.Results[3].SiteName != "S4" {
		t.Fatalf("results = %+v", rep.Results)
	}
}

func TestPoolSize(t *testing.T) {
	t.Parallel()
	for n, want := range map[int]int{0: 0, 1: 1, 7: 1} {
		if got := poolSize(n); got != want {
			t.Fatalf("poolSize(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestSetHTTPSwapsClientsAndUserAgent(t *testing.T) {
	var gotUA atomic.Value
	ok := doerFunc(func(r *http.Request) (*http.Response, error) {
		gotUA.Store(r.Header.Get("User-Agent"))
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
	refuse := doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	r := NewRunner(Options{
		Sites:   staticSites{{ID: "1", Name: "A", URL: "https://a.example/", Cookie: "c=1"}},
		Stats:   &fakeStats{},
		Clients: Clients{Direct: refuse},
		Log:     logx.Nop(),
	})
	req := Request{Trigger: TriggerCLI, Text: "hi", SiteIDs: []string{"1"}}

	if rep := r.Run(context.Background(), req); rep.Results[0].OK {
		t.Fatalf("expected failure before swap, got %+v", rep.Results[0])
	}

	r.SetHTTP(Clients{Direct: ok}, "custom-agent/1.0")
	rep := r.Run(context.Background(), req)
	if !rep.Results[0].OK {
		t.Fatalf("expected success after swap, got %+v", rep.Results[0])
	}
	if ua, _ := gotUA.Load().(string); ua != "custom-agent/1.0" {
		t.Fatalf("User-Agent = %q", ua)
	}

	r.SetHTTP(Clients{Direct: ok}, "")
	r.Run(context.Background(), req)
	if ua, _ := gotUA.Load().(string); ua != DefaultUserAgent {
		t.Fatalf("empty user agent should fall back to default, got %q", ua)
	}
}
