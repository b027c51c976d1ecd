package sites

import (
	"reflect"
	"testing"

	"autoshout/internal/config"
)

func testConfig(customEnabled bool) *config.Config {
	return &config.Config{
		Indexers: []config.SiteConfig{
			{ID: "1", Name: "Alpha", URL: "https://alpha.example/", Cookie: "a=1"},
			{ID: "2", Name: "Open", URL: "https://open.example/", Public: true},
			{ID: "3", Name: "Gamma", URL: "https://gamma.example/", Cookie: "g=1"},
		},
		CustomSites: config.CustomSitesConfig{
			Enabled: customEnabled,
			Sites:   []config.SiteConfig{{ID: "c1", Name: "Custom", URL: "https://custom.example", Cookie: "c"}},
		},
	}
}

func ids(ss []Site) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.ID)
	}
	return out
}

func TestCandidates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		enabled bool
		want    []string
	}{
		{"custom enabled", true, []string{"1", "3", "c1"}},
		{"custom disabled", false, []string{"1", "3"}},
	}
	for _, tt := range tests {
		r := NewRegistry(testConfig(tt.enabled))
		if got := ids(r.Candidates()); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("%s: Candidates() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSelectKeepsCandidateOrder(t *testing.T) {
	t.Parallel()
	r := NewRegistry(testConfig(true))

	tests := []struct {
		name string
		sel  []string
		want []string
	}{
		{"reordered selection", []string{"c1", "3", "1"}, []string{"1", "3", "c1"}},
		{"duplicates", []string{"3", "3", "1"}, []string{"1", "3"}},
		{"public site is not a candidate", []string{"2"}, nil},
		{"unknown id dropped", []string{"404", "3"}, []string{"3"}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		got := r.Select(tt.sel)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(ids(got), tt.want) {
			t.Fatalf("%s: Select(%v) = %v, want %v", tt.name, tt.sel, ids(got), tt.want)
		}
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()
	r := NewRegistry(testConfig(false))

	got, changed := r.Prune([]string{"1", "2", "c1", "gone"})
	if !changed || !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("Prune = %v, %v", got, changed)
	}
	if _, changed := r.Prune([]string{"1", "3"}); changed {
		t.Fatal("Prune reported a change for known ids")
	}
}

func TestUpdateSwapsContent(t *testing.T) {
	t.Parallel()
	r := NewRegistry(testConfig(false))
	r.Update(&config.Config{Indexers: []config.SiteConfig{{ID: "9", URL: "https://n.example", Cookie: "x"}}})
	if got := ids(r.Candidates()); !reflect.DeepEqual(got, []string{"9"}) {
		t.Fatalf("Candidates() after Update = %v", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		site Site
		want error
	}{
		{Site{URL: "https://a.example", Cookie: "c"}, nil},
		{Site{Cookie: "c"}, ErrMissingURL},
		{Site{URL: "https://a.example", Cookie: "  "}, ErrMissingCookie},
	}
	for _, tt := range tests {
		if err := tt.site.Validate(); err != tt.want {
			t.Fatalf("Validate(%+v) = %v, want %v", tt.site, err, tt.want)
		}
	}
	if (Site{ID: "7"}).Label() != "7" {
		t.Fatal("Label should fall back to id")
	}
}
