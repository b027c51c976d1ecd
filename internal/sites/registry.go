package sites

import (
	"sync"

	"autoshout/internal/config"
)

// Registry holds the built-in indexers and the user's custom sites.
// It is safe for concurrent use; Update swaps the whole set on config reload.
type Registry struct {
	mu            sync.RWMutex
	indexers      []Site
	custom        []Site
	customEnabled bool
}

func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{}
	r.Update(cfg)
	return r
}

// Update replaces the registry content from cfg.
func (r *Registry) Update(cfg *config.Config) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	idx := make([]Site, 0, len(cfg.Indexers))
	for _, c := range cfg.Indexers {
		idx = append(idx, fromConfig(c))
	}
	custom := make([]Site, 0, len(cfg.CustomSites.Sites))
	for _, c := range cfg.CustomSites.Sites {
		s := fromConfig(c)
		// custom sites are always private
		s.Public = false
		custom = append(custom, s)
	}

	r.mu.Lock()
	r.indexers = idx
	r.custom = custom
	r.customEnabled = cfg.CustomSites.Enabled
	r.mu.Unlock()
}

// Indexers returns the non-public built-in sites.
func (r *Registry) Indexers() []Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Site, 0, len(r.indexers))
	for _, s := range r.indexers {
		if !s.Public {
			out = append(out, s)
		}
	}
	return out
}

// Custom returns the custom sites, or nil when the feature is disabled.
func (r *Registry) Custom() []Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.customEnabled {
		return nil
	}
	return append([]Site(nil), r.custom...)
}

// Candidates returns every site a shout may target: private indexers, then custom sites.
func (r *Registry) Candidates() []Site {
	return append(r.Indexers(), r.Custom()...)
}

// All returns every known site, public ones included.
func (r *Registry) All() []Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Site, 0, len(r.indexers)+len(r.custom))
	out = append(out, r.indexers...)
	if r.customEnabled {
		out = append(out, r.custom...)
	}
	return out
}

// Select filters the candidates to ids, keeping candidate order. Each site is
// returned at most once; unknown ids are dropped.
func (r *Registry) Select(ids []string) []Site {
	return Select(r.Candidates(), ids)
}

// Select filters candidates to ids, keeping candidate order.
func Select(candidates []Site, ids []string) []Site {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []Site
	for _, s := range candidates {
		if _, ok := want[s.ID]; !ok {
			continue
		}
		delete(want, s.ID)
		out = append(out, s)
	}
	return out
}

// Prune returns ids without the entries no longer present in the registry.
// The second result reports whether anything was dropped.
func (r *Registry) Prune(ids []string) ([]string, bool) {
	known := map[string]struct{}{}
	for _, s := range r.All() {
		known[s.ID] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := known[id]; ok {
			out = append(out, id)
		}
	}
	return out, len(out) != len(ids)
}
