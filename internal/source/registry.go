package source

import (
	"fmt"
	"sort"

	"github.com/stratus-analytics/pulse/pkg/types"
)

// constructors maps provider names to adapter constructors. Resolution
// happens once at startup so category membership and priority ordering are
// explicit and type-checked, not string-dispatched at call time.
var constructors = map[string]func(category string, cfg types.ProviderConfig) (Source, error){
	"ecb":              newECB,
	"exchangerate_api": newExchangeRateAPI,
	"commodities_api":  newCommoditiesAPI,
	"open_meteo":       newOpenMeteo,
	"newsdata":         newNewsData,
}

// Registry holds the resolved category → ordered adapter chains.
type Registry struct {
	chains map[string][]Source
}

// Build resolves every configured category's provider list into adapter
// instances, sorted by priority ascending (lower = tried first).
func Build(categories []types.CategoryConfig) (*Registry, error) {
	r := &Registry{chains: make(map[string][]Source, len(categories))}
	for _, cat := range categories {
		if len(cat.Providers) == 0 {
			return nil, fmt.Errorf("category %q has no providers", cat.Name)
		}

		providers := make([]types.ProviderConfig, len(cat.Providers))
		copy(providers, cat.Providers)
		sort.SliceStable(providers, func(i, j int) bool {
			return providers[i].Priority < providers[j].Priority
		})

		sources := make([]Source, 0, len(providers))
		for _, p := range providers {
			ctor, ok := constructors[p.Name]
			if !ok {
				return nil, fmt.Errorf("category %q: unknown provider %q", cat.Name, p.Name)
			}
			src, err := ctor(cat.Name, p)
			if err != nil {
				return nil, fmt.Errorf("category %q: provider %q: %w", cat.Name, p.Name, err)
			}
			sources = append(sources, src)
		}
		r.chains[cat.Name] = sources
	}
	return r, nil
}

// Sources returns the ordered adapter chain for a category, or nil.
func (r *Registry) Sources(category string) []Source {
	return r.chains[category]
}

// Categories returns all registered category names.
func (r *Registry) Categories() []string {
	names := make([]string, 0, len(r.chains))
	for name := range r.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
