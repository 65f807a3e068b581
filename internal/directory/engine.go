package directory

import (
	"sort"
	"strings"
	"time"

	"memberdir/internal/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Facet selects which category list the category filter looks at.
type Facet string

const (
	FacetAll        Facet = "all"
	FacetOpenTo     Facet = "open_to"
	FacetCanProvide Facet = "can_provide"
)

// SortKey orders the derived list.
type SortKey string

const (
	SortCreatedAt   SortKey = "created_at"
	SortDisplayName SortKey = "display_name"
)

// CategoryAll disables the category filter.
const CategoryAll = "all"

// Query is the full set of filter parameters for one derivation.
type Query struct {
	Search   string  `json:"search"`
	Facet    Facet   `json:"facet"`
	Category string  `json:"category"`
	Sort     SortKey `json:"sort"`
}

// DefaultQuery shows everything, newest first.
func DefaultQuery() Query {
	return Query{Facet: FacetAll, Category: CategoryAll, Sort: SortCreatedAt}
}

// ParseQuery builds a Query from raw request values, filling defaults for
// anything empty or unknown. The search text is kept as given.
func ParseQuery(search, facet, category, sortKey string) Query {
	q := Query{Search: search}
	q.Facet = normalizeFacet(Facet(strings.TrimSpace(facet)))
	q.Category = strings.TrimSpace(category)
	if q.Category == "" {
		q.Category = CategoryAll
	}
	q.Sort = SortCreatedAt
	if SortKey(strings.TrimSpace(sortKey)) == SortDisplayName {
		q.Sort = SortDisplayName
	}
	return q
}

func normalizeFacet(f Facet) Facet {
	switch f {
	case FacetOpenTo, FacetCanProvide:
		return f
	default:
		return FacetAll
	}
}

// epoch stands in for a missing created_at so such profiles sort last.
var epoch = time.Unix(0, 0).UTC()

// Apply derives the visible list: search, then category filter, then sort.
// It never mutates profiles and the result shares no backing arrays with it.
func Apply(profiles []models.Profile, q Query) []models.Profile {
	out := make([]models.Profile, 0, len(profiles))

	search := strings.ToLower(q.Search)
	category := strings.ToLower(q.Category)
	filterCategory := category != "" && category != CategoryAll
	facet := normalizeFacet(q.Facet)

	for i := range profiles {
		p := &profiles[i]
		if search != "" && !matchesSearch(p, search) {
			continue
		}
		if filterCategory && !matchesCategory(p, category, facet) {
			continue
		}
		out = append(out, p.Clone())
	}

	if q.Sort == SortDisplayName {
		col := collate.New(language.English)
		sort.SliceStable(out, func(i, j int) bool {
			return col.CompareString(out[i].DisplayName, out[j].DisplayName) < 0
		})
	} else {
		sort.SliceStable(out, func(i, j int) bool {
			return createdKey(out[i]).After(createdKey(out[j]))
		})
	}
	return out
}

func createdKey(p models.Profile) time.Time {
	if p.CreatedAt.IsZero() {
		return epoch
	}
	return p.CreatedAt
}

func matchesSearch(p *models.Profile, needle string) bool {
	return containsFold(p.DisplayName, needle) ||
		anyContainsFold(p.Skills, needle) ||
		containsFold(p.Background, needle) ||
		anyContainsFold(p.OpenTo, needle) ||
		anyContainsFold(p.CanProvide, needle)
}

func matchesCategory(p *models.Profile, token string, facet Facet) bool {
	switch facet {
	case FacetOpenTo:
		return anyContainsFold(p.OpenTo, token)
	case FacetCanProvide:
		return anyContainsFold(p.CanProvide, token)
	default:
		return anyContainsFold(p.OpenTo, token) || anyContainsFold(p.CanProvide, token)
	}
}

// containsFold expects needle already lower-cased.
func containsFold(s, needle string) bool {
	return strings.Contains(strings.ToLower(s), needle)
}

func anyContainsFold(values []string, needle string) bool {
	for _, v := range values {
		if containsFold(v, needle) {
			return true
		}
	}
	return false
}
