package directory

import (
	"strings"
	"testing"
	"time"

	"memberdir/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func annAndBo() []models.Profile {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.Profile{
		profile("Ann", base.Add(time.Hour), []string{"Go"}, []string{"mentoring_others"}, nil),
		profile("Bo", base, []string{"Rust"}, []string{"consulting"}, nil),
	}
}

func TestApply_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"search matches open_to", Query{Search: "mentor"}, []string{"Ann"}},
		{"category on open_to facet", Query{Facet: FacetOpenTo, Category: "consulting"}, []string{"Bo"}},
		{"sort by display name", Query{Sort: SortDisplayName}, []string{"Ann", "Bo"}},
		{"default shows everything newest first", DefaultQuery(), []string{"Ann", "Bo"}},
		{"category on can_provide facet misses", Query{Facet: FacetCanProvide, Category: "consulting"}, []string{}},
		{"search is case-insensitive", Query{Search: "RUST"}, []string{"Bo"}},
		{"search in skills", Query{Search: "go"}, []string{"Ann"}},
		{"unknown facet behaves as all", Query{Facet: "bogus", Category: "consult"}, []string{"Bo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Apply(annAndBo(), tt.query)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestApply_SortDisplayNameOnReversedInput(t *testing.T) {
	t.Parallel()
	in := annAndBo()
	in[0], in[1] = in[1], in[0]

	got := Apply(in, Query{Sort: SortDisplayName})
	assert.Equal(t, []string{"Ann", "Bo"}, names(got))
}

func TestApply_CollationIgnoresCase(t *testing.T) {
	t.Parallel()
	now := time.Now()
	in := []models.Profile{
		profile("bob", now, nil, nil, nil),
		profile("Zoe", now, nil, nil, nil),
		profile("alice", now, nil, nil, nil),
		profile("Émile", now, nil, nil, nil),
	}

	got := Apply(in, Query{Sort: SortDisplayName})
	assert.Equal(t, []string{"alice", "bob", "Émile", "Zoe"}, names(got))
}

func TestApply_CreatedAtDescendingMissingLast(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []models.Profile{
		profile("old", base, nil, nil, nil),
		profile("missing", time.Time{}, nil, nil, nil),
		profile("new", base.Add(48*time.Hour), nil, nil, nil),
		profile("mid", base.Add(24*time.Hour), nil, nil, nil),
	}

	got := Apply(in, DefaultQuery())
	assert.Equal(t, []string{"new", "mid", "old", "missing"}, names(got))
}

func TestApply_StableForEqualKeys(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []models.Profile{
		profile("first", at, nil, nil, nil),
		profile("second", at, nil, nil, nil),
		profile("third", at, nil, nil, nil),
	}

	got := Apply(in, DefaultQuery())
	assert.Equal(t, []string{"first", "second", "third"}, names(got))
}

func TestApply_SearchResultIsContainedSubset(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []models.Profile{
		profile("Ann", base, []string{"Go", "Postgres"}, []string{"consulting"}, []string{"mentoring_others"}),
		profile("Bo", base.Add(time.Hour), []string{"Rust"}, []string{"internships"}, nil),
		profile("Cy", base.Add(2*time.Hour), []string{"Figma"}, nil, []string{"consulting"}),
	}
	in[2].Background = "Design systems at a Go shop"

	for _, needle := range []string{"go", "CONSULT", "mentor", "zzz", "   "} {
		got := Apply(in, Query{Search: needle})
		lower := strings.ToLower(needle)
		for _, p := range got {
			hit := strings.Contains(strings.ToLower(p.DisplayName), lower) ||
				strings.Contains(strings.ToLower(p.Background), lower)
			for _, list := range [][]string{p.Skills, p.OpenTo, p.CanProvide} {
				for _, v := range list {
					hit = hit || strings.Contains(strings.ToLower(v), lower)
				}
			}
			assert.Truef(t, hit, "%q returned %s without a match", needle, p.DisplayName)
		}
		assert.LessOrEqual(t, len(got), len(in))
	}
}

func TestApply_Idempotent(t *testing.T) {
	t.Parallel()
	in := annAndBo()
	queries := []Query{
		{Search: "o"},
		{Facet: FacetOpenTo, Category: "consulting"},
		{Search: "a", Sort: SortDisplayName},
		DefaultQuery(),
	}
	for _, q := range queries {
		once := Apply(in, q)
		twice := Apply(once, q)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("Apply not idempotent for %+v (-once +twice):\n%s", q, diff)
		}
	}
}

func TestApply_DoesNotMutateOrAliasInput(t *testing.T) {
	t.Parallel()
	in := annAndBo()
	before := make([]models.Profile, len(in))
	for i := range in {
		before[i] = in[i].Clone()
	}

	got := Apply(in, Query{Sort: SortDisplayName})
	require.Len(t, got, 2)
	got[0].Skills[0] = "changed"
	got[0].DisplayName = "changed"

	if diff := cmp.Diff(before, in, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("input changed (-before +after):\n%s", diff)
	}
}

func TestApply_EmptyInputs(t *testing.T) {
	t.Parallel()
	got := Apply(nil, DefaultQuery())
	require.NotNil(t, got)
	assert.Empty(t, got)

	p := profile("Nil Lists", time.Now(), nil, nil, nil)
	got = Apply([]models.Profile{p}, Query{Category: "consulting"})
	assert.Empty(t, got)
}

func TestParseQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                             string
		search, facet, category, sortKey string
		want                             Query
	}{
		{"defaults", "", "", "", "", DefaultQuery()},
		{"known values", "go", "can_provide", "consulting", "display_name",
			Query{Search: "go", Facet: FacetCanProvide, Category: "consulting", Sort: SortDisplayName}},
		{"unknown sort and facet fall back", "", "everything", " ", "newest",
			Query{Facet: FacetAll, Category: CategoryAll, Sort: SortCreatedAt}},
		{"search kept verbatim", "  ", "", "", "", Query{Search: "  ", Facet: FacetAll, Category: CategoryAll, Sort: SortCreatedAt}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseQuery(tt.search, tt.facet, tt.category, tt.sortKey))
		})
	}
}
