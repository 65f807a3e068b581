package models

import "strings"

// Category is an opportunity category token with its display label.
type Category struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// OpportunityCategories is the fixed vocabulary used by both open_to and
// can_provide.
var OpportunityCategories = []Category{
	{Value: "full_time_job_opportunities", Label: "Full Time Job Opportunities"},
	{Value: "part_time_job_opportunities", Label: "Part Time Job Opportunities"},
	{Value: "cofounder_roles", Label: "Cofounder Roles"},
	{Value: "consulting", Label: "Consulting"},
	{Value: "contract_gigs", Label: "Contract Gigs"},
	{Value: "mentoring_others", Label: "Mentoring Others"},
	{Value: "being_mentored", Label: "Being Mentored"},
	{Value: "internships", Label: "Internships"},
}

// IsCategory reports whether value belongs to the vocabulary.
func IsCategory(value string) bool {
	for _, c := range OpportunityCategories {
		if c.Value == value {
			return true
		}
	}
	return false
}

// CategoryLabel returns the display label for value, or value itself when it
// is not part of the vocabulary.
func CategoryLabel(value string) string {
	for _, c := range OpportunityCategories {
		if c.Value == value {
			return c.Label
		}
	}
	return value
}

// SearchCategories returns the categories whose label contains q, ignoring
// case. An empty query returns the whole vocabulary.
func SearchCategories(q string) []Category {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]Category, 0, len(OpportunityCategories))
	for _, c := range OpportunityCategories {
		if q == "" || strings.Contains(strings.ToLower(c.Label), q) {
			out = append(out, c)
		}
	}
	return out
}
