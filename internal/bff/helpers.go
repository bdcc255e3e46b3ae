package bff

import (
	"errors"
	"strconv"
	"strings"

	"cacviun/internal/models"
	"cacviun/internal/reports"
)

// FormatDate renders the incident date of a report, or N/A.
func FormatDate(r *models.Report) string {
	t, ok := r.When()
	if !ok {
		return "N/A"
	}
	return t.Format("2006-01-02")
}

// FormatAge renders an age, or N/A for a missing one.
func FormatAge(age models.Age) string {
	if age <= 0 {
		return "N/A"
	}
	return strconv.Itoa(int(age))
}

// FormatPercent renders a one-decimal percentage.
func FormatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return strings.TrimSpace(string(rs[:n])) + "…"
}

// RoleLabel returns the display name of a role.
func RoleLabel(r models.Role) string {
	return r.Label()
}

// ReportID returns the identifier used in report URLs.
func ReportID(r *models.Report) string {
	return r.Key()
}

// PageURL builds a link to page of base with the criteria kept.
func PageURL(base string, c reports.Criteria, page int) string {
	q := c.Query(page).Encode()
	if q == "" {
		return base
	}
	return base + "?" + q
}

// Dict builds a map from key/value pairs for passing several values to a
// partial.
func Dict(values ...any) (map[string]any, error) {
	if len(values)%2 != 0 {
		return nil, errors.New("dict requires an even number of arguments")
	}
	dict := make(map[string]any, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			return nil, errors.New("dict keys must be strings")
		}
		dict[key] = values[i+1]
	}
	return dict, nil
}
