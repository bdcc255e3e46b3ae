package reports

import (
	"strings"
	"time"

	"cacviun/internal/models"
)

// Filter returns the reports matching every active predicate of c.
//
// The result holds the same pointers as src and never copies a report. With
// empty criteria src itself is returned. Category and zone compare
// case-insensitively; age bounds are inclusive; the date range includes the
// whole end day. A report without a usable date fails any date predicate.
func Filter(src []*models.Report, c Criteria) []*models.Report {
	if c.IsEmpty() {
		return src
	}

	var from, until time.Time
	if c.DateFrom != nil {
		from = startOfDay(*c.DateFrom)
	}
	if c.DateTo != nil {
		until = startOfDay(*c.DateTo).AddDate(0, 0, 1)
	}

	out := make([]*models.Report, 0, len(src))
	for _, r := range src {
		if r == nil {
			continue
		}
		if c.Category != "" && !strings.EqualFold(r.Category, c.Category) {
			continue
		}
		if c.Zone != "" && !strings.EqualFold(r.Zone, c.Zone) {
			continue
		}
		age := float64(r.Age)
		if c.hasBound(c.AgeMin) && age < *c.AgeMin {
			continue
		}
		if c.hasBound(c.AgeMax) && age > *c.AgeMax {
			continue
		}
		if c.DateFrom != nil || c.DateTo != nil {
			when, ok := r.When()
			if !ok {
				continue
			}
			if c.DateFrom != nil && when.Before(from) {
				continue
			}
			if c.DateTo != nil && !when.Before(until) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
