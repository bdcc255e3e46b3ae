package reports

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cacviun/internal/models"

	"github.com/google/go-querystring/query"
)

const dateLayout = "2006-01-02"

// Criteria narrows a report collection. Zero fields are not applied.
type Criteria struct {
	Category string     `url:"category,omitempty" json:"category,omitempty"`
	Zone     string     `url:"zone,omitempty" json:"zone,omitempty"`
	AgeMin   *float64   `url:"age_min,omitempty" json:"age_min,omitempty"`
	AgeMax   *float64   `url:"age_max,omitempty" json:"age_max,omitempty"`
	DateFrom *time.Time `url:"start_date,omitempty" layout:"2006-01-02" json:"start_date,omitempty"`
	DateTo   *time.Time `url:"end_date,omitempty" layout:"2006-01-02" json:"end_date,omitempty"`
}

// ParseCriteria reads criteria from query or form values. Unparseable
// numbers and dates are treated as absent, like an empty input box.
func ParseCriteria(v url.Values) Criteria {
	return Criteria{
		Category: strings.TrimSpace(v.Get("category")),
		Zone:     strings.TrimSpace(v.Get("zone")),
		AgeMin:   parseBound(v.Get("age_min")),
		AgeMax:   parseBound(v.Get("age_max")),
		DateFrom: parseDay(v.Get("start_date")),
		DateTo:   parseDay(v.Get("end_date")),
	}
}

// ParsePage reads the page parameter; 0 means not given.
func ParsePage(v url.Values) int {
	n, err := strconv.Atoi(v.Get("page"))
	if err != nil || n < 1 {
		return 0
	}
	return n
}

func parseBound(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(f) {
		return nil
	}
	return &f
}

func parseDay(s string) *time.Time {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// IsEmpty reports whether no predicate is active.
func (c Criteria) IsEmpty() bool {
	return c.Category == "" && c.Zone == "" &&
		!c.hasBound(c.AgeMin) && !c.hasBound(c.AgeMax) &&
		c.DateFrom == nil && c.DateTo == nil
}

func (c Criteria) hasBound(b *float64) bool {
	return b != nil && finite(*b)
}

// Equal compares criteria by value.
func (c Criteria) Equal(o Criteria) bool {
	return c.Category == o.Category && c.Zone == o.Zone &&
		floatPtrEqual(c.AgeMin, o.AgeMin) && floatPtrEqual(c.AgeMax, o.AgeMax) &&
		timePtrEqual(c.DateFrom, o.DateFrom) && timePtrEqual(c.DateTo, o.DateTo)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Validate rejects a start date after the end date.
func (c Criteria) Validate() error {
	if c.DateFrom != nil && c.DateTo != nil && c.DateFrom.After(*c.DateTo) {
		return &models.ValidationError{Field: "start_date", Err: models.ErrDateRangeInverted}
	}
	return nil
}

// Query encodes the criteria for links, optionally with a page number.
func (c Criteria) Query(page int) url.Values {
	v, err := query.Values(c)
	if err != nil {
		v = url.Values{}
	}
	if page > 1 {
		v.Set("page", strconv.Itoa(page))
	}
	return v
}
