package reports

import (
	"sort"
	"strings"
	"time"

	"cacviun/internal/models"

	"github.com/shopspring/decimal"
)

// NotSpecified is the bucket for reports without a category or zone.
const NotSpecified = "Not specified"

// NoData is shown when a summary value cannot be computed.
const NoData = "N/A"

// Bucket is one aggregation group.
type Bucket struct {
	Key        string  `json:"key"`
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// percentage is count/total*100 rounded to one decimal; 0 when total is 0.
func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(count)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(1).
		InexactFloat64()
}

// CategoryHistogram counts reports per category, most frequent first, keeping
// the first topN buckets (all when topN <= 0). Percentages are relative to
// len(rs).
func CategoryHistogram(rs []*models.Report, topN int) []Bucket {
	return histogram(rs, topN, func(r *models.Report) string { return r.Category })
}

// ZoneHistogram is CategoryHistogram keyed by zone.
func ZoneHistogram(rs []*models.Report, topN int) []Bucket {
	return histogram(rs, topN, func(r *models.Report) string { return r.Zone })
}

func histogram(rs []*models.Report, topN int, key func(*models.Report) string) []Bucket {
	counts := make(map[string]int)
	var order []string
	for _, r := range rs {
		if r == nil {
			continue
		}
		k := strings.TrimSpace(key(r))
		if k == "" {
			k = NotSpecified
		}
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}

	buckets := make([]Bucket, 0, len(order))
	for _, k := range order {
		buckets = append(buckets, Bucket{
			Key:        k,
			Label:      k,
			Count:      counts[k],
			Percentage: percentage(counts[k], len(rs)),
		})
	}
	// Stable keeps first-seen order among equal counts.
	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].Count > buckets[j].Count })

	if topN > 0 && len(buckets) > topN {
		buckets = buckets[:topN]
	}
	return buckets
}

// MonthlyTrend counts reports dated within the 365 days up to now, bucketed
// by calendar month (key YYYY-MM, label "Jan 24"), ascending.
func MonthlyTrend(rs []*models.Report, now time.Time) []Bucket {
	now = now.UTC()
	cutoff := now.Add(-365 * 24 * time.Hour)
	return timeBuckets(rs, func(t time.Time) (string, string, bool) {
		if t.Before(cutoff) || t.After(now) {
			return "", "", false
		}
		return t.Format("2006-01"), t.Format("Jan 06"), true
	})
}

// YearlyTrend counts reports per calendar year, ascending.
func YearlyTrend(rs []*models.Report) []Bucket {
	return timeBuckets(rs, func(t time.Time) (string, string, bool) {
		y := t.Format("2006")
		return y, y, true
	})
}

func timeBuckets(rs []*models.Report, bucket func(time.Time) (key, label string, ok bool)) []Bucket {
	counts := make(map[string]*Bucket)
	total := 0
	for _, r := range rs {
		when, ok := r.When()
		if !ok {
			continue
		}
		key, label, ok := bucket(when)
		if !ok {
			continue
		}
		b, exists := counts[key]
		if !exists {
			b = &Bucket{Key: key, Label: label}
			counts[key] = b
		}
		b.Count++
		total++
	}

	out := make([]Bucket, 0, len(counts))
	for _, b := range counts {
		b.Percentage = percentage(b.Count, total)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ageGroup is an inclusive upper bound and its label. The last group has no
// upper bound.
type ageGroup struct {
	key   string
	label string
	max   int
}

var ageGroups = []ageGroup{
	{"18-", "18 and under", 18},
	{"19-22", "19-22 years", 22},
	{"23-26", "23-26 years", 26},
	{"27-30", "27-30 years", 30},
	{"31+", "Over 30", -1},
}

// AgeGroupLabels lists the age buckets in display order.
func AgeGroupLabels() []string {
	labels := make([]string, len(ageGroups))
	for i, g := range ageGroups {
		labels[i] = g.label
	}
	return labels
}

func ageGroupIndex(age int) int {
	for i, g := range ageGroups {
		if g.max >= 0 && age <= g.max {
			return i
		}
	}
	return len(ageGroups) - 1
}

// AgeGroups counts reports into fixed age buckets in display order, leaving
// out empty buckets.
func AgeGroups(rs []*models.Report) []Bucket {
	counts := make([]int, len(ageGroups))
	total := 0
	for _, r := range rs {
		if r == nil {
			continue
		}
		counts[ageGroupIndex(int(r.Age))]++
		total++
	}

	var out []Bucket
	for i, g := range ageGroups {
		if counts[i] == 0 {
			continue
		}
		out = append(out, Bucket{
			Key:        g.key,
			Label:      g.label,
			Count:      counts[i],
			Percentage: percentage(counts[i], total),
		})
	}
	return out
}

// PeakMonth returns the calendar month with the most reports across all
// years. Ties go to the earliest month of the year. ok is false when no
// report has a usable date.
func PeakMonth(rs []*models.Report) (month time.Month, count int, ok bool) {
	var counts [12]int
	for _, r := range rs {
		when, has := r.When()
		if !has {
			continue
		}
		counts[when.Month()-1]++
	}

	for i, n := range counts {
		if n > count {
			month, count, ok = time.Month(i+1), n, true
		}
	}
	return month, count, ok
}

// Summary is everything the statistics page shows.
type Summary struct {
	TotalReports       int      `json:"totalReports"`
	MostCommonCategory string   `json:"mostCommonCategory"`
	MostCommonLocation string   `json:"mostCommonLocation"`
	PeakMonth          string   `json:"peakMonth"`
	Categories         []Bucket `json:"categories"`
	Zones              []Bucket `json:"zones"`
	Monthly            []Bucket `json:"monthly"`
	Yearly             []Bucket `json:"yearly"`
	AgeGroups          []Bucket `json:"ageGroups"`
}

// Summarize computes every aggregate over rs. Histograms keep topN buckets.
func Summarize(rs []*models.Report, topN int, now time.Time) Summary {
	s := Summary{
		TotalReports:       len(rs),
		MostCommonCategory: NoData,
		MostCommonLocation: NoData,
		PeakMonth:          NoData,
		Categories:         CategoryHistogram(rs, topN),
		Zones:              ZoneHistogram(rs, topN),
		Monthly:            MonthlyTrend(rs, now),
		Yearly:             YearlyTrend(rs),
		AgeGroups:          AgeGroups(rs),
	}
	if len(s.Categories) > 0 {
		s.MostCommonCategory = s.Categories[0].Key
	}
	if len(s.Zones) > 0 {
		s.MostCommonLocation = s.Zones[0].Key
	}
	if m, _, ok := PeakMonth(rs); ok {
		s.PeakMonth = m.String()
	}
	if s.AgeGroups == nil {
		s.AgeGroups = []Bucket{}
	}
	return s
}
