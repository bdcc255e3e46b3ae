package reports

import (
	"cacviun/internal/models"

	"github.com/golang/geo/s2"
)

// Point is one heat map sample.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Marker is a recent incident pinned on the map.
type Marker struct {
	Point
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Zone        string `json:"zone,omitempty"`
	Date        string `json:"date,omitempty"`
}

func toPoint(lat, lng models.Coordinate) (Point, bool) {
	la, ln := float64(lat), float64(lng)
	if !finite(la) || !finite(ln) {
		return Point{}, false
	}
	if !s2.LatLngFromDegrees(la, ln).IsValid() {
		return Point{}, false
	}
	return Point{Lat: la, Lng: ln}, true
}

// HeatPoints converts backend locations into map points, dropping
// non-finite and out-of-range coordinates.
func HeatPoints(locs []models.Location) []Point {
	out := make([]Point, 0, len(locs))
	for _, l := range locs {
		if p, ok := toPoint(l.Latitude, l.Longitude); ok {
			out = append(out, p)
		}
	}
	return out
}

// RecentMarkers converts recent incidents into markers with the same
// coordinate rules as HeatPoints.
func RecentMarkers(rs []models.RecentReport) []Marker {
	out := make([]Marker, 0, len(rs))
	for _, r := range rs {
		p, ok := toPoint(r.Latitude, r.Longitude)
		if !ok {
			continue
		}
		category := r.Category
		if category == "" {
			category = NotSpecified
		}
		out = append(out, Marker{
			Point:       p,
			Category:    category,
			Description: r.Description,
			Zone:        r.Zone,
			Date:        r.Date,
		})
	}
	return out
}

// Center returns the centroid of points on the sphere, for initial map
// placement. ok is false for an empty input.
func Center(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	var sum s2.Point
	for _, p := range points {
		v := s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lng))
		sum = s2.Point{Vector: sum.Add(v.Vector)}
	}
	if sum.Norm() == 0 {
		return points[0], true
	}
	ll := s2.LatLngFromPoint(s2.Point{Vector: sum.Normalize()})
	return Point{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()}, true
}
