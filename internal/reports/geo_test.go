package reports

import (
	"math"
	"testing"

	"cacviun/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeatPoints(t *testing.T) {
	locs := []models.Location{
		{Latitude: 4.6382, Longitude: -74.0840},
		{Latitude: models.Coordinate(math.NaN()), Longitude: -74},
		{Latitude: 4.6, Longitude: models.Coordinate(math.Inf(1))},
		{Latitude: 95, Longitude: 10},
		{Latitude: 10, Longitude: 181},
		{Latitude: 4.64, Longitude: -74.08},
	}

	points := HeatPoints(locs)
	require.Len(t, points, 2)
	assert.Equal(t, Point{Lat: 4.6382, Lng: -74.0840}, points[0])
	assert.Equal(t, Point{Lat: 4.64, Lng: -74.08}, points[1])

	assert.Empty(t, HeatPoints(nil))
	assert.NotNil(t, HeatPoints(nil))
}

func TestRecentMarkers(t *testing.T) {
	markers := RecentMarkers([]models.RecentReport{
		{Category: "Discrimination", Latitude: 4.63, Longitude: -74.08, Date: "2024-05-01"},
		{Category: "", Latitude: 4.64, Longitude: -74.09},
		{Category: "Sexual Violence", Latitude: models.Coordinate(math.NaN()), Longitude: -74.09},
	})

	require.Len(t, markers, 2)
	assert.Equal(t, "Discrimination", markers[0].Category)
	assert.Equal(t, 4.63, markers[0].Lat)
	assert.Equal(t, NotSpecified, markers[1].Category)
}

func TestCenter(t *testing.T) {
	_, ok := Center(nil)
	assert.False(t, ok)

	c, ok := Center([]Point{{Lat: 4.60, Lng: -74.10}, {Lat: 4.70, Lng: -74.00}})
	require.True(t, ok)
	assert.InDelta(t, 4.65, c.Lat, 1e-3)
	assert.InDelta(t, -74.05, c.Lng, 1e-3)

	single, _ := Center([]Point{{Lat: 1, Lng: 2}})
	assert.InDelta(t, 1, single.Lat, 1e-9)
	assert.InDelta(t, 2, single.Lng, 1e-9)
}
