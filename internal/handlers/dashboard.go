package handlers

import (
	"net/http"

	"cacviun/internal/bff"
	"cacviun/internal/models"
	"cacviun/internal/reports"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// defaultCenter is Universidad Nacional, Bogotá campus.
var defaultCenter = reports.Point{Lat: 4.6381, Lng: -74.0840}

// HandleStatistics renders the summary cards and histograms over the
// filtered dashboard collection.
func (h *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	vr := h.resolveView(r, reports.ScopeDashboard)
	snap := vr.view.Snapshot()

	content := bff.StatisticsContent{
		Summary:    reports.Summarize(vr.view.Filtered(), h.config.TopN, h.now()),
		Criteria:   snap.Criteria,
		Categories: models.ViolenceTypes,
		Zones:      models.Zones,
		Problem:    vr.problem(),
	}

	status := http.StatusOK
	switch {
	case vr.criteriaErr != nil:
		status = http.StatusBadRequest
	case vr.refreshErr != nil && !snap.Loaded:
		status = errorStatus(vr.refreshErr)
	}
	bff.Render(w, r, status, "statistics.html", h.pageData(w, r, "Statistics", content))
}

// statisticsResponse is the JSON form of the statistics page.
type statisticsResponse struct {
	Criteria reports.Criteria `json:"criteria"`
	Summary  reports.Summary  `json:"summary"`
}

// HandleAPIStatistics returns the summary as JSON.
func (h *Handler) HandleAPIStatistics(w http.ResponseWriter, r *http.Request) {
	vr := h.resolveView(r, reports.ScopeDashboard)
	if vr.criteriaErr != nil {
		writeAPIError(w, vr.criteriaErr)
		return
	}
	snap := vr.view.Snapshot()
	if vr.refreshErr != nil && !snap.Loaded {
		writeAPIError(w, vr.refreshErr)
		return
	}
	writeJSON(w, http.StatusOK, statisticsResponse{
		Criteria: snap.Criteria,
		Summary:  reports.Summarize(vr.view.Filtered(), h.config.TopN, h.now()),
	}, "statistics")
}

// HandleMap renders the map page. Layers load from /api/map.
func (h *Handler) HandleMap(w http.ResponseWriter, r *http.Request) {
	bff.Render(w, r, http.StatusOK, "map.html", h.pageData(w, r, "Map", bff.MapContent{DataURL: "/api/map"}))
}

// mapResponse is what static/map.js draws.
type mapResponse struct {
	Center  reports.Point    `json:"center"`
	Heat    []reports.Point  `json:"heat"`
	Markers []reports.Marker `json:"markers"`
}

// HandleAPIMap fetches locations and recent incidents in parallel and
// returns them as map layers.
func (h *Handler) HandleAPIMap(w http.ResponseWriter, r *http.Request) {
	var (
		locs   []models.Location
		recent []models.RecentReport
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		locs, err = h.backend.DashboardLocations(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = h.backend.RecentViolence(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("Failed to fetch map data")
		writeAPIError(w, err)
		return
	}

	resp := mapResponse{
		Heat:    reports.HeatPoints(locs),
		Markers: reports.RecentMarkers(recent),
		Center:  defaultCenter,
	}
	if c, ok := reports.Center(resp.Heat); ok {
		resp.Center = c
	} else if len(resp.Markers) > 0 {
		points := make([]reports.Point, len(resp.Markers))
		for i, m := range resp.Markers {
			points[i] = m.Point
		}
		resp.Center, _ = reports.Center(points)
	}
	writeJSON(w, http.StatusOK, resp, "map")
}
