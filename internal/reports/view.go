package reports

import (
	"context"
	"errors"
	"sync"
	"time"

	"cacviun/internal/metrics"
	"cacviun/internal/models"
)

// ErrSuperseded is returned by View.Refresh when a newer refresh was issued
// while this one was in flight. Its result is discarded.
var ErrSuperseded = errors.New("fetch superseded by a newer request")

// Loader fetches a full report collection.
type Loader func(ctx context.Context) ([]*models.Report, error)

// View is the state behind one history or statistics screen: the last
// successfully fetched collection, the active criteria, the filtered subset
// and the pager over it.
type View struct {
	mu sync.Mutex

	source    []*models.Report
	criteria  Criteria
	filtered  []*models.Report
	pager     *Pager
	loaded    bool
	stale     bool
	fetchedAt time.Time

	issued uint64
	now    func() time.Time
}

// NewView creates an empty view paging by pageSize.
func NewView(pageSize int) *View {
	return &View{
		pager: NewPager(pageSize),
		now:   time.Now,
	}
}

// Refresh fetches the collection with load and applies it, unless a later
// Refresh was issued in the meantime (ErrSuperseded). On error the previous
// collection stays in place.
func (v *View) Refresh(ctx context.Context, load Loader) error {
	v.mu.Lock()
	v.issued++
	gen := v.issued
	v.mu.Unlock()

	rs, err := load(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.issued {
		metrics.SupersededFetchesTotal.Inc()
		return ErrSuperseded
	}
	if err != nil {
		return err
	}

	if rs == nil {
		rs = []*models.Report{}
	}
	v.source = rs
	v.loaded = true
	v.stale = false
	v.fetchedAt = v.now()
	v.refilter()
	return nil
}

// refilter recomputes the filtered subset and clamps the page.
func (v *View) refilter() {
	v.filtered = Filter(v.source, v.criteria)
	v.pager.SetCount(len(v.filtered))
}

// Apply sets the criteria and page. New criteria reset the pager to page 1
// and ignore page; unchanged criteria move to page when it is positive.
func (v *View) Apply(c Criteria, page int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !c.Equal(v.criteria) {
		v.criteria = c
		v.refilter()
		v.pager.Reset()
		return
	}
	if page > 0 {
		v.pager.Goto(page)
	}
}

// Next moves to the next page when there is one.
func (v *View) Next() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pager.Next()
}

// Prev moves to the previous page when there is one.
func (v *View) Prev() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pager.Prev()
}

// MarkStale forces the next cache lookup to report the view as not fresh.
func (v *View) MarkStale() {
	v.mu.Lock()
	v.stale = true
	v.mu.Unlock()
}

// Filtered returns the filtered collection for aggregation.
func (v *View) Filtered() []*models.Report {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filtered
}

// Source returns the last fetched collection.
func (v *View) Source() []*models.Report {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.source
}

func (v *View) fresh(ttl time.Duration) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loaded && !v.stale && v.now().Sub(v.fetchedAt) < ttl
}

// Snapshot is a consistent read of a view for rendering.
type Snapshot struct {
	Criteria   Criteria         `json:"criteria"`
	Items      []*models.Report `json:"items"`
	Total      int              `json:"total"`
	Filtered   int              `json:"filtered"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
	PageSize   int              `json:"pageSize"`
	HasPrev    bool             `json:"hasPrev"`
	HasNext    bool             `json:"hasNext"`
	Loaded     bool             `json:"loaded"`
	FetchedAt  time.Time        `json:"fetchedAt"`
}

// Snapshot returns the current page and pager state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	lo, hi := v.pager.Bounds()
	items := v.filtered[lo:hi]
	if items == nil {
		items = []*models.Report{}
	}
	return Snapshot{
		Criteria:   v.criteria,
		Items:      items,
		Total:      len(v.source),
		Filtered:   len(v.filtered),
		Page:       v.pager.Page(),
		TotalPages: v.pager.TotalPages(),
		PageSize:   v.pager.Size(),
		HasPrev:    v.pager.HasPrev(),
		HasNext:    v.pager.HasNext(),
		Loaded:     v.loaded,
		FetchedAt:  v.fetchedAt,
	}
}
